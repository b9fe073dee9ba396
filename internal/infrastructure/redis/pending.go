// Package redis keeps pending confirmations in Redis hashes that expire
// at the record's purge time.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "confirmation:pending"

var errMalformed = errors.New("malformed pending confirmation")

// deleteIfCodeLua deletes KEYS[1] only while its code_id is ARGV[1].
var deleteIfCodeLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code_id') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// PendingStore keeps one pending confirmation per account.
type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingStore(client redis.UniversalClient, prefix string) *PendingStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &PendingStore{redis: client, prefix: prefix}
}

func (s *PendingStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *PendingStore) Put(ctx context.Context, p *domain.PendingConfirmation) error {
	key := s.key(p.AccountID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"account_id": p.AccountID,
			"code_id":    p.CodeID,
			"code_hash":  p.CodeHash,
			"channel":    string(p.Channel),
			"issued_at":  p.IssuedAt.UTC().Format(time.RFC3339Nano),
			"expires_at": p.ExpiresAt,
		})
		pipe.ExpireAt(ctx, key, p.PurgeAt())
		return nil
	})
	if err != nil {
		return fmt.Errorf("store pending confirmation: %w", err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, accountID string) (*domain.PendingConfirmation, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load pending confirmation: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("pending confirmation not found: %w", domain.ErrNotFound)
	}
	return decode(fields)
}

func (s *PendingStore) Delete(ctx context.Context, accountID, codeID string) error {
	if err := deleteIfCodeLua.Run(ctx, s.redis, []string{s.key(accountID)}, codeID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete pending confirmation: %w", err)
	}
	return nil
}

func decode(fields map[string]string) (*domain.PendingConfirmation, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expires_at: %v", errMalformed, err)
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: issued_at: %v", errMalformed, err)
	}
	if fields["code_id"] == "" || fields["code_hash"] == "" {
		return nil, fmt.Errorf("%w: missing code", errMalformed)
	}
	return &domain.PendingConfirmation{
		AccountID: fields["account_id"],
		CodeID:    fields["code_id"],
		CodeHash:  fields["code_hash"],
		Channel:   domain.MethodKind(fields["channel"]),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
