// Package postgres stores verification methods in PostgreSQL. Creation
// races are settled by the table's primary key and unique constraint.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/pkg/identitykey"
)

const (
	queryTimeout = 10 * time.Second

	// SQLSTATE unique_violation.
	uniqueViolation = "23505"
)

// Open connects to PostgreSQL through the pgx stdlib driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// MethodStore is a verification method store backed by PostgreSQL.
type MethodStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMethodStore(db *sql.DB) *MethodStore {
	return &MethodStore{db: db, now: time.Now}
}

const selectColumns = `identity_key, kind, unique_identity_key, security_code, claimed, created_at, updated_at`

func scanMethod(row interface{ Scan(...any) error }) (*domain.VerificationMethod, error) {
	var m domain.VerificationMethod
	var kind string
	if err := row.Scan(&m.IdentityKey, &kind, &m.UniqueIdentityKey, &m.SecurityCode, &m.Claimed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Kind = domain.MethodKind(kind)
	return &m, nil
}

func (s *MethodStore) GetMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `SELECT ` + selectColumns + ` FROM identity_verification_methods WHERE identity_key = $1 AND kind = $2`
	m, err := scanMethod(s.db.QueryRowContext(ctx, q, identityKey, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("query verification method: %w", err)
	}
	return m, nil
}

func (s *MethodStore) ClaimMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `UPDATE identity_verification_methods
		SET claimed = TRUE, security_code = NULL, updated_at = $3
		WHERE identity_key = $1 AND kind = $2
		RETURNING ` + selectColumns
	m, err := scanMethod(s.db.QueryRowContext(ctx, q, identityKey, string(kind), s.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("claim verification method: %w", err)
	}
	return m, nil
}

// ClaimMethodWithCode claims the method only if securityCode matches the
// stored code. The check and the write are one statement.
func (s *MethodStore) ClaimMethodWithCode(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (*domain.VerificationMethod, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `UPDATE identity_verification_methods
		SET claimed = TRUE, security_code = NULL, updated_at = $4
		WHERE identity_key = $1 AND kind = $2 AND (claimed OR security_code = $3)
		RETURNING ` + selectColumns
	m, err := scanMethod(s.db.QueryRowContext(qctx, q, identityKey, string(kind), securityCode, s.now().UTC()))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim verification method: %w", err)
	}
	// No row matched: the method is missing or the code is wrong.
	if _, err := s.GetMethod(ctx, identityKey, kind); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("claim verification method: %w", domain.ErrCodeMismatch)
}

func (s *MethodStore) RecoverIdentity(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (domain.RecoverOutcome, error) {
	identityKey = identitykey.Normalize(identityKey)
	unique, err := identitykey.Unique(identityKey, kind)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	now := s.now().UTC()

	var claimed bool
	err = s.db.QueryRowContext(ctx,
		`SELECT claimed FROM identity_verification_methods WHERE identity_key = $1 AND kind = $2`,
		identityKey, string(kind)).Scan(&claimed)
	switch {
	case err == nil:
		if claimed {
			return domain.RecoverAlreadyClaimed, nil
		}
		return s.rotate(ctx, identityKey, kind, securityCode, now)
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("query verification method: %w", err)
	}

	const insert = `INSERT INTO identity_verification_methods
		(identity_key, kind, unique_identity_key, security_code, claimed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)`
	if _, err := s.db.ExecContext(ctx, insert, identityKey, string(kind), unique, securityCode, now); err != nil {
		if isUniqueViolation(err) {
			return domain.RecoverConflict, nil
		}
		return "", fmt.Errorf("insert verification method: %w", err)
	}
	return domain.RecoverCreated, nil
}

// rotate replaces the code unless a claim got there first.
func (s *MethodStore) rotate(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string, now time.Time) (domain.RecoverOutcome, error) {
	const q = `UPDATE identity_verification_methods
		SET security_code = $3, updated_at = $4
		WHERE identity_key = $1 AND kind = $2 AND claimed = FALSE`
	res, err := s.db.ExecContext(ctx, q, identityKey, string(kind), securityCode, now)
	if err != nil {
		return "", fmt.Errorf("rotate security code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rotate security code: %w", err)
	}
	if n == 0 {
		return domain.RecoverAlreadyClaimed, nil
	}
	return domain.RecoverRotated, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
