package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-2fa-confirm/internal/application/confirmation"
	"github.com/go-2fa-confirm/internal/application/identity"
	"github.com/go-2fa-confirm/internal/config"
	"github.com/go-2fa-confirm/internal/infrastructure/dynamo"
	"github.com/go-2fa-confirm/internal/infrastructure/memory"
	"github.com/go-2fa-confirm/internal/infrastructure/postgres"
	redisinfra "github.com/go-2fa-confirm/internal/infrastructure/redis"
	"github.com/go-2fa-confirm/internal/transport/http/handler"
)

// stores bundles the selected persistence backends and what must be closed on exit.
type stores struct {
	methods identity.MethodStore
	codes   confirmation.CodeStore
	closers []func() error
	checks  map[string]handler.Check
}

func (s *stores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}
}

// openStores connects the method store and pending-code store named by cfg,
// creating tables on first use.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{checks: make(map[string]handler.Check)}

	var ddb *dynamodb.Client
	if cfg.MethodStore == "dynamo" || cfg.CodeStore == "dynamo" {
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		ddb = client
		table := cfg.DynamoTables.PendingConfirmations
		if cfg.MethodStore == "dynamo" {
			table = cfg.DynamoTables.VerificationMethods
		}
		st.checks["dynamo"] = func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
			return err
		}
	}

	switch cfg.MethodStore {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			st.Close()
			return nil, err
		}
		st.methods = postgres.NewMethodStore(db)
		st.checks["postgres"] = db.PingContext
	case "dynamo":
		st.methods = dynamo.NewMethodRepo(ddb, cfg.DynamoTables.VerificationMethods)
	case "memory":
		slog.Warn("using in-memory method store, data is lost on restart")
		st.methods = memory.NewMethodStore()
	default:
		return nil, fmt.Errorf("unknown method store %q", cfg.MethodStore)
	}

	switch cfg.CodeStore {
	case "redis":
		client, err := redisinfra.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, client.Close)
		st.codes = redisinfra.NewPendingStore(client, "")
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	case "dynamo":
		st.codes = dynamo.NewPendingRepo(ddb, cfg.DynamoTables.PendingConfirmations)
	case "memory":
		st.codes = memory.NewPendingStore()
	default:
		st.Close()
		return nil, fmt.Errorf("unknown code store %q", cfg.CodeStore)
	}
	return st, nil
}

var (
	_ identity.MethodStore   = (*postgres.MethodStore)(nil)
	_ identity.MethodStore   = (*dynamo.MethodRepo)(nil)
	_ identity.MethodStore   = (*memory.MethodStore)(nil)
	_ confirmation.CodeStore = (*redisinfra.PendingStore)(nil)
	_ confirmation.CodeStore = (*dynamo.PendingRepo)(nil)
	_ confirmation.CodeStore = (*memory.PendingStore)(nil)
)
