package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS identity_verification_methods (
            identity_key TEXT NOT NULL,
            kind TEXT NOT NULL CHECK (kind IN ('email', 'phone')),
            unique_identity_key TEXT,
            security_code TEXT,
            claimed BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (identity_key, kind),
            CONSTRAINT identity_verification_methods_unique_identity_key UNIQUE (unique_identity_key)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_identity_verification_methods_claimed
            ON identity_verification_methods (claimed) WHERE claimed = FALSE`,
	}
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
