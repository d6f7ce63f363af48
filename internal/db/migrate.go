package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB wraps the shared connection pool.
type DB struct {
	*sql.DB
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const gatewayMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    username text NOT NULL,
    email text,
    idp_name text,
    additional_info jsonb NOT NULL DEFAULT '{}'::jsonb,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT users_username_unique UNIQUE (username)
);

CREATE TABLE IF NOT EXISTS identity_providers (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    name text NOT NULL,
    description text,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT identity_providers_name_unique UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS idp_to_user (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    sub text NOT NULL,
    fk_to_idp uuid NOT NULL REFERENCES identity_providers(id) ON DELETE CASCADE,
    fk_to_user uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    extra_info jsonb,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT idp_to_user_sub_unique UNIQUE (sub)
);

CREATE INDEX IF NOT EXISTS idp_to_user_fk_to_user_idx
ON idp_to_user (fk_to_user);
`

// RunGatewayMigration creates the user and identity-binding schema.
// It is idempotent.
func RunGatewayMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, gatewayMigration)
	return err
}
