package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/davidmonro/fence/internal/db"
)

// DBStore is the Postgres-backed Store. Uniqueness of provider names,
// subs and usernames is enforced by table constraints.
type DBStore struct {
	db *db.DB
}

func NewDBStore(db *db.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) FindOrCreateUser(
	ctx context.Context,
	username string,
	idpName string,
	email string,
) (User, error) {

	// 1. Insert if absent; a concurrent insert is absorbed by ON CONFLICT.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, idp_name)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (username) DO NOTHING
	`, username, email, idpName)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	// 2. Fill in a missing email for returning users.
	if email != "" {
		_, err = s.db.ExecContext(ctx, `
			UPDATE users
			SET email = $2, updated_at = NOW()
			WHERE username = $1
			  AND (email IS NULL OR email = '')
		`, username, email)
		if err != nil {
			return User{}, fmt.Errorf("update user email: %w", err)
		}
	}

	// 3. Read back the canonical row.
	var (
		u         User
		id        uuid.UUID
		emailCol  sql.NullString
		idpCol    sql.NullString
		extraJSON []byte
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, username, email, idp_name, additional_info, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&id, &u.Username, &emailCol, &idpCol, &extraJSON, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}

	u.ID = id.String()
	u.Email = emailCol.String
	u.IdPName = idpCol.String
	if err := decodeJSON(extraJSON, &u.AdditionalInfo); err != nil {
		return User{}, fmt.Errorf("decode additional_info: %w", err)
	}
	return u, nil
}

func (s *DBStore) FindProviderByName(ctx context.Context, name string) (IdentityProvider, error) {
	var (
		p    IdentityProvider
		id   uuid.UUID
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description
		FROM identity_providers
		WHERE name = $1
	`, name).Scan(&id, &p.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return IdentityProvider{}, ErrNotFound
	}
	if err != nil {
		return IdentityProvider{}, err
	}
	p.ID = id.String()
	p.Description = desc.String
	return p, nil
}

func (s *DBStore) CreateProvider(ctx context.Context, p IdentityProvider) (IdentityProvider, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO identity_providers (name, description)
		VALUES ($1, $2)
		RETURNING id
	`, p.Name, p.Description).Scan(&id)
	if db.IsUniqueViolation(err) {
		return IdentityProvider{}, ErrConflict
	}
	if err != nil {
		return IdentityProvider{}, err
	}
	p.ID = id.String()
	return p, nil
}

func (s *DBStore) FindBindingBySub(ctx context.Context, sub string) (IdPToUser, error) {
	var (
		b         IdPToUser
		id        uuid.UUID
		idpID     uuid.UUID
		userID    uuid.UUID
		extraJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub, fk_to_idp, fk_to_user, extra_info
		FROM idp_to_user
		WHERE sub = $1
	`, sub).Scan(&id, &b.Sub, &idpID, &userID, &extraJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return IdPToUser{}, ErrNotFound
	}
	if err != nil {
		return IdPToUser{}, err
	}

	b.ID = id.String()
	b.ProviderID = idpID.String()
	b.UserID = userID.String()
	if err := decodeJSON(extraJSON, &b.ExtraInfo); err != nil {
		return IdPToUser{}, fmt.Errorf("decode extra_info: %w", err)
	}
	return b, nil
}

func (s *DBStore) UpsertBinding(ctx context.Context, b IdPToUser) (IdPToUser, error) {
	extra, err := encodeJSON(b.ExtraInfo)
	if err != nil {
		return IdPToUser{}, fmt.Errorf("encode extra_info: %w", err)
	}

	// The WHERE on the update arm leaves rows owned by another user
	// untouched; RETURNING then yields no row.
	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO idp_to_user (sub, fk_to_idp, fk_to_user, extra_info)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sub) DO UPDATE
		SET fk_to_idp = EXCLUDED.fk_to_idp,
		    extra_info = EXCLUDED.extra_info,
		    updated_at = NOW()
		WHERE idp_to_user.fk_to_user = EXCLUDED.fk_to_user
		RETURNING id
	`, b.Sub, b.ProviderID, b.UserID, extra).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return IdPToUser{}, ErrSubjectBound
	}
	if db.IsUniqueViolation(err) {
		return IdPToUser{}, ErrConflict
	}
	if err != nil {
		return IdPToUser{}, err
	}

	b.ID = id.String()
	return b, nil
}

func encodeJSON(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		*dst = map[string]any{}
		return nil
	}
	return json.Unmarshal(data, dst)
}
