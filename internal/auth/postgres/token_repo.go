// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/usersvc/usersvc/internal/auth"
)

// TokenRepository implements auth.TokenStore.
// Only the SHA-256 hash of a token value is stored.
type TokenRepository struct {
	db DB
}

var _ auth.TokenStore = (*TokenRepository)(nil)

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Save inserts a token, or updates the deleted flag of an existing one.
// A deleted token is never restored.
func (r *TokenRepository) Save(ctx context.Context, token *auth.Token) (*auth.Token, error) {
	if token == nil {
		return nil, oops.Code("TOKEN_SAVE_FAILED").Errorf("token cannot be nil")
	}

	stored := *token
	if stored.ID.Compare(ulid.ULID{}) == 0 {
		stored.ID = ulid.Make()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.User = nil

	err := r.db.QueryRow(ctx, `
		INSERT INTO tokens (id, value_hash, user_id, expires_at, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET deleted = tokens.deleted OR EXCLUDED.deleted
		RETURNING deleted, expires_at, created_at
	`,
		stored.ID.String(),
		auth.HashTokenValue(stored.Value),
		stored.UserID.String(),
		stored.ExpiresAt,
		stored.Deleted,
		stored.CreatedAt,
	).Scan(&stored.Deleted, &stored.ExpiresAt, &stored.CreatedAt)
	switch {
	case isForeignKeyViolation(err):
		return nil, oops.Code("TOKEN_SAVE_FAILED").
			With("user_id", stored.UserID.String()).
			Errorf("token owner does not exist")
	case isUniqueViolation(err):
		return nil, oops.Code("TOKEN_SAVE_FAILED").Errorf("token value already exists")
	case err != nil:
		return nil, oops.Code("TOKEN_SAVE_FAILED").
			With("operation", "upsert token").
			With("token_id", stored.ID.String()).
			Wrap(err)
	}
	return &stored, nil
}

// FindActiveByValue retrieves a token that is not deleted and expires after
// now, with its owner loaded.
func (r *TokenRepository) FindActiveByValue(ctx context.Context, value string, now time.Time) (*auth.Token, error) {
	row := r.db.QueryRow(ctx, `
		SELECT t.id, t.expires_at, t.deleted, t.created_at,
		       u.id, u.name, u.email, u.password_hash, u.created_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.value_hash = $1 AND NOT t.deleted AND t.expires_at > $2
	`, auth.HashTokenValue(value), now)

	var (
		tok           auth.Token
		user          auth.User
		tokID, userID string
	)
	err := row.Scan(&tokID, &tok.ExpiresAt, &tok.Deleted, &tok.CreatedAt,
		&userID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("TOKEN_FIND_FAILED").
			With("operation", "find active token").
			Wrap(err)
	}

	if tok.ID, err = ulid.Parse(tokID); err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_ID").With("id", tokID).Wrap(err)
	}
	if user.ID, err = ulid.Parse(userID); err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", userID).Wrap(err)
	}
	tok.Value = value
	tok.UserID = user.ID
	tok.User = &user
	return &tok, nil
}
