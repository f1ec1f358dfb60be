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

// UserRepository implements auth.UserStore.
type UserRepository struct {
	db DB
}

var _ auth.UserStore = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail retrieves a user by email, compared case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// Save inserts a new user, assigning its ID and creation time when unset.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, oops.Code("USER_SAVE_FAILED").Errorf("user cannot be nil")
	}

	stored := *user
	if !stored.IsPersisted() {
		stored.ID = ulid.Make()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		stored.ID.String(),
		stored.Name,
		stored.Email,
		stored.PasswordHash,
		stored.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, oops.With("email", stored.Email).Wrap(auth.ErrDuplicateUser)
	}
	if err != nil {
		return nil, oops.Code("USER_SAVE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return &stored, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		idStr string
	)
	if err := row.Scan(&idStr, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers map ErrNoRows
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	u.ID = id
	return &u, nil
}
