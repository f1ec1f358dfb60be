// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength bounds the accepted email address length (RFC 5321 path limit).
const MaxEmailLength = 254

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser creates a validated User that has not been persisted yet.
// The ID is left zero; the UserStore assigns it on first save.
func NewUser(name, email, passwordHash string) (*User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	return &User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: passwordHash,
	}, nil
}

// ValidateEmail checks that email is a bare address such as "a@x.com".
// Display-name forms like "A <a@x.com>" are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("length", len(email)).
			Errorf("email exceeds %d characters", MaxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Wrap(err)
	}
	if addr.Address != email {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Errorf("email must be a bare address")
	}
	return nil
}

// IsPersisted reports whether the user has been assigned an ID by a store.
func (u *User) IsPersisted() bool {
	return u.ID.Compare(ulid.ULID{}) != 0
}

// Redacted returns a copy of the user without the password hash.
// Service results are always redacted before they leave this package.
func (u *User) Redacted() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}

// UserStore manages user persistence.
type UserStore interface {
	// GetByEmail retrieves a user by email, compared case-insensitively.
	// Returns ErrNotFound if no such user exists.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Save stores a new user, assigning ID and CreatedAt, and returns the
	// stored record. Returns ErrDuplicateUser if the email is already taken.
	Save(ctx context.Context, user *User) (*User, error)
}
