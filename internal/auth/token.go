// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration.
const (
	TokenValueLength         = 128 // characters drawn from tokenAlphabet
	DefaultTokenLifetimeDays = 30
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Bytes at or above this bound are rejected so every symbol is equally likely.
const tokenByteBound = 256 - (256 % len(tokenAlphabet))

// Token is a bearer credential issued on login.
type Token struct {
	ID        ulid.ULID
	Value     string
	UserID    ulid.ULID
	User      *User // populated by TokenStore.FindActiveByValue
	ExpiresAt time.Time
	Deleted   bool
	CreatedAt time.Time
}

// NewToken creates a validated Token for a persisted user.
func NewToken(user *User, value string, expiresAt, now time.Time) (*Token, error) {
	if user == nil || !user.IsPersisted() {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("token owner must be a persisted user")
	}
	if value == "" {
		return nil, oops.Code("TOKEN_INVALID_VALUE").Errorf("token value cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Token{
		ID:        ulid.Make(),
		Value:     value,
		UserID:    user.ID,
		User:      user,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsActiveAt reports whether the token is usable at the given time:
// not deleted and expiring strictly after t.
func (t *Token) IsActiveAt(at time.Time) bool {
	return !t.Deleted && t.ExpiresAt.After(at)
}

// GenerateTokenValue returns a TokenValueLength-character alphanumeric string
// read from crypto/rand.
func GenerateTokenValue() (string, error) {
	out := make([]byte, 0, TokenValueLength)
	buf := make([]byte, TokenValueLength)

	for len(out) < TokenValueLength {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("TOKEN_GENERATE_FAILED").
				With("operation", "crypto/rand.Read").
				With("requested_bytes", len(buf)).
				Wrap(err)
		}
		for _, b := range buf {
			if int(b) >= tokenByteBound {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenValueLength {
				break
			}
		}
	}

	return string(out), nil
}

// ExpiryAfter returns midnight in loc at the start of the day that is days
// calendar days after the date of now in loc.
func ExpiryAfter(now time.Time, days int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, loc)
}

// HashTokenValue computes the SHA256 hash of a token value.
// Persistent stores key tokens by this hash rather than the value itself.
func HashTokenValue(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

// TokenStore manages token persistence.
type TokenStore interface {
	// Save inserts a new token or updates an existing one by ID and returns
	// the stored record. Only the Deleted flag changes after creation.
	Save(ctx context.Context, token *Token) (*Token, error)

	// FindActiveByValue retrieves the token with the given value that is not
	// deleted and expires after now, with User populated.
	// Returns ErrNotFound if there is no such token.
	FindActiveByValue(ctx context.Context, value string, now time.Time) (*Token, error)
}
