// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usersvc/usersvc/internal/auth"
	"github.com/usersvc/usersvc/pkg/errutil"
)

var (
	upsertTokenSQL = regexp.QuoteMeta(`INSERT INTO tokens`)
	findTokenSQL   = regexp.QuoteMeta(`FROM tokens t`)
)

func testToken(t *testing.T) *auth.Token {
	t.Helper()
	owner := &auth.User{ID: ulid.Make(), Name: "Ada", Email: "ada@example.com"}
	now := time.Date(2026, 1, 15, 13, 45, 0, 0, time.UTC)
	tok, err := auth.NewToken(owner, "plain-value", time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), now)
	require.NoError(t, err)
	return tok
}

func TestTokenRepository_Save(t *testing.T) {
	t.Run("stores the value hash, never the value", func(t *testing.T) {
		mock := newMock(t)
		tok := testToken(t)
		mock.ExpectQuery(upsertTokenSQL).
			WithArgs(tok.ID.String(), auth.HashTokenValue("plain-value"), tok.UserID.String(),
				tok.ExpiresAt, false, tok.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"deleted", "expires_at", "created_at"}).
				AddRow(false, tok.ExpiresAt, tok.CreatedAt))

		saved, err := NewTokenRepository(mock).Save(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, tok.ID, saved.ID)
		assert.Equal(t, "plain-value", saved.Value)
		assert.Nil(t, saved.User)
	})

	t.Run("revocation reports the stored flag", func(t *testing.T) {
		mock := newMock(t)
		tok := testToken(t)
		tok.Deleted = true
		mock.ExpectQuery(upsertTokenSQL).
			WithArgs(tok.ID.String(), pgxmock.AnyArg(), tok.UserID.String(), tok.ExpiresAt, true, tok.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"deleted", "expires_at", "created_at"}).
				AddRow(true, tok.ExpiresAt, tok.CreatedAt))

		saved, err := NewTokenRepository(mock).Save(context.Background(), tok)
		require.NoError(t, err)
		assert.True(t, saved.Deleted)
	})

	t.Run("a deleted token stays deleted", func(t *testing.T) {
		mock := newMock(t)
		tok := testToken(t)
		mock.ExpectQuery(upsertTokenSQL).
			WithArgs(tok.ID.String(), pgxmock.AnyArg(), tok.UserID.String(), tok.ExpiresAt, false, tok.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"deleted", "expires_at", "created_at"}).
				AddRow(true, tok.ExpiresAt, tok.CreatedAt))

		saved, err := NewTokenRepository(mock).Save(context.Background(), tok)
		require.NoError(t, err)
		assert.True(t, saved.Deleted)
	})

	errCases := []struct {
		name string
		err  error
	}{
		{"unknown owner", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}},
		{"value collision", &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
		{"database error", errors.New("connection reset")},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := newMock(t)
			tok := testToken(t)
			mock.ExpectQuery(upsertTokenSQL).
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(tc.err)

			_, err := NewTokenRepository(mock).Save(context.Background(), tok)
			errutil.AssertErrorCode(t, err, "TOKEN_SAVE_FAILED")
		})
	}

	t.Run("nil token", func(t *testing.T) {
		_, err := NewTokenRepository(newMock(t)).Save(context.Background(), nil)
		errutil.AssertErrorCode(t, err, "TOKEN_SAVE_FAILED")
	})
}

func TestTokenRepository_FindActiveByValue(t *testing.T) {
	now := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	tokID := ulid.Make()
	userID := ulid.Make()
	expires := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 15, 13, 45, 0, 0, time.UTC)
	columns := []string{"id", "expires_at", "deleted", "created_at", "id", "name", "email", "password_hash", "created_at"}

	t.Run("loads the owner", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(findTokenSQL).
			WithArgs(auth.HashTokenValue("plain-value"), now).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(tokID.String(), expires, false, created,
					userID.String(), "Ada", "ada@example.com", "hash", created))

		got, err := NewTokenRepository(mock).FindActiveByValue(context.Background(), "plain-value", now)
		require.NoError(t, err)
		assert.Equal(t, tokID, got.ID)
		assert.Equal(t, "plain-value", got.Value)
		assert.Equal(t, userID, got.UserID)
		require.NotNil(t, got.User)
		assert.Equal(t, "ada@example.com", got.User.Email)
		assert.True(t, got.IsActiveAt(now))
	})

	t.Run("no active token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(findTokenSQL).
			WithArgs(auth.HashTokenValue("gone"), now).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewTokenRepository(mock).FindActiveByValue(context.Background(), "gone", now)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(findTokenSQL).
			WithArgs(pgxmock.AnyArg(), now).
			WillReturnError(errors.New("connection reset"))

		_, err := NewTokenRepository(mock).FindActiveByValue(context.Background(), "v", now)
		errutil.AssertErrorCode(t, err, "TOKEN_FIND_FAILED")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}
