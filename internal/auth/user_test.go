// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usersvc/usersvc/pkg/errutil"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"simple address", "a@x.com", false},
		{"plus addressing", "ada+news@example.org", false},
		{"empty", "", true},
		{"missing at", "ada.example.com", true},
		{"display name form", "Ada <ada@example.com>", true},
		{"too long", strings.Repeat("a", 250) + "@x.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewUser(t *testing.T) {
	t.Run("trims and keeps fields", func(t *testing.T) {
		u, err := NewUser("  Ada ", " ada@example.com ", "hash")
		require.NoError(t, err)
		assert.Equal(t, "Ada", u.Name)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.Equal(t, "hash", u.PasswordHash)
		assert.False(t, u.IsPersisted())
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := NewUser("Ada", "ada@example.com", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID_HASH")
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewUser("Ada", "not-an-email", "hash")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
	})
}

func TestUser_Redacted(t *testing.T) {
	u := &User{ID: ulid.Make(), Name: "Ada", Email: "ada@example.com", PasswordHash: "secret"}

	r := u.Redacted()
	assert.Empty(t, r.PasswordHash)
	assert.Equal(t, u.ID, r.ID)
	assert.Equal(t, "secret", u.PasswordHash, "original must be untouched")

	var nilUser *User
	assert.Nil(t, nilUser.Redacted())
}
