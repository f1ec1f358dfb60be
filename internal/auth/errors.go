// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import "errors"

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned by Login when no user is registered under the email.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned when a user with the same email already exists.
var ErrDuplicateUser = errors.New("user already exists")

// ErrEventSerialization is returned when an event cannot be encoded for publishing.
var ErrEventSerialization = errors.New("event serialization failed")
