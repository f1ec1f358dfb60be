// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

// Package auth provides user registration and token authentication.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a validated email and password hash
//   - NewToken - creates a Token bound to a persisted user with an expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Store implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service coordinates the four account operations (SignUp, Login, Logout,
// ValidateToken) over three collaborators supplied at construction:
//   - UserStore - user persistence keyed by email
//   - TokenStore - token persistence and active-token lookup
//   - EventPublisher - handoff of serialized events to a transport
//
// # Token Lifecycle
//
// A token is active while it is not deleted and its expiry lies strictly in
// the future. Logout moves an active token to deleted; expiry happens
// implicitly as time passes. Neither state ever returns to active.
package auth
