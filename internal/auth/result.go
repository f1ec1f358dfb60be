// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

// Outcome is the decision reached by an authentication attempt.
type Outcome int

// Authentication outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidCredentials
	OutcomeUserNotFound
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeUserNotFound:
		return "user_not_found"
	default:
		return "unknown"
	}
}

// AuthResult is the result of Service.Authenticate.
// Token is set only when Outcome is OutcomeSuccess.
type AuthResult struct {
	Outcome Outcome
	Token   *Token
}

// OK reports whether authentication succeeded.
func (r AuthResult) OK() bool {
	return r.Outcome == OutcomeSuccess && r.Token != nil
}
