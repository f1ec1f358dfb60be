// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/usersvc/usersvc/pkg/errutil"
)

// Operation names reported to Metrics.
const (
	OpSignUp   = "signup"
	OpLogin    = "login"
	OpLogout   = "logout"
	OpValidate = "validate"
)

// Metrics records the outcome of service operations.
type Metrics interface {
	ObserveOperation(op, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string) {}

// Service provides the account operations.
// It holds no mutable state of its own and is safe for concurrent use when
// its collaborators are.
type Service struct {
	users    UserStore
	tokens   TokenStore
	events   EventPublisher
	hasher   PasswordHasher
	logger   *slog.Logger
	metrics  Metrics
	encode   EventEncoder
	now      func() time.Time
	location *time.Location
	lifetime int // days
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Code("AUTH_INVALID_OPTION").Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return oops.Code("AUTH_INVALID_OPTION").Errorf("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// WithLocation sets the zone whose midnight bounds token expiry.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) error {
		if loc == nil {
			return oops.Code("AUTH_INVALID_OPTION").Errorf("location cannot be nil")
		}
		s.location = loc
		return nil
	}
}

// WithTokenLifetime sets the number of calendar days a token stays valid.
func WithTokenLifetime(days int) Option {
	return func(s *Service) error {
		if days <= 0 {
			return oops.Code("AUTH_INVALID_OPTION").With("days", days).Errorf("token lifetime must be positive")
		}
		s.lifetime = days
		return nil
	}
}

// WithEventEncoder replaces the JSON event encoder.
func WithEventEncoder(encode EventEncoder) Option {
	return func(s *Service) error {
		if encode == nil {
			return oops.Code("AUTH_INVALID_OPTION").Errorf("event encoder cannot be nil")
		}
		s.encode = encode
		return nil
	}
}

// WithMetrics sets the operation outcome recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) error {
		if m == nil {
			return oops.Code("AUTH_INVALID_OPTION").Errorf("metrics cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// NewService creates a new Service. All collaborators are required.
func NewService(users UserStore, tokens TokenStore, events EventPublisher, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user store is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token store is required")
	}
	if events == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("event publisher is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}

	s := &Service{
		users:    users,
		tokens:   tokens,
		events:   events,
		hasher:   hasher,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		encode:   JSONEncoder,
		now:      time.Now,
		location: time.Local,
		lifetime: DefaultTokenLifetimeDays,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SignUp registers a new user and publishes the welcome email event.
//
// The event is serialized, and checked by publishers implementing
// PayloadValidator, before anything is persisted, so a rejected payload
// leaves no user behind. Publishing happens after the user is saved and is
// best-effort: any publish failure, including a late serialization
// rejection, is logged and the registered user is still returned.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		s.metrics.ObserveOperation(OpSignUp, "invalid_input")
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.metrics.ObserveOperation(OpSignUp, "invalid_input")
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	payload, err := s.encode(NewWelcomeEmail(email))
	if err == nil {
		err = s.validatePayload(SendEmailTopic, payload)
	}
	if err != nil {
		s.metrics.ObserveOperation(OpSignUp, "serialization_failed")
		if !errors.Is(err, ErrEventSerialization) {
			err = fmt.Errorf("%w: %w", ErrEventSerialization, err)
		}
		return nil, oops.Code("EVENT_SERIALIZATION_FAILED").
			With("topic", SendEmailTopic).
			Wrap(err)
	}

	user, err := NewUser(name, email, hash)
	if err != nil {
		s.metrics.ObserveOperation(OpSignUp, "invalid_input")
		return nil, err
	}

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			s.metrics.ObserveOperation(OpSignUp, "duplicate")
			return nil, oops.Code("AUTH_DUPLICATE_USER").With("email", email).Wrap(err)
		}
		s.metrics.ObserveOperation(OpSignUp, "error")
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "save user").Wrap(err)
	}

	if err := s.events.Publish(ctx, SendEmailTopic, payload); err != nil {
		code := "EVENT_PUBLISH_FAILED"
		if errors.Is(err, ErrEventSerialization) {
			code = "EVENT_SERIALIZATION_FAILED"
		}
		errutil.LogErrorContext(ctx, s.logger, "welcome email publish failed",
			oops.Code(code).
				With("topic", SendEmailTopic).
				With("user_id", saved.ID.String()).
				Wrap(err))
		s.metrics.ObserveOperation(OpSignUp, "publish_failed")
		return saved.Redacted(), nil
	}

	s.metrics.ObserveOperation(OpSignUp, "success")
	return saved.Redacted(), nil
}

func (s *Service) validatePayload(topic string, payload []byte) error {
	v, ok := s.events.(PayloadValidator)
	if !ok {
		return nil
	}
	return v.ValidatePayload(topic, payload)
}

// Authenticate checks credentials and issues a token on success.
// Unknown email and wrong password are reported as outcomes, not errors;
// the error return is reserved for store, hasher, and token failures.
func (s *Service) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResult{Outcome: OutcomeUserNotFound}, nil
		}
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		return AuthResult{Outcome: OutcomeInvalidCredentials}, nil
	}

	value, err := GenerateTokenValue()
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate token value").
			Wrap(err)
	}

	now := s.now()
	token, err := NewToken(user, value, ExpiryAfter(now, s.lifetime, s.location), now)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create token").
			Wrap(err)
	}

	saved, err := s.tokens.Save(ctx, token)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_TOKEN_CREATE_FAILED").
			With("operation", "persist token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	saved.User = user.Redacted()

	return AuthResult{Outcome: OutcomeSuccess, Token: saved}, nil
}

// Login authenticates by email and password.
//
// Returns the new token on success, (nil, nil) when the password does not
// match, and an error wrapping ErrUserNotFound when no user has the email.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	result, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.metrics.ObserveOperation(OpLogin, "error")
		return nil, err
	}
	s.metrics.ObserveOperation(OpLogin, result.Outcome.String())

	switch result.Outcome {
	case OutcomeSuccess:
		return result.Token, nil
	case OutcomeUserNotFound:
		return nil, oops.Code("AUTH_USER_NOT_FOUND").
			With("email", strings.TrimSpace(email)).
			Wrap(ErrUserNotFound)
	default:
		return nil, nil
	}
}

// Logout revokes the active token with the given value.
// Unknown, expired, and already revoked tokens are ignored.
func (s *Service) Logout(ctx context.Context, value string) error {
	if value == "" {
		s.metrics.ObserveOperation(OpLogout, "noop")
		return nil
	}

	token, err := s.tokens.FindActiveByValue(ctx, value, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.ObserveOperation(OpLogout, "noop")
			return nil
		}
		s.metrics.ObserveOperation(OpLogout, "error")
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "find active token").Wrap(err)
	}

	token.Deleted = true
	if _, err := s.tokens.Save(ctx, token); err != nil {
		s.metrics.ObserveOperation(OpLogout, "error")
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke token").
			With("token_id", token.ID.String()).
			Wrap(err)
	}

	s.metrics.ObserveOperation(OpLogout, "revoked")
	return nil
}

// ValidateToken returns the owner of the active token with the given value,
// or (nil, nil) if there is no such token.
func (s *Service) ValidateToken(ctx context.Context, value string) (*User, error) {
	if value == "" {
		s.metrics.ObserveOperation(OpValidate, "invalid")
		return nil, nil
	}

	token, err := s.tokens.FindActiveByValue(ctx, value, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.ObserveOperation(OpValidate, "invalid")
			return nil, nil
		}
		s.metrics.ObserveOperation(OpValidate, "error")
		return nil, oops.Code("AUTH_VALIDATE_FAILED").With("operation", "find active token").Wrap(err)
	}
	if token.User == nil {
		s.metrics.ObserveOperation(OpValidate, "error")
		return nil, oops.Code("AUTH_VALIDATE_FAILED").
			With("token_id", token.ID.String()).
			Errorf("token store returned a token without its user")
	}

	s.metrics.ObserveOperation(OpValidate, "valid")
	return token.User.Redacted(), nil
}
