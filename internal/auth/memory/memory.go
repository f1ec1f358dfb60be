// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

// Package memory implements in-memory auth stores for development and testing.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/usersvc/usersvc/internal/auth"
)

// DB holds users and tokens in process memory.
// Records are copied on the way in and out so callers never share state.
type DB struct {
	mu       sync.RWMutex
	users    map[ulid.ULID]*auth.User
	byEmail  map[string]ulid.ULID
	tokens   map[ulid.ULID]*auth.Token
	byValue  map[string]ulid.ULID
	clockNow func() time.Time
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		users:    make(map[ulid.ULID]*auth.User),
		byEmail:  make(map[string]ulid.ULID),
		tokens:   make(map[ulid.ULID]*auth.Token),
		byValue:  make(map[string]ulid.ULID),
		clockNow: time.Now,
	}
}

// Ensure interfaces are met.
var (
	_ auth.UserStore  = (*UserStore)(nil)
	_ auth.TokenStore = (*TokenStore)(nil)
)

// Users returns a UserStore view of the database.
func (db *DB) Users() *UserStore { return &UserStore{db: db} }

// Tokens returns a TokenStore view of the database.
func (db *DB) Tokens() *TokenStore { return &TokenStore{db: db} }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- UserStore ---

// UserStore implements auth.UserStore over a DB.
type UserStore struct {
	db *DB
}

// GetByEmail retrieves a user by email, compared case-insensitively.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.byEmail[emailKey(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u := *s.db.users[id]
	return &u, nil
}

// Save stores a new user, assigning its ID and creation time.
func (s *UserStore) Save(_ context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, oops.Code("USER_SAVE_FAILED").Errorf("user cannot be nil")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := emailKey(user.Email)
	if existing, ok := s.db.byEmail[key]; ok && existing != user.ID {
		return nil, oops.With("email", user.Email).Wrap(auth.ErrDuplicateUser)
	}

	stored := *user
	if !stored.IsPersisted() {
		stored.ID = ulid.Make()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.db.clockNow()
	}

	s.db.users[stored.ID] = &stored
	s.db.byEmail[key] = stored.ID

	out := stored
	return &out, nil
}

// --- TokenStore ---

// TokenStore implements auth.TokenStore over a DB.
type TokenStore struct {
	db *DB
}

// Save inserts or updates a token by ID. Only the Deleted flag of an
// existing token is updated; a deleted token stays deleted.
func (s *TokenStore) Save(_ context.Context, token *auth.Token) (*auth.Token, error) {
	if token == nil {
		return nil, oops.Code("TOKEN_SAVE_FAILED").Errorf("token cannot be nil")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if existing, ok := s.db.tokens[token.ID]; ok {
		existing.Deleted = existing.Deleted || token.Deleted
		out := *existing
		out.User = nil
		return &out, nil
	}

	if _, ok := s.db.users[token.UserID]; !ok {
		return nil, oops.Code("TOKEN_SAVE_FAILED").
			With("user_id", token.UserID.String()).
			Errorf("token owner does not exist")
	}
	if _, ok := s.db.byValue[token.Value]; ok {
		return nil, oops.Code("TOKEN_SAVE_FAILED").Errorf("token value already exists")
	}

	stored := *token
	if stored.ID.Compare(ulid.ULID{}) == 0 {
		stored.ID = ulid.Make()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.db.clockNow()
	}
	stored.User = nil

	s.db.tokens[stored.ID] = &stored
	s.db.byValue[stored.Value] = stored.ID

	out := stored
	return &out, nil
}

// FindActiveByValue retrieves an active token with its owner.
func (s *TokenStore) FindActiveByValue(_ context.Context, value string, now time.Time) (*auth.Token, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.byValue[value]
	if !ok {
		return nil, auth.ErrNotFound
	}
	t := s.db.tokens[id]
	if !t.IsActiveAt(now) {
		return nil, auth.ErrNotFound
	}

	out := *t
	u := *s.db.users[t.UserID]
	out.User = &u
	return &out, nil
}

// --- EventPublisher ---

// Message is an event recorded by Publisher.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher records published events in order and logs each one.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	logger   *slog.Logger
}

var _ auth.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a recording publisher. A nil logger uses slog.Default().
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

// Publish records the event.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "event published", "topic", topic, "bytes", len(payload))
	return nil
}

// Messages returns a copy of the recorded events.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
