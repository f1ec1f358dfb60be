// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/usersvc/usersvc/internal/auth"
)

// OutboxPublisher implements auth.EventPublisher by writing events to the
// outbox_events table, from which a relay outside this service delivers
// them. Each event is its own insert on the pool; it does not share a
// transaction with the user row, so publishing stays best-effort.
type OutboxPublisher struct {
	db  DB
	now func() time.Time
}

var (
	_ auth.EventPublisher   = (*OutboxPublisher)(nil)
	_ auth.PayloadValidator = (*OutboxPublisher)(nil)
)

// NewOutboxPublisher creates a new OutboxPublisher.
func NewOutboxPublisher(db DB) *OutboxPublisher {
	return &OutboxPublisher{db: db, now: time.Now}
}

// ValidatePayload rejects payloads that are not a JSON document, since the
// payload column is JSONB.
func (p *OutboxPublisher) ValidatePayload(topic string, payload []byte) error {
	if !json.Valid(payload) {
		return oops.With("topic", topic).
			Wrap(fmt.Errorf("%w: payload is not valid JSON", auth.ErrEventSerialization))
	}
	return nil
}

// Publish stores the event. The payload must pass ValidatePayload.
func (p *OutboxPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.ValidatePayload(topic, payload); err != nil {
		return err
	}

	id := ulid.Make()
	_, err := p.db.Exec(ctx, `
		INSERT INTO outbox_events (id, topic, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), topic, payload, p.now().UTC())
	if err != nil {
		return oops.Code("OUTBOX_INSERT_FAILED").
			With("topic", topic).
			With("event_id", id.String()).
			Wrap(err)
	}
	return nil
}

// Event is an outbox row.
type Event struct {
	ID          ulid.ULID
	Topic       string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Unpublished returns up to limit events not yet marked published, oldest first.
func (p *OutboxPublisher) Unpublished(ctx context.Context, limit int) ([]Event, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, topic, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, oops.Code("OUTBOX_QUERY_FAILED").With("operation", "list unpublished").Wrap(err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e     Event
			idStr string
		)
		if err := rows.Scan(&idStr, &e.Topic, &e.Payload, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, oops.Code("OUTBOX_QUERY_FAILED").With("operation", "scan event").Wrap(err)
		}
		if e.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("OUTBOX_CORRUPT_ID").With("id", idStr).Wrap(err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("OUTBOX_QUERY_FAILED").With("operation", "iterate events").Wrap(err)
	}
	return events, nil
}

// MarkPublished stamps the event as delivered. Marking twice keeps the first time.
func (p *OutboxPublisher) MarkPublished(ctx context.Context, id ulid.ULID) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE outbox_events SET published_at = COALESCE(published_at, $2)
		WHERE id = $1
	`, id.String(), p.now().UTC())
	if err != nil {
		return oops.Code("OUTBOX_UPDATE_FAILED").With("event_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("event_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}
