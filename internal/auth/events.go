// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package auth

import (
	"context"
	"encoding/json"
)

// Welcome email published after a successful signup.
const (
	SendEmailTopic      = "sendEmail"
	WelcomeEmailSubject = "Welcome to Scaler"
	WelcomeEmailBody    = "We are happy to have you on out platform."
)

// SendEmailEvent asks the mail consumer to deliver a message.
type SendEmailEvent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewWelcomeEmail builds the welcome event for a newly registered address.
func NewWelcomeEmail(to string) SendEmailEvent {
	return SendEmailEvent{
		To:      to,
		Subject: WelcomeEmailSubject,
		Body:    WelcomeEmailBody,
	}
}

// EventEncoder serializes an event into the payload handed to an EventPublisher.
type EventEncoder func(v any) ([]byte, error)

// JSONEncoder is the default EventEncoder.
func JSONEncoder(v any) ([]byte, error) {
	//nolint:wrapcheck // callers wrap with ErrEventSerialization
	return json.Marshal(v)
}

// EventPublisher hands serialized events to a transport.
type EventPublisher interface {
	// Publish sends payload on topic. Delivery is asynchronous from the
	// caller's point of view. Returns an error wrapping ErrEventSerialization
	// if the payload cannot be handed off as given.
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PayloadValidator is implemented by publishers that can reject a payload
// before the service persists anything. SignUp checks it ahead of saving
// the user; a publisher without it is only consulted after the save.
type PayloadValidator interface {
	// ValidatePayload returns an error wrapping ErrEventSerialization if
	// Publish would refuse payload on topic.
	ValidatePayload(topic string, payload []byte) error
}
