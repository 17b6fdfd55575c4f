// Package events distributes fired push events beyond the local process.
package events

import (
	"context"
	"encoding/json"
)

// FiredEvent is the wire form of an event handed to a Publisher.
type FiredEvent struct {
	EventID   string          `json:"eventId"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	Timestamp string          `json:"timestamp"`
}

// Publisher forwards fired events to other processes.
type Publisher interface {
	Publish(ctx context.Context, eventID string, data interface{}) error
}

// NoOpPublisher is a Publisher that does nothing (single-process deployments).
type NoOpPublisher struct{}

// Publish is a no-op.
func (p *NoOpPublisher) Publish(_ context.Context, _ string, _ interface{}) error {
	return nil
}

// CallbackPublisher is a Publisher that calls a callback function (for testing and in-process hooks).
type CallbackPublisher struct {
	callback func(ctx context.Context, eventID string, data interface{}) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, eventID string, data interface{}) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// Publish calls the callback.
func (p *CallbackPublisher) Publish(ctx context.Context, eventID string, data interface{}) error {
	return p.callback(ctx, eventID, data)
}
