// Package store implements the stracatore message store service.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Meta is the envelope of a stored message.
type Meta struct {
	Device      string `json:"device,omitempty"`
	Creator     string `json:"creator,omitempty"`
	MessageUID  string `json:"messageUid,omitempty"`
	MessageType string `json:"messageType" validate:"required"`
	Expires     string `json:"expires,omitempty"`
	Created     string `json:"created,omitempty"`
}

// Message is one record in a message store. Content is opaque JSON.
type Message struct {
	Meta    Meta            `json:"meta"`
	Content json.RawMessage `json:"content"`
}

// LoadRequest selects messages by example.
type LoadRequest struct {
	Example Message `json:"example"`
}

// MessageStore is a message persistence backend.
type MessageStore interface {
	Save(ctx context.Context, msg *Message) error
	LoadByExample(ctx context.Context, example *Message) ([]*Message, error)
	DeleteByExample(ctx context.Context, example *Message) (int64, error)
}

// Matches reports whether msg is selected by example: messageUid must be equal
// when set in the example, messageType is a prefix match.
func Matches(example, msg *Message) bool {
	if example.Meta.MessageUID != "" && example.Meta.MessageUID != msg.Meta.MessageUID {
		return false
	}
	return strings.HasPrefix(msg.Meta.MessageType, example.Meta.MessageType)
}

// Expired reports whether the message carries an expiry time before now.
// Unparseable expiry values never expire.
func Expired(msg *Message, now time.Time) bool {
	if msg.Meta.Expires == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, msg.Meta.Expires)
	if err != nil {
		return false
	}
	return t.Before(now)
}
