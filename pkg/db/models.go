package db

import (
	"encoding/json"
	"time"

	"github.com/stracadev/straca/pkg/store"
)

// messageRow is a row of the messages table.
type messageRow struct {
	MessageUID  string
	MessageType string
	Device      string
	Creator     string
	Created     time.Time
	Expires     *time.Time
	Content     []byte
}

func rowFromMessage(msg *store.Message, now time.Time) messageRow {
	row := messageRow{
		MessageUID:  msg.Meta.MessageUID,
		MessageType: msg.Meta.MessageType,
		Device:      msg.Meta.Device,
		Creator:     msg.Meta.Creator,
		Created:     now,
		Content:     msg.Content,
	}
	if t, err := time.Parse(time.RFC3339, msg.Meta.Created); err == nil {
		row.Created = t
	}
	if t, err := time.Parse(time.RFC3339, msg.Meta.Expires); err == nil {
		row.Expires = &t
	}
	if len(row.Content) == 0 {
		row.Content = []byte("null")
	}
	return row
}

func (r messageRow) message() *store.Message {
	msg := &store.Message{
		Meta: store.Meta{
			Device:      r.Device,
			Creator:     r.Creator,
			MessageUID:  r.MessageUID,
			MessageType: r.MessageType,
			Created:     r.Created.UTC().Format(time.RFC3339),
		},
		Content: json.RawMessage(r.Content),
	}
	if r.Expires != nil {
		msg.Meta.Expires = r.Expires.UTC().Format(time.RFC3339)
	}
	return msg
}
