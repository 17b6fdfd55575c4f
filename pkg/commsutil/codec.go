package commsutil

import (
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Reply encodes v and sends it as the reply to msg. Messages without a reply
// subject are ignored.
func Reply(msg *comms.Msg, v interface{}) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := EncodePayload(v)
	if err != nil {
		return fmt.Errorf("%s - failed to encode reply: %w", logPrefix, err)
	}
	return msg.Respond(data)
}
