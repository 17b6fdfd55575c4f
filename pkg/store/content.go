package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ContentFromFile returns a NotFoundFunc that answers with a fresh message of
// the requested type whose content is the JSON document at path.
func ContentFromFile(path string) NotFoundFunc {
	return func(_ context.Context, req *LoadRequest) (*Message, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", path)
		}
		return &Message{
			Meta: Meta{
				MessageUID:  uuid.NewString(),
				MessageType: req.Example.Meta.MessageType,
				Created:     time.Now().UTC().Format(time.RFC3339),
			},
			Content: json.RawMessage(data),
		}, nil
	}
}
