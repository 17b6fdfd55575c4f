package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-process MessageStore. Messages are kept in save order;
// saving an existing messageUid replaces it in place.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []*Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, msg *Message) error {
	if msg.Meta.MessageUID == "" {
		return errors.New("message without messageUid")
	}
	cp := *msg

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.messages {
		if existing.Meta.MessageUID == msg.Meta.MessageUID {
			m.messages[i] = &cp
			return nil
		}
	}
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *MemoryStore) LoadByExample(_ context.Context, example *Message) ([]*Message, error) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Message
	for _, msg := range m.messages {
		if Matches(example, msg) && !Expired(msg, now) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteByExample(_ context.Context, example *Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0]
	var deleted int64
	for _, msg := range m.messages {
		if Matches(example, msg) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	for i := len(kept); i < len(m.messages); i++ {
		m.messages[i] = nil
	}
	m.messages = kept
	return deleted, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
