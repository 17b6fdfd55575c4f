package store

import (
	"context"
	"strings"
	"sync"
)

// NewMessageFunc runs before a message of a registered type is stored. prev is
// the knocked-out message, if any.
type NewMessageFunc func(ctx context.Context, msg, prev *Message) error

// NotFoundFunc may synthesize a message when a load finds nothing. A nil
// message with a nil error means "still not found".
type NotFoundFunc func(ctx context.Context, req *LoadRequest) (*Message, error)

// TypeOptions configures a message type.
type TypeOptions struct {
	// KnockOut keeps a single message per type: saving deletes earlier ones.
	KnockOut bool
}

// MessageType is the behavior registered for a message-type prefix.
type MessageType struct {
	Prefix     string
	KnockOut   bool
	onNew      NewMessageFunc
	onNotFound NotFoundFunc
}

// TypeSetup attaches callbacks to a registered message type.
type TypeSetup struct {
	manager *TypeManager
	mt      *MessageType
}

// OnNewMessage sets the callback run on save.
func (s *TypeSetup) OnNewMessage(fn NewMessageFunc) *TypeSetup {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.mt.onNew = fn
	return s
}

// OnMessageNotFound sets the callback run when a load matches nothing.
func (s *TypeSetup) OnMessageNotFound(fn NotFoundFunc) *TypeSetup {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.mt.onNotFound = fn
	return s
}

// TypeManager keeps message types keyed by prefix.
type TypeManager struct {
	mu    sync.RWMutex
	types map[string]*MessageType
}

// NewTypeManager creates an empty TypeManager.
func NewTypeManager() *TypeManager {
	return &TypeManager{types: make(map[string]*MessageType)}
}

// AddMessageType registers or replaces the behavior of a type prefix.
func (m *TypeManager) AddMessageType(prefix string, opts TypeOptions) *TypeSetup {
	mt := &MessageType{Prefix: prefix, KnockOut: opts.KnockOut}
	m.mu.Lock()
	m.types[prefix] = mt
	m.mu.Unlock()
	return &TypeSetup{manager: m, mt: mt}
}

// Find returns the registered type with the longest prefix of messageType.
func (m *TypeManager) Find(messageType string) (MessageType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *MessageType
	for prefix, mt := range m.types {
		if !strings.HasPrefix(messageType, prefix) {
			continue
		}
		if best == nil || len(prefix) > len(best.Prefix) {
			best = mt
		}
	}
	if best == nil {
		return MessageType{}, false
	}
	return *best, true
}
