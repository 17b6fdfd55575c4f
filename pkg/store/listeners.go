package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const listenersLogPrefix = "store:listeners"

// ListenerFunc is notified of every new message whose type matches the listener prefix.
type ListenerFunc func(ctx context.Context, msg *Message) error

type listenerRecord struct {
	tag    string
	prefix string
	fn     ListenerFunc
}

// Listeners fans new messages out to registered listeners.
type Listeners struct {
	mu   sync.RWMutex
	list []*listenerRecord
}

// ListenerContext removes a registered listener.
type ListenerContext struct {
	owner  *Listeners
	record *listenerRecord
}

// Remove unregisters the listener. It is safe to call more than once.
func (c *ListenerContext) Remove() {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	for i, r := range c.owner.list {
		if r == c.record {
			c.owner.list = append(c.owner.list[:i], c.owner.list[i+1:]...)
			return
		}
	}
}

// Listen registers fn for messages whose type starts with prefix. Tags are unique.
func (l *Listeners) Listen(tag, prefix string, fn ListenerFunc) (*ListenerContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.list {
		if r.tag == tag {
			return nil, fmt.Errorf("%s - listener with tag %s already exists", listenersLogPrefix, tag)
		}
	}
	rec := &listenerRecord{tag: tag, prefix: prefix, fn: fn}
	l.list = append(l.list, rec)
	return &ListenerContext{owner: l, record: rec}, nil
}

// notify calls every matching listener. A failing listener is logged and does
// not stop the others.
func (l *Listeners) notify(ctx context.Context, msg *Message) {
	l.mu.RLock()
	targets := make([]*listenerRecord, 0, len(l.list))
	for _, r := range l.list {
		if strings.HasPrefix(msg.Meta.MessageType, r.prefix) {
			targets = append(targets, r)
		}
	}
	l.mu.RUnlock()

	for _, r := range targets {
		if err := r.fn(ctx, msg); err != nil {
			slog.Error(fmt.Sprintf("%s - listener %s failed for %s: %v", listenersLogPrefix, r.tag, msg.Meta.MessageUID, err))
		}
	}
}
