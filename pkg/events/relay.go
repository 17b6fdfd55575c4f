package events

import (
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/stracadev/straca/pkg/commsutil"
)

const relayLogPrefix = "events:relay"

// Firer delivers an event to locally connected subscribers.
type Firer interface {
	FireLocal(eventID string, data interface{}) int
}

// CommsRelay re-fires events published by other processes on the local Firer.
// Events carrying the relay's own origin are skipped.
type CommsRelay struct {
	nc      *comms.Conn
	subject string
	origin  string
	firer   Firer

	mu  sync.Mutex
	sub *comms.Subscription
}

// NewCommsRelay creates a relay. An empty subject uses commsutil.SubjectEventFire.
func NewCommsRelay(nc *comms.Conn, subject, origin string, firer Firer) *CommsRelay {
	if subject == "" {
		subject = commsutil.SubjectEventFire
	}
	return &CommsRelay{nc: nc, subject: subject, origin: origin, firer: firer}
}

// Start subscribes to the event subject.
func (r *CommsRelay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}

	sub, err := r.nc.Subscribe(r.subject, r.handle)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", relayLogPrefix, r.subject, err)
	}
	r.sub = sub
	slog.Info(fmt.Sprintf("%s - relaying events from %s (origin %s)", relayLogPrefix, r.subject, r.origin))
	return nil
}

// Stop unsubscribes. It is safe to call more than once.
func (r *CommsRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return
	}
	if err := r.sub.Unsubscribe(); err != nil {
		slog.Warn(fmt.Sprintf("%s - unsubscribe failed: %v", relayLogPrefix, err))
	}
	r.sub = nil
}

func (r *CommsRelay) handle(msg *comms.Msg) {
	var ev FiredEvent
	if err := commsutil.DecodePayload(msg.Data, &ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - invalid event payload: %v", relayLogPrefix, err))
		return
	}
	if ev.Origin != "" && ev.Origin == r.origin {
		return
	}
	n := r.firer.FireLocal(ev.EventID, ev.Data)
	slog.Debug(fmt.Sprintf("%s - relayed %s from %s to %d subscribers", relayLogPrefix, ev.EventID, ev.Origin, n))
}
