package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/stracadev/straca/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the event subject (e.g. from STRACA_EVENT_SUBJECT).
	Subject string
	// Origin identifies this process so its own relay can skip the event.
	Origin string
}

// CommsPublisher publishes fired events to COMMS subjects.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
	origin  string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, subject: commsutil.SubjectEventFire}
	if opts != nil {
		if opts.Subject != "" {
			p.subject = opts.Subject
		}
		p.origin = opts.Origin
	}
	return p
}

// Publish publishes the event to both the shared event subject, which relays
// consume, and the granular per-event subject for external consumers.
func (p *CommsPublisher) Publish(_ context.Context, eventID string, data interface{}) error {
	raw, err := commsutil.EncodePayload(data)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event data: %w", commsPublisherLogPrefix, err)
	}
	payload, err := commsutil.EncodePayload(&FiredEvent{
		EventID:   eventID,
		Data:      raw,
		Origin:    p.origin,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	if err := p.nc.Publish(p.subject, payload); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.subject, err))
		return err
	}

	granular := commsutil.BuildEventSubject(p.subject, eventID)
	if granular != p.subject {
		if err := p.nc.Publish(granular, payload); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granular, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published event %s", commsPublisherLogPrefix, eventID))
	return nil
}
