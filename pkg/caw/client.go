package caw

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stracadev/straca/pkg/dispatcher"
)

const clientLogPrefix = "caw:client"

// PingEvent is the keep-alive event id.
const PingEvent = "ping"

// State is the lifecycle state of a push channel.
type State int

const (
	StateOpening State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Client is the handle of one open push channel.
type Client struct {
	deviceID string
	writer   Writer
	template dispatcher.Response

	// nodes is guarded by Tree.mu.
	nodes []*Node

	mu     sync.Mutex
	state  State
	events []string
	stop   chan struct{}
	done   chan struct{}
}

func newClient(deviceID string, w Writer, template *dispatcher.Response) *Client {
	c := &Client{
		deviceID: deviceID,
		writer:   w,
		state:    StateOpening,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if template != nil {
		c.template = *template
	}
	c.template.Subresponse = nil
	c.template.DontSend = false
	return c
}

// DeviceID returns the device the channel belongs to.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the channel is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Events returns the subscribed event-id prefixes in subscription order.
func (c *Client) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Client) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpening {
		c.state = StateOpen
	}
}

// close moves the client to Closed and stops its keep-alive. It reports
// whether this call performed the transition.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	close(c.stop)
	close(c.done)
	return true
}

// send writes one event frame built from the listen response template.
func (c *Client) send(eventID string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrChannelClosed
	}

	res := c.template
	res.OK = true
	res.ChainOK = true
	res.Operation = eventID
	res.Data = data
	return c.writer.WriteFrame(Frame{Event: eventID, Data: &res})
}

func (c *Client) runPing(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.send(PingEvent, struct{}{}); err != nil {
				slog.Debug(fmt.Sprintf("%s - ping to %s failed: %v", clientLogPrefix, c.deviceID, err))
			}
		}
	}
}
