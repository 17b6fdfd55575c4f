// Package caw implements the Straca event channel: push connections, prefix
// subscriptions and event fan-out.
package caw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/events"
)

const logPrefix = "caw:caw"

// DefaultPingInterval is the keep-alive interval when none is configured.
const DefaultPingInterval = 10 * time.Second

var (
	ErrMissingDevice   = errors.New("missing device id")
	ErrInvalidDevice   = errors.New("device rejected")
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelClosed   = errors.New("channel closed")
)

// Validator decides whether a listen request may open a channel.
type Validator func(req *dispatcher.Request) bool

// Observer receives channel and fan-out statistics.
type Observer interface {
	ObserveChannels(open int)
	ObserveFire(eventID string, delivered, failed int)
}

// Options configures a Caw.
type Options struct {
	PingInterval time.Duration
	Validate     Validator
	Publisher    events.Publisher
	Observer     Observer
}

// Caw is the event channel manager. It owns at most one channel per device.
type Caw struct {
	mu      sync.Mutex
	clients map[string]*Client
	tree    *Tree

	pingInterval time.Duration
	validate     Validator
	publisher    events.Publisher
	observer     Observer
}

// New creates a Caw. Zero options accept every device, ping every
// DefaultPingInterval and publish nowhere.
func New(opts Options) *Caw {
	c := &Caw{
		clients:      make(map[string]*Client),
		tree:         NewTree(),
		pingInterval: opts.PingInterval,
		validate:     opts.Validate,
		publisher:    opts.Publisher,
		observer:     opts.Observer,
	}
	if c.pingInterval <= 0 {
		c.pingInterval = DefaultPingInterval
	}
	if c.validate == nil {
		c.validate = func(*dispatcher.Request) bool { return true }
	}
	if c.publisher == nil {
		c.publisher = &events.NoOpPublisher{}
	}
	return c
}

// Open registers a channel for req.DeviceID writing through w. template is the
// listen response that every pushed frame is built from. A prior channel of the
// same device is closed and replaced.
func (c *Caw) Open(req *dispatcher.Request, template *dispatcher.Response, w Writer) (*Client, error) {
	if req.DeviceID == "" {
		slog.Error(fmt.Sprintf("%s - attempt to connect without device id", logPrefix))
		return nil, ErrMissingDevice
	}
	if !c.validate(req) {
		slog.Error(fmt.Sprintf("%s - attempt to connect with invalid device id %s", logPrefix, req.DeviceID))
		return nil, ErrInvalidDevice
	}

	client := newClient(req.DeviceID, w, template)
	client.open()

	c.mu.Lock()
	prev := c.clients[req.DeviceID]
	c.clients[req.DeviceID] = client
	open := len(c.clients)
	c.mu.Unlock()

	if prev != nil {
		slog.Info(fmt.Sprintf("%s - replacing channel for %s", logPrefix, req.DeviceID))
		c.teardown(prev)
	}

	go client.runPing(c.pingInterval)

	slog.Info(fmt.Sprintf("%s - channel open for %s", logPrefix, req.DeviceID))
	c.observeChannels(open)
	return client, nil
}

// Subscribe installs each event-id prefix for the device's channel.
// Prefixes already subscribed by the channel are ignored.
func (c *Caw) Subscribe(deviceID string, eventIDs []string) error {
	client, ok := c.Client(deviceID)
	if !ok {
		return ErrChannelNotFound
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.state != StateOpen {
		return ErrChannelClosed
	}

	for _, id := range eventIDs {
		if containsString(client.events, id) {
			continue
		}
		c.tree.Install(id, client)
		client.events = append(client.events, id)
		slog.Debug(fmt.Sprintf("%s - %s subscribed to %q", logPrefix, deviceID, id))
	}
	return nil
}

// Unsubscribe removes individual prefixes. An empty list closes the channel.
func (c *Caw) Unsubscribe(deviceID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return c.Close(deviceID)
	}

	client, ok := c.Client(deviceID)
	if !ok {
		return ErrChannelNotFound
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.state != StateOpen {
		return ErrChannelClosed
	}

	for _, id := range eventIDs {
		idx := indexString(client.events, id)
		if idx < 0 {
			continue
		}
		c.tree.RemovePrefix(id, client)
		client.events = append(client.events[:idx], client.events[idx+1:]...)
	}
	return nil
}

// FireEvent delivers data to every local channel subscribed to a prefix of
// eventID and hands the event to the configured publisher. It never fails;
// write and publish errors are logged.
func (c *Caw) FireEvent(ctx context.Context, eventID string, data interface{}) {
	c.FireLocal(eventID, data)
	if err := c.publisher.Publish(ctx, eventID, data); err != nil {
		slog.Warn(fmt.Sprintf("%s - publish %s failed: %v", logPrefix, eventID, err))
	}
}

// FireLocal delivers data to matching local channels only and returns the number
// of successful writes.
func (c *Caw) FireLocal(eventID string, data interface{}) int {
	targets := c.tree.Find(eventID)
	slog.Debug(fmt.Sprintf("%s - fire %s subscribers=%d", logPrefix, eventID, len(targets)))

	delivered, failed := 0, 0
	for _, client := range targets {
		if err := client.send(eventID, data); err != nil {
			failed++
			slog.Warn(fmt.Sprintf("%s - send %s to %s failed: %v", logPrefix, eventID, client.deviceID, err))
			continue
		}
		delivered++
	}

	if c.observer != nil {
		c.observer.ObserveFire(eventID, delivered, failed)
	}
	return delivered
}

// Close tears down the device's channel.
func (c *Caw) Close(deviceID string) error {
	c.mu.Lock()
	client, ok := c.clients[deviceID]
	if ok {
		delete(c.clients, deviceID)
	}
	open := len(c.clients)
	c.mu.Unlock()

	if !ok {
		return ErrChannelNotFound
	}
	c.teardown(client)
	c.observeChannels(open)
	return nil
}

// Detach closes client if it is still the registered channel of its device.
// Transports call it when they detect a disconnect.
func (c *Caw) Detach(client *Client) {
	c.mu.Lock()
	if cur, ok := c.clients[client.deviceID]; ok && cur == client {
		delete(c.clients, client.deviceID)
	}
	open := len(c.clients)
	c.mu.Unlock()

	c.teardown(client)
	c.observeChannels(open)
}

// Shutdown closes every channel.
func (c *Caw) Shutdown() {
	c.mu.Lock()
	clients := make([]*Client, 0, len(c.clients))
	for id, client := range c.clients {
		clients = append(clients, client)
		delete(c.clients, id)
	}
	c.mu.Unlock()

	for _, client := range clients {
		c.teardown(client)
	}
	c.observeChannels(0)
}

// Client returns the open channel of a device.
func (c *Caw) Client(deviceID string) (*Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[deviceID]
	return client, ok
}

// Count returns the number of registered channels.
func (c *Caw) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (c *Caw) teardown(client *Client) {
	if !client.close() {
		return
	}
	c.tree.Remove(client)
	if err := client.writer.Close(); err != nil {
		slog.Debug(fmt.Sprintf("%s - close writer for %s: %v", logPrefix, client.deviceID, err))
	}
	slog.Info(fmt.Sprintf("%s - channel closed for %s", logPrefix, client.deviceID))
}

func (c *Caw) observeChannels(open int) {
	if c.observer != nil {
		c.observer.ObserveChannels(open)
	}
}

func containsString(list []string, s string) bool {
	return indexString(list, s) >= 0
}

func indexString(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
