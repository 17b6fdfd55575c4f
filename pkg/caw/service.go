package caw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/registry"
)

const serviceLogPrefix = "caw:service"

// ServiceName is the default service name the channel operations are registered under.
const ServiceName = "caw"

// EventRecord names one subscribed event-id prefix.
type EventRecord struct {
	EventID string `json:"eventId"`
}

// SubscribeRequest is the payload of subscribe and unsubscribe.
type SubscribeRequest struct {
	Subscribe []EventRecord `json:"subscribe"`
}

// EventIDs returns the prefixes of the request in order.
func (s *SubscribeRequest) EventIDs() []string {
	ids := make([]string, 0, len(s.Subscribe))
	for _, r := range s.Subscribe {
		ids = append(ids, r.EventID)
	}
	return ids
}

// SubscribeResponse is the data of a successful subscribe or unsubscribe.
type SubscribeResponse struct {
	Subscribed []string `json:"subscribed"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Register adds the listen, listenws, subscribe and unsubscribe operations to reg
// under the given service name.
func (c *Caw) Register(reg *registry.Registry, name string) error {
	if name == "" {
		name = ServiceName
	}
	return reg.ConfigureService(name).
		Version("1.0.0").
		Describe("Back flow event channel, brings events to clients").
		Handle("listen", c.handleListen, registry.Metadata{
			Description:       "Opens a server-sent event stream for the request deviceId",
			ResponseRationale: "Stream of frames {event, data: Response}; a ping event is sent periodically",
		}).
		Handle("listenws", c.handleListenWS, registry.Metadata{
			Description:       "Opens a WebSocket push channel for the request deviceId",
			Payload:           SubscribeRequest{},
			PayloadRationale:  "Text messages sent by the client are treated as subscribe payloads",
			ResponseRationale: "JSON text frames {event, data: Response}",
		}).
		Handle("subscribe", c.handleSubscribe, registry.Metadata{
			Description:       "Subscribes the device channel to event-id prefixes",
			Payload:           SubscribeRequest{Subscribe: []EventRecord{{EventID: "stracatore."}}},
			PayloadRationale:  "A prefix matches every event id that starts with it",
			Response:          SubscribeResponse{},
			ResponseRationale: "404 when the device has no open channel",
		}).
		Handle("unsubscribe", c.handleUnsubscribe, registry.Metadata{
			Description:      "Removes subscriptions; an empty list closes the channel",
			Payload:          SubscribeRequest{},
			PayloadRationale: "Prefixes must match earlier subscriptions exactly",
			Response:         SubscribeResponse{},
		}).
		Err()
}

func (c *Caw) handleListen(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	if !cc.Streaming() {
		res.Fail("listen requires a streaming transport")
		return nil
	}

	w, err := NewSSEWriter(cc.Writer)
	if err != nil {
		res.Fail(err.Error())
		return nil
	}
	res.DontSend = true

	client, err := c.Open(req, res, w)
	if err != nil {
		return nil
	}

	select {
	case <-ctx.Done():
		slog.Info(fmt.Sprintf("%s - client %s dropped", serviceLogPrefix, client.DeviceID()))
		c.Detach(client)
	case <-client.Done():
	}
	return nil
}

func (c *Caw) handleListenWS(_ context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	if !cc.Streaming() {
		res.Fail("listenws requires a streaming transport")
		return nil
	}

	conn, err := upgrader.Upgrade(cc.Writer, cc.HTTPRequest, nil)
	res.DontSend = true
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to upgrade connection: %v", serviceLogPrefix, err))
		return nil
	}

	client, err := c.Open(req, res, NewWSWriter(conn))
	if err != nil {
		conn.Close()
		return nil
	}
	defer c.Detach(client)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn(fmt.Sprintf("%s - websocket error for %s: %v", serviceLogPrefix, client.DeviceID(), err))
			}
			return nil
		}

		var sub SubscribeRequest
		if err := json.Unmarshal(msg, &sub); err != nil {
			slog.Warn(fmt.Sprintf("%s - invalid subscribe message from %s: %v", serviceLogPrefix, client.DeviceID(), err))
			continue
		}
		if err := c.Subscribe(client.DeviceID(), sub.EventIDs()); err != nil {
			return nil
		}
	}
}

func (c *Caw) handleSubscribe(_ context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	var in SubscribeRequest
	if err := req.DecodeData(&in); err != nil {
		res.Fail(fmt.Sprintf("invalid subscribe payload: %v", err))
		return nil
	}

	if err := c.Subscribe(req.DeviceID, in.EventIDs()); err != nil {
		c.channelMissing(req, res, cc, err)
		return nil
	}

	client, _ := c.Client(req.DeviceID)
	if client != nil {
		res.Data = SubscribeResponse{Subscribed: client.Events()}
	}
	return nil
}

func (c *Caw) handleUnsubscribe(_ context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	var in SubscribeRequest
	if err := req.DecodeData(&in); err != nil {
		res.Fail(fmt.Sprintf("invalid unsubscribe payload: %v", err))
		return nil
	}

	ids := in.EventIDs()
	if err := c.Unsubscribe(req.DeviceID, ids); err != nil {
		c.channelMissing(req, res, cc, err)
		return nil
	}

	out := SubscribeResponse{Subscribed: []string{}}
	if client, ok := c.Client(req.DeviceID); ok && len(ids) > 0 {
		out.Subscribed = client.Events()
	}
	res.Data = out
	return nil
}

func (c *Caw) channelMissing(req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext, err error) {
	if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrChannelClosed) {
		res.Comment = fmt.Sprintf("%v: %s", err, req.DeviceID)
		dispatcher.SendNotFound(cc, res)
		return
	}
	res.Fail(err.Error())
}
