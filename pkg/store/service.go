package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/registry"
)

const logPrefix = "store:service"

// ServiceName is the default name of the message store service.
const ServiceName = "stracatore"

// EventFirer pushes an event to subscribed channels.
type EventFirer interface {
	FireEvent(ctx context.Context, eventID string, data interface{})
}

// Options configures a Service.
type Options struct {
	Store MessageStore
	// Firer, when set, receives "<service>.<messageType>" events for saved messages.
	Firer EventFirer
}

// Service is the stracatore message store service.
type Service struct {
	name      string
	store     MessageStore
	firer     EventFirer
	types     *TypeManager
	listeners *Listeners
}

// New creates a Service. A nil Store uses a MemoryStore.
func New(opts Options) *Service {
	s := &Service{
		name:      ServiceName,
		store:     opts.Store,
		firer:     opts.Firer,
		types:     NewTypeManager(),
		listeners: &Listeners{},
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	return s
}

// Types returns the message type manager.
func (s *Service) Types() *TypeManager {
	return s.types
}

// Listen registers a store listener, see Listeners.Listen.
func (s *Service) Listen(tag, prefix string, fn ListenerFunc) (*ListenerContext, error) {
	return s.listeners.Listen(tag, prefix, fn)
}

// Save stores msg, filling messageUid and created when absent. Registered type
// behavior runs first: the type's new-message callback gets the earliest
// message the save knocks out. Knocked-out messages are deleted only once msg
// is stored.
func (s *Service) Save(ctx context.Context, msg *Message) (*Message, error) {
	if msg.Meta.MessageUID == "" {
		msg.Meta.MessageUID = uuid.NewString()
	}
	if msg.Meta.Created == "" {
		msg.Meta.Created = time.Now().UTC().Format(time.RFC3339)
	}
	slog.Debug(fmt.Sprintf("%s - save %s %s", logPrefix, msg.Meta.MessageType, msg.Meta.MessageUID))

	var knockedOut []*Message
	if mt, ok := s.types.Find(msg.Meta.MessageType); ok {
		var prev *Message
		if mt.KnockOut {
			found, err := s.store.LoadByExample(ctx, &Message{Meta: Meta{MessageType: msg.Meta.MessageType}})
			if err != nil {
				return nil, fmt.Errorf("%s - knock-out load %s: %w", logPrefix, msg.Meta.MessageType, err)
			}
			for _, old := range found {
				if old.Meta.MessageUID != msg.Meta.MessageUID {
					knockedOut = append(knockedOut, old)
				}
			}
			if len(knockedOut) > 0 {
				prev = knockedOut[0]
			}
		}
		if mt.onNew != nil {
			if err := mt.onNew(ctx, msg, prev); err != nil {
				return nil, fmt.Errorf("%s - onNewMessage %s: %w", logPrefix, msg.Meta.MessageType, err)
			}
		}
	}

	if err := s.store.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("%s - save %s: %w", logPrefix, msg.Meta.MessageUID, err)
	}

	for _, old := range knockedOut {
		example := &Message{Meta: Meta{MessageType: old.Meta.MessageType, MessageUID: old.Meta.MessageUID}}
		if _, err := s.store.DeleteByExample(ctx, example); err != nil {
			return nil, fmt.Errorf("%s - knock-out delete %s: %w", logPrefix, old.Meta.MessageUID, err)
		}
	}

	s.listeners.notify(ctx, msg)
	if s.firer != nil {
		s.firer.FireEvent(ctx, s.name+"."+msg.Meta.MessageType, msg)
	}
	return msg, nil
}

// Load returns the messages selected by req.Example. When none match and the
// example's type has a not-found callback, its message is returned instead.
func (s *Service) Load(ctx context.Context, req *LoadRequest) ([]*Message, error) {
	slog.Debug(fmt.Sprintf("%s - load %s %s", logPrefix, req.Example.Meta.MessageType, req.Example.Meta.MessageUID))

	found, err := s.store.LoadByExample(ctx, &req.Example)
	if err != nil {
		return nil, fmt.Errorf("%s - load %s: %w", logPrefix, req.Example.Meta.MessageType, err)
	}
	if len(found) > 0 {
		return found, nil
	}

	mt, ok := s.types.Find(req.Example.Meta.MessageType)
	if !ok || mt.onNotFound == nil {
		return []*Message{}, nil
	}
	msg, err := mt.onNotFound(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s - onMessageNotFound %s: %w", logPrefix, req.Example.Meta.MessageType, err)
	}
	if msg == nil {
		return []*Message{}, nil
	}
	return []*Message{msg}, nil
}

// Register adds the save and load operations to reg. An empty name uses ServiceName.
func (s *Service) Register(reg *registry.Registry, name string) error {
	if name != "" {
		s.name = name
	}
	return reg.ConfigureService(s.name).
		Version("1.0.0").
		Describe("Message store").
		Handle("save", s.handleSave, registry.Metadata{
			Description:       "Stores a message",
			Payload:           Message{Meta: Meta{MessageType: "note.personal"}, Content: []byte(`{"text":"hello"}`)},
			PayloadRationale:  "messageUid and created are assigned when absent; device and creator default to the caller",
			Response:          Message{},
			ResponseRationale: "The stored message",
		}).
		Handle("load", s.handleLoad, registry.Metadata{
			Description:       "Loads messages by example",
			Payload:           LoadRequest{Example: Message{Meta: Meta{MessageType: "note."}}},
			PayloadRationale:  "messageUid matches exactly, messageType by prefix",
			Response:          []Message{},
			ResponseRationale: "Matching messages in store order",
		}).
		Err()
}

func (s *Service) handleSave(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	var msg Message
	if err := req.DecodeData(&msg); err != nil {
		res.Fail(fmt.Sprintf("invalid message: %v", err))
		return nil
	}
	if err := validate.Struct(&msg); err != nil {
		res.Fail(validationMessage(err))
		return nil
	}
	if msg.Meta.Device == "" {
		msg.Meta.Device = req.DeviceID
	}
	if msg.Meta.Creator == "" {
		msg.Meta.Creator = callerID(req, cc)
	}

	saved, err := s.Save(ctx, &msg)
	if err != nil {
		return err
	}
	res.Data = saved
	return nil
}

func (s *Service) handleLoad(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response, _ *dispatcher.CallContext) error {
	var lr LoadRequest
	if err := req.DecodeData(&lr); err != nil {
		res.Fail(fmt.Sprintf("invalid load request: %v", err))
		return nil
	}

	msgs, err := s.Load(ctx, &lr)
	if err != nil {
		return err
	}
	res.Data = msgs
	return nil
}

func callerID(req *dispatcher.Request, cc *dispatcher.CallContext) string {
	if cc != nil && cc.UserID != "" {
		return cc.UserID
	}
	return req.UserID
}
