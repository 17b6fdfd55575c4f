package caw

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/events"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

func (w *recordingWriter) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, f)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) events() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, f := range w.frames {
		if f.Event != PingEvent {
			out = append(out, f.Event)
		}
	}
	return out
}

func (w *recordingWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type countingObserver struct {
	mu        sync.Mutex
	open      int
	delivered int
	failed    int
}

func (o *countingObserver) ObserveChannels(open int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = open
}

func (o *countingObserver) ObserveFire(_ string, delivered, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered += delivered
	o.failed += failed
}

func openTestChannel(t *testing.T, c *Caw, deviceID string) (*Client, *recordingWriter) {
	t.Helper()
	w := &recordingWriter{}
	client, err := c.Open(&dispatcher.Request{Service: "caw", Operation: "listen", OperationID: "listen-" + deviceID, DeviceID: deviceID},
		&dispatcher.Response{Operation: "listen", OperationID: "listen-" + deviceID, OK: true, ChainOK: true}, w)
	if err != nil {
		t.Fatalf("caw:caw_test - Open(%s) failed: %v", deviceID, err)
	}
	return client, w
}

func TestOpen_Rejections(t *testing.T) {
	c := New(Options{Validate: func(req *dispatcher.Request) bool { return req.DeviceID != "banned" }})

	if _, err := c.Open(&dispatcher.Request{}, nil, &recordingWriter{}); !errors.Is(err, ErrMissingDevice) {
		t.Errorf("caw:caw_test - missing device: err = %v", err)
	}
	if _, err := c.Open(&dispatcher.Request{DeviceID: "banned"}, nil, &recordingWriter{}); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("caw:caw_test - invalid device: err = %v", err)
	}
	if c.Count() != 0 {
		t.Errorf("caw:caw_test - rejected channels registered: %d", c.Count())
	}
}

func TestOpen_ReplacesPriorChannel(t *testing.T) {
	c := New(Options{})
	first, firstW := openTestChannel(t, c, "dev")
	if err := c.Subscribe("dev", []string{"order."}); err != nil {
		t.Fatalf("caw:caw_test - Subscribe failed: %v", err)
	}

	second, _ := openTestChannel(t, c, "dev")

	if first.State() != StateClosed {
		t.Errorf("caw:caw_test - first channel state = %s, want closed", first.State())
	}
	if !firstW.isClosed() {
		t.Error("caw:caw_test - first writer not closed")
	}
	if second.State() != StateOpen {
		t.Errorf("caw:caw_test - second channel state = %s, want open", second.State())
	}
	if c.Count() != 1 {
		t.Errorf("caw:caw_test - Count = %d, want 1", c.Count())
	}
	if n := c.FireLocal("order.created", nil); n != 0 {
		t.Errorf("caw:caw_test - replaced channel still subscribed, delivered %d", n)
	}
	select {
	case <-first.Done():
	default:
		t.Error("caw:caw_test - first channel Done not closed")
	}
}

func TestSubscribe_ChannelNotFound(t *testing.T) {
	c := New(Options{})
	if err := c.Subscribe("ghost", []string{"a"}); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("caw:caw_test - err = %v, want ErrChannelNotFound", err)
	}
}

func TestSubscribe_Dedupes(t *testing.T) {
	c := New(Options{})
	client, _ := openTestChannel(t, c, "dev")

	if err := c.Subscribe("dev", []string{"a", "b", "a"}); err != nil {
		t.Fatalf("caw:caw_test - Subscribe failed: %v", err)
	}
	if err := c.Subscribe("dev", []string{"b"}); err != nil {
		t.Fatalf("caw:caw_test - Subscribe failed: %v", err)
	}
	if got := client.Events(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("caw:caw_test - Events = %v, want [a b]", got)
	}
}

func TestFireEvent_FanOut(t *testing.T) {
	var published []string
	obs := &countingObserver{}
	c := New(Options{
		Observer: obs,
		Publisher: events.NewCallbackPublisher(func(_ context.Context, eventID string, _ interface{}) error {
			published = append(published, eventID)
			return nil
		}),
	})

	_, wOrders := openTestChannel(t, c, "orders")
	_, wAll := openTestChannel(t, c, "all")
	_, wUsers := openTestChannel(t, c, "users")
	mustSubscribe(t, c, "orders", "order.")
	mustSubscribe(t, c, "all", "")
	mustSubscribe(t, c, "users", "user.")

	c.FireEvent(context.Background(), "order.created", map[string]int{"id": 7})

	if got := wOrders.events(); len(got) != 1 || got[0] != "order.created" {
		t.Errorf("caw:caw_test - orders got %v", got)
	}
	if got := wAll.events(); len(got) != 1 {
		t.Errorf("caw:caw_test - all got %v", got)
	}
	if got := wUsers.events(); len(got) != 0 {
		t.Errorf("caw:caw_test - users got %v", got)
	}
	if len(published) != 1 || published[0] != "order.created" {
		t.Errorf("caw:caw_test - published = %v", published)
	}
	if obs.delivered != 2 {
		t.Errorf("caw:caw_test - observer delivered = %d, want 2", obs.delivered)
	}
}

func TestFireEvent_FrameShape(t *testing.T) {
	c := New(Options{})
	_, w := openTestChannel(t, c, "dev")
	mustSubscribe(t, c, "dev", "stracatore.")

	c.FireLocal("stracatore.note", "payload")

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) != 1 {
		t.Fatalf("caw:caw_test - frames = %d, want 1", len(w.frames))
	}
	f := w.frames[0]
	if f.Data.Operation != "stracatore.note" || !f.Data.OK || f.Data.Data != "payload" {
		t.Errorf("caw:caw_test - frame data = %+v", f.Data)
	}
	if f.Data.OperationID != "listen-dev" {
		t.Errorf("caw:caw_test - frame operationId = %q, want listen-dev", f.Data.OperationID)
	}
}

func TestFireEvent_WriteFailureIsolated(t *testing.T) {
	obs := &countingObserver{}
	c := New(Options{Observer: obs})
	_, bad := openTestChannel(t, c, "bad")
	_, good := openTestChannel(t, c, "good")
	bad.mu.Lock()
	bad.err = errors.New("broken pipe")
	bad.mu.Unlock()
	mustSubscribe(t, c, "bad", "order.")
	mustSubscribe(t, c, "good", "order.")

	n := c.FireLocal("order.created", nil)

	if n != 1 {
		t.Errorf("caw:caw_test - delivered = %d, want 1", n)
	}
	if got := good.events(); len(got) != 1 {
		t.Errorf("caw:caw_test - good subscriber got %v", got)
	}
	if obs.failed != 1 {
		t.Errorf("caw:caw_test - observer failed = %d, want 1", obs.failed)
	}
}

func TestClose_RemovesSubscriptions(t *testing.T) {
	obs := &countingObserver{}
	c := New(Options{Observer: obs})
	client, w := openTestChannel(t, c, "dev")
	mustSubscribe(t, c, "dev", "order.")

	if err := c.Close("dev"); err != nil {
		t.Fatalf("caw:caw_test - Close failed: %v", err)
	}
	if err := c.Close("dev"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("caw:caw_test - second Close err = %v", err)
	}

	if client.State() != StateClosed {
		t.Errorf("caw:caw_test - state = %s, want closed", client.State())
	}
	if c.FireLocal("order.created", nil) != 0 || len(w.events()) != 0 {
		t.Error("caw:caw_test - closed channel received an event")
	}
	if err := c.Subscribe("dev", []string{"x"}); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("caw:caw_test - subscribe after close err = %v", err)
	}
	if obs.open != 0 {
		t.Errorf("caw:caw_test - observer open = %d, want 0", obs.open)
	}
}

func TestUnsubscribe(t *testing.T) {
	c := New(Options{})
	client, _ := openTestChannel(t, c, "dev")
	mustSubscribe(t, c, "dev", "order.")
	mustSubscribe(t, c, "dev", "user.")

	if err := c.Unsubscribe("dev", []string{"order.", "never"}); err != nil {
		t.Fatalf("caw:caw_test - Unsubscribe failed: %v", err)
	}
	if got := client.Events(); len(got) != 1 || got[0] != "user." {
		t.Errorf("caw:caw_test - Events = %v, want [user.]", got)
	}
	if c.FireLocal("order.created", nil) != 0 {
		t.Error("caw:caw_test - unsubscribed prefix still delivered")
	}

	if err := c.Unsubscribe("dev", nil); err != nil {
		t.Fatalf("caw:caw_test - Unsubscribe all failed: %v", err)
	}
	if client.State() != StateClosed || c.Count() != 0 {
		t.Error("caw:caw_test - empty unsubscribe did not close the channel")
	}
}

func TestDetach_OnlyCurrentChannel(t *testing.T) {
	c := New(Options{})
	first, _ := openTestChannel(t, c, "dev")
	second, _ := openTestChannel(t, c, "dev")

	c.Detach(first)

	if _, ok := c.Client("dev"); !ok {
		t.Fatal("caw:caw_test - Detach of replaced channel removed the current one")
	}
	c.Detach(second)
	if _, ok := c.Client("dev"); ok {
		t.Error("caw:caw_test - Detach of current channel left it registered")
	}
}

func TestPing(t *testing.T) {
	c := New(Options{PingInterval: 10 * time.Millisecond})
	_, w := openTestChannel(t, c, "dev")
	defer c.Shutdown()

	deadline := time.After(2 * time.Second)
	for {
		w.mu.Lock()
		var pinged bool
		for _, f := range w.frames {
			if f.Event == PingEvent {
				pinged = true
			}
		}
		w.mu.Unlock()
		if pinged {
			return
		}
		select {
		case <-deadline:
			t.Fatal("caw:caw_test - no ping frame received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestShutdown(t *testing.T) {
	c := New(Options{})
	a, _ := openTestChannel(t, c, "a")
	b, _ := openTestChannel(t, c, "b")

	c.Shutdown()

	if a.State() != StateClosed || b.State() != StateClosed || c.Count() != 0 {
		t.Error("caw:caw_test - Shutdown left channels open")
	}
}

func mustSubscribe(t *testing.T, c *Caw, deviceID, prefix string) {
	t.Helper()
	if err := c.Subscribe(deviceID, []string{prefix}); err != nil {
		t.Fatalf("caw:caw_test - Subscribe(%s, %q) failed: %v", deviceID, prefix, err)
	}
}
