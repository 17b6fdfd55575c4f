package caw

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/registry"
)

// newTestServer routes /straca/caw/{operation} through a dispatcher with the
// caw service registered.
func newTestServer(t *testing.T, c *Caw) *httptest.Server {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	if err := c.Register(reg, ""); err != nil {
		t.Fatalf("caw:service_test - Register failed: %v", err)
	}
	d := dispatcher.NewDispatcher(reg)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &dispatcher.Request{
			Service:   "caw",
			Operation: strings.TrimPrefix(r.URL.Path, "/straca/caw/"),
			DeviceID:  r.URL.Query().Get("deviceId"),
		}
		if body := r.URL.Query().Get("data"); body != "" {
			req.Data = json.RawMessage(body)
		}
		res, err := d.Dispatch(r.Context(), req, &dispatcher.CallContext{HTTPRequest: r, Writer: w})
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !res.DontSend {
			dispatcher.WriteResponse(w, http.StatusOK, res)
		}
	}))
}

func subscribeQuery(deviceID, eventID string) string {
	data, _ := json.Marshal(SubscribeRequest{Subscribe: []EventRecord{{EventID: eventID}}})
	return url.Values{"deviceId": {deviceID}, "data": {string(data)}}.Encode()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("caw:service_test - timeout: %s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListen_SSEStream(t *testing.T) {
	c := New(Options{})
	srv := newTestServer(t, c)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/straca/caw/listen?deviceId=dev-1", nil)
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("caw:service_test - listen request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("caw:service_test - Content-Type = %q", ct)
	}
	waitFor(t, func() bool { return c.Count() == 1 }, "channel not registered")

	sub, err := http.Get(srv.URL + "/straca/caw/subscribe?" + subscribeQuery("dev-1", "order."))
	if err != nil {
		t.Fatalf("caw:service_test - subscribe failed: %v", err)
	}
	sub.Body.Close()
	if sub.StatusCode != http.StatusOK {
		t.Fatalf("caw:service_test - subscribe status = %d", sub.StatusCode)
	}

	c.FireEvent(context.Background(), "order.created", map[string]int{"id": 1})

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("caw:service_test - read event line: %v", err)
	}
	dataLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("caw:service_test - read data line: %v", err)
	}
	if eventLine != "event: order.created\n" {
		t.Errorf("caw:service_test - event line = %q", eventLine)
	}

	var frame Frame
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &frame); err != nil {
		t.Fatalf("caw:service_test - invalid frame %q: %v", dataLine, err)
	}
	if frame.Event != "order.created" || frame.Data.Operation != "order.created" || !frame.Data.OK {
		t.Errorf("caw:service_test - frame = %+v", frame)
	}

	cancel()
	waitFor(t, func() bool { return c.Count() == 0 }, "channel not closed after disconnect")
}

func TestListen_MissingDeviceClosesStream(t *testing.T) {
	c := New(Options{})
	srv := newTestServer(t, c)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/straca/caw/listen")
	if err != nil {
		t.Fatalf("caw:service_test - listen request failed: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if n != 0 {
		t.Errorf("caw:service_test - expected empty stream, got %q", buf[:n])
	}
	if c.Count() != 0 {
		t.Errorf("caw:service_test - channel registered without device id")
	}
}

func TestSubscribe_NoChannelIs404(t *testing.T) {
	c := New(Options{})
	srv := newTestServer(t, c)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/straca/caw/subscribe?" + subscribeQuery("ghost", "a"))
	if err != nil {
		t.Fatalf("caw:service_test - subscribe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("caw:service_test - status = %d, want 404", resp.StatusCode)
	}
	var res dispatcher.Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("caw:service_test - body decode failed: %v", err)
	}
	if res.OK || !strings.Contains(res.Comment, "channel not found") {
		t.Errorf("caw:service_test - response = %+v", res)
	}
}

func TestListen_RequiresStreamingTransport(t *testing.T) {
	c := New(Options{})
	res := &dispatcher.Response{OK: true, ChainOK: true}
	if err := c.handleListen(context.Background(), &dispatcher.Request{DeviceID: "d"}, res, &dispatcher.CallContext{}); err != nil {
		t.Fatalf("caw:service_test - unexpected error: %v", err)
	}
	if res.OK {
		t.Error("caw:service_test - listen without writer should fail")
	}
}

func TestListenWS(t *testing.T) {
	c := New(Options{})
	srv := newTestServer(t, c)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/straca/caw/listenws?deviceId=ws-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("caw:service_test - dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(SubscribeRequest{Subscribe: []EventRecord{{EventID: "user."}}}); err != nil {
		t.Fatalf("caw:service_test - write subscribe failed: %v", err)
	}
	waitFor(t, func() bool {
		client, ok := c.Client("ws-1")
		return ok && len(client.Events()) == 1
	}, "websocket subscription not installed")

	c.FireLocal("user.login", "alice")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("caw:service_test - read frame failed: %v", err)
	}
	if frame.Event != "user.login" || frame.Data.Data != "alice" {
		t.Errorf("caw:service_test - frame = %+v", frame)
	}

	conn.Close()
	waitFor(t, func() bool { return c.Count() == 0 }, "websocket channel not closed")
}
