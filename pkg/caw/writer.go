package caw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stracadev/straca/pkg/dispatcher"
)

// WriteTimeout bounds one frame write so a peer that stopped reading fails
// the write instead of holding its client.
const WriteTimeout = 10 * time.Second

// Frame is one pushed event. Data.Operation echoes Event.
type Frame struct {
	Event string               `json:"event"`
	Data  *dispatcher.Response `json:"data"`
}

// Writer delivers frames over one push connection.
type Writer interface {
	WriteFrame(f Frame) error
	Close() error
}

// SSEWriter writes frames as server-sent events.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sets the event-stream headers and flushes them to the client.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", "text/event-stream")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, rc: http.NewResponseController(w)}, nil
}

var eventLineReplacer = strings.NewReplacer("\r", "", "\n", "")

// WriteFrame writes "event: <id>\ndata: <json>\n\n" and flushes.
func (s *SSEWriter) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := s.setWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventLineReplacer.Replace(f.Event), data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	// the deadline must not outlive the stream on a kept-alive connection
	return s.setWriteDeadline(time.Time{})
}

// setWriteDeadline ignores writers without deadline support.
func (s *SSEWriter) setWriteDeadline(t time.Time) error {
	if err := s.rc.SetWriteDeadline(t); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close is a no-op; the stream ends when the listen handler returns.
func (s *SSEWriter) Close() error {
	return nil
}

// WSWriter writes frames as JSON text messages on a WebSocket.
type WSWriter struct {
	conn *websocket.Conn
}

// NewWSWriter wraps an upgraded WebSocket connection.
func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (w *WSWriter) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSWriter) Close() error {
	return w.conn.Close()
}
