package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/stracadev/straca/pkg/commsutil"
	"github.com/stracadev/straca/pkg/dispatcher"
)

const commsLogPrefix = "server:comms"

// CommsTransport serves envelopes over COMMS request/reply. The base subject
// carries complete envelopes; "<subject>.<service>.<operation>" fills missing
// service and operation from the subject.
type CommsTransport struct {
	nc      *comms.Conn
	subject string
	disp    *dispatcher.Dispatcher
	timeout time.Duration

	mu     sync.Mutex
	subs   []*comms.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommsTransport creates a transport. An empty subject uses
// commsutil.SubjectRPC; a non-positive timeout disables the per-request bound.
func NewCommsTransport(nc *comms.Conn, subject string, disp *dispatcher.Dispatcher, timeout time.Duration) *CommsTransport {
	if subject == "" {
		subject = commsutil.SubjectRPC
	}
	return &CommsTransport{nc: nc, subject: subject, disp: disp, timeout: timeout}
}

// Start subscribes to the RPC subjects. Requests are served until Stop or
// until ctx is cancelled.
func (t *CommsTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	for _, subject := range []string{t.subject, t.subject + ".>"} {
		sub, err := t.nc.Subscribe(subject, func(msg *comms.Msg) {
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.serve(ctx, msg)
			}()
		})
		if err != nil {
			cancel()
			for _, s := range t.subs {
				s.Unsubscribe()
			}
			t.subs = nil
			return fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
		}
		t.subs = append(t.subs, sub)
	}
	t.cancel = cancel
	slog.Info(fmt.Sprintf("%s - Subscribed to %s and %s.>", commsLogPrefix, t.subject, t.subject))
	return nil
}

// Stop unsubscribes, cancels in-flight requests and waits for them to reply.
func (t *CommsTransport) Stop() {
	t.mu.Lock()
	subs, cancel := t.subs, t.cancel
	t.subs, t.cancel = nil, nil
	t.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe failed: %v", commsLogPrefix, err))
		}
	}
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

type dispatchResult struct {
	res *dispatcher.Response
	err error
}

func (t *CommsTransport) serve(ctx context.Context, msg *comms.Msg) {
	var req dispatcher.Request
	if len(msg.Data) > 0 {
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to decode request on %s: %v", commsLogPrefix, msg.Subject, err))
			t.reply(msg, &dispatcher.Response{Comment: fmt.Sprintf("invalid request body: %v", err)})
			return
		}
	}
	if svc, op, ok := commsutil.ParseServiceSubject(t.subject, msg.Subject); ok {
		if req.Service == "" {
			req.Service = svc
		}
		if req.Operation == "" {
			req.Operation = op
		}
	}

	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	done := make(chan dispatchResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- dispatchResult{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		res, err := t.disp.Dispatch(reqCtx, &req, nil)
		done <- dispatchResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			slog.Error(fmt.Sprintf("%s - %s.%s failed: %v", commsLogPrefix, req.Service, req.Operation, out.err))
			t.reply(msg, &dispatcher.Response{Operation: req.Operation, OperationID: req.OperationID, Comment: "internal error"})
			return
		}
		t.reply(msg, out.res)
	case <-reqCtx.Done():
		slog.Warn(fmt.Sprintf("%s - %s.%s timed out: %v", commsLogPrefix, req.Service, req.Operation, reqCtx.Err()))
		t.reply(msg, &dispatcher.Response{Operation: req.Operation, OperationID: req.OperationID, Comment: "request timeout"})
	}
}

func (t *CommsTransport) reply(msg *comms.Msg, res *dispatcher.Response) {
	if err := commsutil.Reply(msg, res); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to reply on %s: %v", commsLogPrefix, msg.Subject, err))
	}
}
