package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const logPrefix = "dispatcher:dispatch"

// Resolver maps a (service, operation) pair to its handler. A non-nil error
// is a routing failure and its message becomes the response comment.
type Resolver interface {
	Lookup(service, operation string) (Handler, error)
}

// Observer receives one call per executed envelope, including chained ones.
type Observer interface {
	ObserveDispatch(service, operation string, ok, chainOK bool, elapsed time.Duration)
}

// Dispatcher resolves envelopes through a Resolver and executes them.
type Dispatcher struct {
	resolver Resolver
	observer Observer
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(resolver Resolver) *Dispatcher {
	return &Dispatcher{resolver: resolver}
}

// SetObserver installs a dispatch observer (e.g. metrics). Must be called before traffic.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Dispatch executes req and, when its handler succeeds, its chain of sub-requests.
// Routing failures never produce an error; only handler faults do, and a fault at
// any depth aborts the whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, cc *CallContext) (*Response, error) {
	if cc == nil {
		cc = &CallContext{}
	}
	return d.execute(ctx, req, cc, nil)
}

func (d *Dispatcher) execute(ctx context.Context, req *Request, cc *CallContext, parent *CoRequest) (*Response, error) {
	start := time.Now()
	res := &Response{
		Operation:   req.Operation,
		OperationID: req.OperationID,
		OK:          true,
		ChainOK:     true,
	}
	link := &CoRequest{Request: req, Response: res, Parent: parent}
	slog.Debug(fmt.Sprintf("%s - service=%s operation=%s id=%s device=%s depth=%d", logPrefix, req.Service, req.Operation, req.OperationID, req.DeviceID, link.Depth()))
	if parent != nil {
		parent.Response.Subresponse = res
	}

	handler, err := d.resolver.Lookup(req.Service, req.Operation)
	if err != nil {
		res.Fail(err.Error())
		slog.Debug(fmt.Sprintf("%s - not found: %v", logPrefix, err))
		d.observe(req, res, start)
		return res, nil
	}

	cc.Link = link
	if err := handler(ctx, req, res, cc); err != nil {
		return nil, fmt.Errorf("%s - %s.%s: %w", logPrefix, req.Service, req.Operation, err)
	}
	res.ChainOK = res.OK

	if res.OK && req.Subrequest != nil {
		sub, err := d.execute(ctx, req.Subrequest, cc, link)
		if err != nil {
			return nil, err
		}
		res.ChainOK = sub.OK && sub.ChainOK
		if sub.DontSend {
			res.DontSend = true
		}
	}

	d.observe(req, res, start)
	return res, nil
}

func (d *Dispatcher) observe(req *Request, res *Response, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveDispatch(req.Service, req.Operation, res.OK, res.ChainOK, time.Since(start))
	}
}
