// Package dispatcher executes Straca request envelopes, including chained sub-requests.
package dispatcher

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
)

// Request is the JSON envelope for an incoming Straca call.
type Request struct {
	Service     string          `json:"service"`
	Operation   string          `json:"operation"`
	OperationID string          `json:"operationId"`
	DeviceID    string          `json:"deviceId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Method      string          `json:"method,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Subrequest  *Request        `json:"subrequest,omitempty"`
}

// DecodeData unmarshals the request payload into v.
func (r *Request) DecodeData(v interface{}) error {
	if len(r.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(r.Data, v)
}

// Response is the JSON envelope returned for a Request.
type Response struct {
	Operation   string      `json:"operation"`
	OperationID string      `json:"operationId"`
	OK          bool        `json:"ok"`
	ChainOK     bool        `json:"chainOk"`
	Display     string      `json:"display,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Data        interface{} `json:"data"`
	DontSend    bool        `json:"-"`
	Subresponse *Response   `json:"subresponse,omitempty"`
}

// Fail marks the response as failed with a diagnostic comment.
func (r *Response) Fail(comment string) {
	r.OK = false
	r.ChainOK = false
	r.Comment = comment
}

// CoRequest pairs one envelope with its response inside a chained dispatch.
// Links exist only for the duration of one top-level Dispatch call.
type CoRequest struct {
	Request  *Request
	Response *Response
	Parent   *CoRequest
}

// Depth returns the nesting level of the link, 0 for the top-level request.
func (c *CoRequest) Depth() int {
	d := 0
	for p := c.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// CallContext carries per-call transport state to handlers.
type CallContext struct {
	// Files holds uploaded multipart files keyed by form field name.
	Files map[string][]*multipart.FileHeader

	// HTTPRequest and Writer are nil when the call did not arrive over HTTP.
	HTTPRequest *http.Request
	Writer      http.ResponseWriter

	// UserID is the authenticated user, when an auth middleware ran.
	UserID string

	// Link is the most recently entered chain link.
	Link *CoRequest
}

// Streaming reports whether the handler may take over the transport.
func (cc *CallContext) Streaming() bool {
	return cc != nil && cc.Writer != nil && cc.HTTPRequest != nil
}

// Handler executes one operation. A returned error is a fault: it aborts the
// whole dispatch and is surfaced by the transport as an internal failure.
// Expected failures are reported by setting res.OK to false.
type Handler func(ctx context.Context, req *Request, res *Response, cc *CallContext) error
