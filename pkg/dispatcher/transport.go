package dispatcher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const transportLogPrefix = "dispatcher:transport"

// WriteResponse writes res as indented JSON with the given status code.
func WriteResponse(w http.ResponseWriter, status int, res *Response) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", transportLogPrefix, err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// SendNotFound answers the call with a 404 carrying res and marks res as already sent.
// Over non-HTTP transports only the response fields are updated.
func SendNotFound(cc *CallContext, res *Response) {
	res.OK = false
	res.ChainOK = false
	if cc == nil || cc.Writer == nil {
		return
	}
	WriteResponse(cc.Writer, http.StatusNotFound, res)
	res.DontSend = true
}
