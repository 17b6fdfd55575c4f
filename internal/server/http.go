package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stracadev/straca/pkg/auth"
	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/manifest"
	"github.com/stracadev/straca/pkg/registry"
)

const httpLogPrefix = "server:http"

// DefaultMaxUploadBytes bounds request bodies and multipart memory when
// HTTPOptions.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 32 << 20

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Dispatcher *dispatcher.Dispatcher
	Registry   *registry.Registry
	Manifest   *manifest.Manifest

	// Auth installs the bearer middleware on the /straca routes when non-nil.
	Auth *auth.Manager

	// Metrics is served on /metrics when non-nil.
	Metrics http.Handler

	MaxUploadBytes int64
	HealthTimeout  time.Duration
}

type httpHandler struct {
	opts HTTPOptions
}

// NewHTTPHandler builds the chi router serving envelopes on /straca and the
// health, documentation and manifest endpoints.
func NewHTTPHandler(opts HTTPOptions) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.Manifest == nil {
		opts.Manifest = manifest.Default()
	}
	h := &httpHandler{opts: opts}

	r := chi.NewRouter()
	r.Use(recoverer)

	r.Get("/", h.handleHome())
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/describe", h.handleDescribe)
	r.Get("/openapi.json", h.handleOpenAPI)
	r.Get("/docs", h.handleDocs())
	r.Get("/manifest.json", h.handleManifest)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware)
		}
		r.HandleFunc("/straca", h.handleEnvelope)
		r.HandleFunc("/straca/{service}/{operation}", h.handleEnvelope)
	})
	return r
}

// recoverer turns a handler panic into a 500 and keeps the process alive.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error(fmt.Sprintf("%s - panic serving %s %s: %v\n%s", httpLogPrefix, r.Method, r.URL.Path, rec, debug.Stack()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *httpHandler) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	req, files, err := h.readEnvelope(w, r)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - malformed envelope on %s: %v", httpLogPrefix, r.URL.Path, err))
		dispatcher.WriteResponse(w, http.StatusBadRequest, &dispatcher.Response{
			Comment: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}
	if req.Service == "" {
		req.Service = chi.URLParam(r, "service")
	}
	if req.Operation == "" {
		req.Operation = chi.URLParam(r, "operation")
	}

	cc := &dispatcher.CallContext{
		Files:       files,
		HTTPRequest: r,
		Writer:      w,
	}
	if userID, ok := auth.UserFromContext(r.Context()); ok {
		cc.UserID = userID
	}

	res, err := h.opts.Dispatcher.Dispatch(r.Context(), req, cc)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %s.%s failed: %v", httpLogPrefix, req.Service, req.Operation, err))
		dispatcher.WriteResponse(w, http.StatusInternalServerError, &dispatcher.Response{
			Operation:   req.Operation,
			OperationID: req.OperationID,
			Comment:     "internal error",
		})
		return
	}
	if res.DontSend {
		return
	}
	dispatcher.WriteResponse(w, http.StatusOK, res)
}

// readEnvelope extracts the Request from the query (GET), the "body" form
// field (multipart) or the raw JSON body. An empty envelope is valid.
func (h *httpHandler) readEnvelope(w http.ResponseWriter, r *http.Request) (*dispatcher.Request, map[string][]*multipart.FileHeader, error) {
	var (
		raw   []byte
		files map[string][]*multipart.FileHeader
	)

	switch {
	case r.Method == http.MethodGet:
		raw = []byte(r.URL.Query().Get("body"))
	case isMultipart(r):
		if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
			return nil, nil, err
		}
		raw = []byte(r.FormValue("body"))
		files = r.MultipartForm.File
	default:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes))
		if err != nil {
			return nil, nil, err
		}
		raw = body
	}

	req := &dispatcher.Request{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, files, nil
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, nil, err
	}
	return req, files, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
