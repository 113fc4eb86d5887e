package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/waterdesk/outbox"
)

const requestTimeout = 60 * time.Second

// Outbox is the part of *outbox.Manager the panel drives.
type Outbox interface {
	ListPending(ctx context.Context) ([]outbox.Entry, error)
	PendingCount(ctx context.Context) (int, error)
	Flush(ctx context.Context) (outbox.FlushResult, error)
	ClearAll(ctx context.Context) error
}

// Handler serves the debug panel.
type Handler struct {
	outbox    Outbox
	collector *Collector
	logger    outbox.Logger
}

// NewHandler returns a Handler. collector and logger may be nil.
func NewHandler(ob Outbox, collector *Collector, logger outbox.Logger) *Handler {
	if ob == nil {
		panic("admin: nil Outbox")
	}
	if collector == nil {
		collector = NewCollector()
	}
	if logger == nil {
		logger = outbox.NopLogger{}
	}

	return &Handler{outbox: ob, collector: collector, logger: logger}
}

// Routes returns the chi router for the panel.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.Health)
	r.Route("/outbox", func(r chi.Router) {
		r.Get("/", h.ListPending)
		r.Delete("/", h.Clear)
		r.Post("/flush", h.Flush)
		r.Get("/stats", h.Stats)
	})

	return r
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type listResponse struct {
	Count   int            `json:"count"`
	Entries []outbox.Entry `json:"entries"`
}

type flushResponse struct {
	Delivered       int     `json:"delivered"`
	Rejected        int     `json:"rejected"`
	Processed       int     `json:"processed"`
	TransportFailed bool    `json:"transport_failed"`
	Error           string  `json:"error,omitempty"`
	DurationMillis  float64 `json:"duration_ms"`
	Shared          bool    `json:"shared"`
}

type statsResponse struct {
	Stats
	Pending int `json:"pending"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	if errors.Is(err, outbox.ErrStorageUnavailable) {
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
	}
	h.logger.Error("outbox admin request failed", "err", err)
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListPending returns queued entries in replay order.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.outbox.ListPending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Count: len(entries), Entries: entries})
}

// Flush runs one pass. The pass is detached from the request so a dropped
// connection does not cut it short for callers that joined it.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	result, err := h.outbox.Flush(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := flushResponse{
		Delivered:       result.Delivered,
		Rejected:        result.Rejected,
		Processed:       result.Processed,
		TransportFailed: result.TransportFailed,
		DurationMillis:  millis(int64(result.Duration)),
		Shared:          result.Shared,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Clear removes every queued entry.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.outbox.ClearAll(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the collector counters with a fresh pending count.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	pending, err := h.outbox.PendingCount(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Stats: h.collector.Stats(), Pending: pending})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug(
			"outbox admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
