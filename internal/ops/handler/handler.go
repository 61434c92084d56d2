// Package handler exposes the operator HTTP surface: health, metrics, failed
// outcome lookup and manual cycle triggering.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credsync/internal/reconcile/models"
	"credsync/internal/reconcile/processlog"
	"credsync/pkg/platform/middleware/admin"
	"credsync/pkg/platform/sentinel"
)

const defaultFailedLookback = 24 * time.Hour

// CycleTrigger starts reconciliation cycles on demand.
type CycleTrigger interface {
	TriggerAsync() error
	Running() bool
}

// FailureLister reads failed processing log entries.
type FailureLister interface {
	ListFailed(ctx context.Context, window models.Window) ([]processlog.Entry, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	logger     *slog.Logger
	trigger    CycleTrigger
	failures   FailureLister
	checks     map[string]HealthCheck
	metrics    http.Handler
	adminToken string
	now        func() time.Time
}

type Option func(*Handler)

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// WithAdminToken protects POST /cycles with the X-Admin-Token header.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

func WithMetricsHandler(mh http.Handler) Option {
	return func(h *Handler) {
		h.metrics = mh
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func New(trigger CycleTrigger, failures FailureLister, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		trigger:  trigger,
		failures: failures,
		checks:   map[string]HealthCheck{},
		metrics:  promhttp.Handler(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the ops routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", h.metrics)
	r.Get("/processing-log/failed", h.handleListFailed)
	r.With(admin.RequireAdminToken(h.adminToken, h.logger)).Post("/cycles", h.handleTriggerCycle)
}

// Router builds a standalone router with the ops routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			continue
		}
		results[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.trigger != nil {
		body["cycle_running"] = h.trigger.Running()
	}
	writeJSON(w, status, body)
}

type failedEntryResponse struct {
	ID           string    `json:"id"`
	RecordID     string    `json:"record_id"`
	EventType    string    `json:"event_type"`
	ErrorMessage string    `json:"error_message"`
	ProcessedAt  time.Time `json:"processed_at"`
	BatchFrom    time.Time `json:"batch_from"`
	BatchTo      time.Time `json:"batch_to"`
}

type failedListResponse struct {
	From    time.Time             `json:"from"`
	To      time.Time             `json:"to"`
	Count   int                   `json:"count"`
	Entries []failedEntryResponse `json:"entries"`
}

func (h *Handler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	window, err := h.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entries, err := h.failures.ListFailed(ctx, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list failed outcomes",
			"request_id", chimw.GetReqID(ctx),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not read processing log")
		return
	}

	resp := failedListResponse{
		From:    window.From,
		To:      window.To,
		Count:   len(entries),
		Entries: make([]failedEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, failedEntryResponse{
			ID:           e.ID.String(),
			RecordID:     e.RecordID.String(),
			EventType:    e.EventType,
			ErrorMessage: e.ErrorMessage,
			ProcessedAt:  e.ProcessedAt.UTC(),
			BatchFrom:    e.BatchFrom.UTC(),
			BatchTo:      e.BatchTo.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseWindow(r *http.Request) (models.Window, error) {
	now := h.now().UTC()
	window := models.Window{From: now.Add(-defaultFailedLookback), To: now}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return models.Window{}, errors.New("from must be an RFC3339 timestamp")
		}
		window.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return models.Window{}, errors.New("to must be an RFC3339 timestamp")
		}
		window.To = to
	}
	if window.To.Before(window.From) {
		return models.Window{}, errors.New("to must not be before from")
	}
	return window, nil
}

func (h *Handler) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "scheduler not configured")
		return
	}
	err := h.trigger.TriggerAsync()
	switch {
	case err == nil:
		h.logger.InfoContext(ctx, "manual cycle accepted", "request_id", chimw.GetReqID(ctx))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, sentinel.ErrBusy):
		writeError(w, http.StatusConflict, "cycle_running", "a reconciliation cycle is already running")
	default:
		h.logger.WarnContext(ctx, "manual cycle rejected", "request_id", chimw.GetReqID(ctx), "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}
