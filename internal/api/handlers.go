package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dyluth/teamflow/internal/export"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/dyluth/teamflow/internal/watch"
)

// RunService is the set of run lifecycle operations served over HTTP.
type RunService interface {
	Create(ctx context.Context, idea string, opts service.CreateOptions) (service.RunRef, error)
	Status(ctx context.Context, runID string) (*service.RunView, error)
	Regenerate(ctx context.Context, runID, stage string) (service.RunRef, error)
	Cancel(ctx context.Context, runID string) (service.RunRef, error)
	Stream(ctx context.Context, runID string, opts watch.Options, emit func(watch.Frame) error) error
	Export(ctx context.Context, runID, format string) (export.Document, error)
	Artifact(ctx context.Context, runID, name string) (string, error)
}

// Pinger checks backing store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	Idea     string `json:"idea"`
	MaxChars int    `json:"max_chars,omitempty"`
	FastMode bool   `json:"fast_mode,omitempty"`
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc    RunService
	health Pinger
	cfg    Config
}

// NewHandlers creates the handler set.
func NewHandlers(svc RunService, health Pinger, cfg Config) *Handlers {
	return &Handlers{svc: svc, health: health, cfg: cfg}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, ErrorResponse{Error: message, Code: strconv.Itoa(code)})
}

// respondServiceError maps the service error taxonomy to status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrBadRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[API] Internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateRun handles POST /runs.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ref, err := h.svc.Create(r.Context(), req.Idea, service.CreateOptions{
		MaxChars: req.MaxChars,
		FastMode: req.FastMode,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ref)
}

// GetRun handles GET /runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// RegenerateStep handles POST /runs/{id}/steps/{step}/regenerate.
func (h *Handlers) RegenerateStep(w http.ResponseWriter, r *http.Request) {
	ref, err := h.svc.Regenerate(r.Context(), r.PathValue("id"), r.PathValue("step"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ref)
}

// CancelRun handles POST /runs/{id}/cancel.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ref, err := h.svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ref)
}

// StreamEvents handles GET /runs/{id}/events as server-sent events.
// Each event carries its log index as the SSE id so clients resume with Last-Event-ID.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	var start int64
	if raw := r.URL.Query().Get("start"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start must be an integer")
			return
		}
		start = n
	}

	rc := http.NewResponseController(w)
	headersSent := false
	emit := func(f watch.Frame) error {
		if !headersSent {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			headersSent = true
		}
		if err := writeFrame(w, f); err != nil {
			return err
		}
		return rc.Flush()
	}

	err := h.svc.Stream(r.Context(), r.PathValue("id"), watch.Options{
		Start:        start,
		LastEventID:  r.Header.Get("Last-Event-ID"),
		PollInterval: h.cfg.StreamPoll,
		MaxDuration:  h.cfg.StreamTimeout,
	}, emit)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if !headersSent {
		respondServiceError(w, err)
		return
	}
	log.Printf("[API] Event stream for %s ended: %v", r.PathValue("id"), err)
}

func writeFrame(w io.Writer, f watch.Frame) error {
	if f.Heartbeat {
		_, err := io.WriteString(w, ": keep-alive\n\n")
		return err
	}
	data, err := json.Marshal(f.Record.Event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", f.Record.ID, data)
	return err
}

// ExportRun handles GET /runs/{id}/export?format=md|ide|cursor|summary.
func (h *Handlers) ExportRun(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Export(r.Context(), r.PathValue("id"), r.URL.Query().Get("format"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	if doc.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc.Content)
}

// GetArtifact handles GET /runs/{id}/artifacts/{name}.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.Artifact(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.health == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	if err := h.health.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"redis":  "disconnected",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "redis": "connected"})
}
