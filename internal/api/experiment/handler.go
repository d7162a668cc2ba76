// Package experiment exposes sessions to the browser client over HTTP. Render
// commands are streamed with server-sent events and participant inputs are
// posted back as JSON.
package experiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
	"github.com/karenlarocque/feature-forgetting/internal/server"
	"github.com/karenlarocque/feature-forgetting/internal/session"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// maxReactionMs bounds a client-reported reaction time.
const maxReactionMs = float64(time.Hour / time.Millisecond)

type Handler struct {
	manager *session.Manager
	store   ports.LogStore
	logger  *slog.Logger
}

func NewHandler(manager *session.Manager, store ports.LogStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: manager,
		store:   store,
		logger:  logger,
	}
}

// Routes registers the API on r. Results endpoints require adminToken when it
// is set.
func (h *Handler) Routes(r chi.Router, adminToken string) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/variants", h.handleListVariants)

	r.Post("/api/sessions", h.handleCreateSession)
	r.Route("/api/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Get("/events", h.handleEvents)
		r.Post("/start", h.handleStart)
		r.Post("/input", h.handleInput)
		r.Post("/resume", h.handleResume)
		r.Post("/demographics", h.handleDemographics)
	})

	r.Group(func(r chi.Router) {
		r.Use(server.AdminTokenMiddleware(adminToken))
		r.Get("/api/results", h.handleListResults)
		r.Get("/api/results/{session_id}", h.handleGetResult)
	})
}

type VariantInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateSessionRequest struct {
	Variant       string `json:"variant"`
	ParticipantID string `json:"participant_id,omitempty"`
	// UTCOffsetMinutes is the browser's offset from UTC, east positive
	// (the negation of JavaScript's getTimezoneOffset).
	UTCOffsetMinutes *int `json:"utc_offset_minutes,omitempty"`
}

type InputRequest struct {
	Input string `json:"input"`
	// RTMs is the reaction time measured in the browser from stimulus onset.
	RTMs *float64 `json:"rt_ms,omitempty"`
}

type DemographicsRequest struct {
	Age      string            `json:"age"`
	Gender   string            `json:"gender"`
	Comments string            `json:"comments,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.manager.Len(),
	})
}

func (h *Handler) handleListVariants(w http.ResponseWriter, r *http.Request) {
	factories := h.manager.Variants()
	out := make([]VariantInfo, len(factories))
	for i, f := range factories {
		out[i] = VariantInfo{Name: f.Name, Description: f.Description}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Variant == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "variant is required")
		return
	}

	var opts []session.CreateOption
	if req.UTCOffsetMinutes != nil {
		offset := *req.UTCOffsetMinutes
		if offset < -domain.MaxUTCOffset || offset > domain.MaxUTCOffset {
			writeError(w, http.StatusBadRequest, "invalid_request", "utc_offset_minutes is out of range")
			return
		}
		opts = append(opts, session.WithUTCOffset(offset))
	}

	s, err := h.manager.Create(r.Context(), req.Variant, req.ParticipantID, opts...)
	if err != nil {
		server.AddError(r.Context(), err)
		if errors.Is(err, variant.ErrUnknownVariant) {
			writeError(w, http.StatusBadRequest, "invalid_variant", err.Error())
			return
		}
		h.logger.Error("failed to create session",
			slog.String("variant", req.Variant),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}
	server.AddLogField(r.Context(), "session_id", s.ID())

	st, err := s.Status()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "session_id")
	server.AddLogField(r.Context(), "session_id", id)

	s, err := h.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.Status()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Start(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) handleInput(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	in := strings.ToLower(strings.TrimSpace(req.Input))
	if in == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}

	var err error
	if req.RTMs != nil {
		rt := *req.RTMs
		if rt < 0 || rt > maxReactionMs {
			writeError(w, http.StatusBadRequest, "invalid_request", "rt_ms is out of range")
			return
		}
		err = s.InputTimed(domain.Input(in), time.Duration(rt*float64(time.Millisecond)))
	} else {
		err = s.Input(domain.Input(in))
	}
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Resume(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) handleDemographics(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req DemographicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Age) == "" || strings.TrimSpace(req.Gender) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "Please fill out all fields before submitting.")
		return
	}

	err := s.Finalize(domain.MetadataPatch{
		Demographics: &domain.Demographics{
			Age:      strings.TrimSpace(req.Age),
			Gender:   strings.TrimSpace(req.Gender),
			Comments: req.Comments,
		},
		Extra: req.Extra,
	})
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_error", "Streaming not supported")
		return
	}

	events, cancel := s.Subscribe()
	defer cancel()

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			h.sendSSEEvent(w, flusher, ev)
		}
	}
}

func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev session.Event) {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, jsonData)
	flusher.Flush()
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	opts := ports.ListOptions{
		Variant: r.URL.Query().Get("variant"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}

	summaries, err := h.store.ListLogs(r.Context(), opts)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": summaries})
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	server.AddLogField(r.Context(), "session_id", id)

	log, err := h.store.GetLog(r.Context(), id)
	if errors.Is(err, ports.ErrLogNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Result not found")
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to load result")
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// writeSessionError maps session and sequencer errors to HTTP statuses.
func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusGone, "session_closed", "Session is no longer running")
	case errors.Is(err, sequencer.ErrAlreadyStarted),
		errors.Is(err, sequencer.ErrNotResting),
		errors.Is(err, sequencer.ErrNotFinished),
		errors.Is(err, sequencer.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrLogFrozen):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
