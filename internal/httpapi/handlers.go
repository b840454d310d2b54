package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/engine"
	"github.com/alphawatch/alphawatch/internal/store"
)

// maxWebhookBody caps inbound payload size at 1 MiB; provider batches are
// far below this.
const maxWebhookBody = 1 << 20

// Handlers implements the endpoint logic.
type Handlers struct {
	pipeline *engine.Pipeline
	windows  store.WindowStore
	log      zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(pipeline *engine.Pipeline, windows store.WindowStore, logger zerolog.Logger) *Handlers {
	return &Handlers{
		pipeline: pipeline,
		windows:  windows,
		log:      logger.With().Str("component", "handlers").Logger(),
	}
}

// Webhook ingests a provider delivery. It always answers success once the
// body is read: processing failures are logged and counted, and a retry
// from the provider would not improve on them.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": "unreadable body"})
		return
	}

	accepted := h.pipeline.HandleWebhook(r.Context(), body)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"accepted": accepted,
	})
}

// Health reports process liveness and store reachability. An unreachable
// store degrades the report but not the status code: the ingestion path
// stays live without it.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	storeStatus := "healthy"
	if err := h.windows.Ping(r.Context()); err != nil {
		storeStatus = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"store":  storeStatus,
	})
}

// Inject accepts a synthetic TransactionRecord, bypassing the webhook
// transport, and returns whatever events it produced.
func (h *Handlers) Inject(w http.ResponseWriter, r *http.Request) {
	var rec domain.TransactionRecord
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": err.Error()})
		return
	}

	events, err := h.pipeline.Inject(r.Context(), rec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"events": eventsOrEmpty(events),
	})
}

// Evaluate force-evaluates a token's current window.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "detail": "missing token"})
		return
	}

	events := h.pipeline.ForceEvaluate(r.Context(), token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"events": eventsOrEmpty(events),
	})
}

// NotFound answers unknown routes in the API's JSON shape.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "detail": "not found"})
}

func eventsOrEmpty(events []domain.ConfluenceEvent) []domain.ConfluenceEvent {
	if events == nil {
		return []domain.ConfluenceEvent{}
	}
	return events
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
