package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/rs/zerolog"
)

// MessageProcessor runs messages through the pipeline. *pipeline.Processor
// satisfies it.
type MessageProcessor interface {
	Process(ctx context.Context, msg pipeline.Message) (*pipeline.Result, error)
	Preview(ctx context.Context, msg pipeline.Message) (*pipeline.Preview, error)
}

// messageRequest is the body of the message endpoints.
type messageRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
}

func (m messageRequest) toMessage(userID string) pipeline.Message {
	return pipeline.Message{ID: m.MessageID, UserID: userID, Text: m.Text, Source: m.Source}
}

// TransactionsHandler handles the synchronous processing endpoints.
type TransactionsHandler struct {
	proc MessageProcessor
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(proc MessageProcessor, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{proc: proc, log: log}
}

// Process handles POST /transactions
func (h *TransactionsHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.proc.Process(r.Context(), req.toMessage(userID))
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Status == pipeline.StatusSkipped {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, res)
}

// Parse handles POST /parse
func (h *TransactionsHandler) Parse(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	preview, err := h.proc.Preview(r.Context(), req.toMessage(userID))
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, preview)
}
