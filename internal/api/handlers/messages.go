package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageArchiver stores raw message text. *gcs.GCSStorageService satisfies it.
type MessageArchiver interface {
	ArchiveMessage(ctx context.Context, userID, messageID, text string) (string, error)
}

// MessagesHandler accepts messages for asynchronous processing.
type MessagesHandler struct {
	publisher jobs.Publisher
	archiver  MessageArchiver
	log       zerolog.Logger
}

// NewMessagesHandler creates a new messages handler. archiver may be nil, in
// which case the text travels inline with the job.
func NewMessagesHandler(publisher jobs.Publisher, archiver MessageArchiver, log zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{publisher: publisher, archiver: archiver, log: log}
}

// EnqueueMessage handles POST /messages
func (h *MessagesHandler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx := r.Context()
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	job := &jobs.ProcessMessageJob{
		MessageID: req.MessageID,
		UserID:    userID,
		Source:    req.Source,
	}
	if h.archiver != nil {
		uri, err := h.archiver.ArchiveMessage(ctx, userID, req.MessageID, req.Text)
		if err != nil {
			h.log.Error().Err(err).Str("message_id", req.MessageID).Msg("Failed to archive message")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to archive message")
			return
		}
		job.GCSURI = uri
	} else {
		job.Text = req.Text
	}

	if err := h.publisher.PublishProcessMessage(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue message job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue message")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("message_id", job.MessageID).Msg("Message job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"message_id": job.MessageID,
		"status":     string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /jobs/{id}. Jobs of other users are reported as missing.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) || (err == nil && job.UserID != userID) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: userID,
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
