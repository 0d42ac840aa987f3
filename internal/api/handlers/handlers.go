package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

// decodeJSON reads the request body into v or writes a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// failureStatus maps a pipeline failure code to an HTTP status.
func failureStatus(code string) int {
	switch code {
	case pipeline.CodeInvalidInput:
		return http.StatusBadRequest
	case pipeline.CodeParseLimitReached:
		return http.StatusTooManyRequests
	case pipeline.CodeNoAccount, pipeline.CodeInvalidEntry:
		return http.StatusUnprocessableEntity
	case pipeline.CodeModelError:
		return http.StatusBadGateway
	case pipeline.CodeBalanceConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writePipelineError renders a processing error. Store errors are not echoed
// back to the caller.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	f, ok := pipeline.AsFailure(err)
	if !ok {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Unexpected processing error")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	status := failureStatus(f.Code)
	body := map[string]interface{}{
		"code":  f.Code,
		"stage": f.Stage,
	}

	var limitErr *pipeline.LimitError
	switch {
	case errors.As(err, &limitErr):
		body["error"] = "Monthly AI parse limit reached"
		body["used"] = limitErr.Used
		body["limit"] = limitErr.Limit
	case f.Code == pipeline.CodeStoreError:
		body["error"] = "Failed to process message"
	default:
		body["error"] = failureMessage(f)
	}
	if f.Inconsistent {
		body["persisted_ids"] = f.PersistedIDs
		body["inconsistent"] = true
	}

	middleware.WriteJSON(w, status, body)
}

func failureMessage(f *pipeline.Failure) string {
	parts := make([]string, 0, 2)
	if f.Message != "" {
		parts = append(parts, f.Message)
	}
	if f.Err != nil {
		parts = append(parts, f.Err.Error())
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s failed", f.Stage)
	}
	return strings.Join(parts, ": ")
}
