package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/logging"
	"github.com/rentman-app/matching-service/internal/matching"
	"github.com/rentman-app/matching-service/internal/models"
)

// MatchingHandler exposes the two matching operations over HTTP. It performs
// no business logic of its own beyond translating between the wire envelope
// and the matching service.
type MatchingHandler struct {
	logger *zap.Logger
	svc    *matching.Service
}

// NewMatchingHandler creates a new MatchingHandler.
func NewMatchingHandler(logger *zap.Logger, svc *matching.Service) *MatchingHandler {
	return &MatchingHandler{
		logger: logger,
		svc:    svc,
	}
}

// Routes sets up the router for matching endpoints.
func (h *MatchingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/tasks/{taskID}/match", h.Match)
	r.Post("/tasks/{taskID}/auto-assign", h.AutoAssign)
	return r
}

// envelope is the uniform response shape for both operations.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    meta       `json:"meta"`
}

type errorBody struct {
	Code                string     `json:"code"`
	Message             string     `json:"message"`
	SuggestedOperatorID *uuid.UUID `json:"suggested_operator_id,omitempty"`
}

type meta struct {
	Timestamp     time.Time `json:"timestamp"`
	AlgorithmName string    `json:"algorithm_name"`
}

// autoAssignRequest is the auto-assign body. The parameter is the operator
// being assigned; operators are the only valid assignee target.
type autoAssignRequest struct {
	OperatorID uuid.UUID `json:"operator_id"`
}

// Match handles POST /tasks/{taskID}/match. It returns the top candidates
// for the task along with the total number of eligible operators found.
func (h *MatchingHandler) Match(w http.ResponseWriter, r *http.Request) {
	logger := logging.EnrichLoggerWithContext(r.Context(), h.logger)

	taskID, ok := h.parseTaskID(w, r, logger)
	if !ok {
		return
	}

	result, err := h.svc.FindCandidates(r.Context(), taskID)
	if err != nil {
		h.writeMatchingError(w, logger, err, models.ErrCodeMatchingFailed)
		return
	}

	// The full ranked list is computed; the response carries the top N.
	topN := h.svc.Options().TopCandidates
	truncated := result.Candidates
	if len(truncated) > topN {
		truncated = truncated[:topN]
	}

	logger.Info("Candidates matched",
		zap.String("task_id", taskID.String()),
		zap.Int("total_found", result.TotalFound),
		zap.Int("returned", len(truncated)),
	)

	writeSuccess(w, logger, http.StatusOK, &models.MatchResult{
		TaskID:     result.TaskID,
		Candidates: truncated,
		TotalFound: result.TotalFound,
	})
}

// AutoAssign handles POST /tasks/{taskID}/auto-assign. The body names the
// requested operator; rotation and eligibility are always re-validated
// server-side.
func (h *MatchingHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	logger := logging.EnrichLoggerWithContext(r.Context(), h.logger)

	taskID, ok := h.parseTaskID(w, r, logger)
	if !ok {
		return
	}

	var req autoAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode auto-assign request", zap.Error(err))
		writeError(w, logger, http.StatusBadRequest, &errorBody{
			Code:    models.ErrCodeValidationFailed,
			Message: "invalid request body",
		})
		return
	}
	if req.OperatorID == uuid.Nil {
		writeError(w, logger, http.StatusBadRequest, &errorBody{
			Code:    models.ErrCodeValidationFailed,
			Message: "operator_id is required",
		})
		return
	}

	result, err := h.svc.AssignWithRotation(r.Context(), taskID, req.OperatorID)
	if err != nil {
		h.writeMatchingError(w, logger, err, models.ErrCodeAssignmentFailed)
		return
	}

	writeSuccess(w, logger, http.StatusOK, result)
}

func (h *MatchingHandler) parseTaskID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	taskIDStr := chi.URLParam(r, "taskID")
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, &errorBody{
			Code:    models.ErrCodeValidationFailed,
			Message: "invalid task ID",
		})
		return uuid.Nil, false
	}
	return taskID, true
}

// writeMatchingError reshapes a matching error into the envelope. Errors
// pass through with their structured code; anything else is an unexpected
// fault reported under fallbackCode.
func (h *MatchingHandler) writeMatchingError(w http.ResponseWriter, logger *zap.Logger, err error, fallbackCode string) {
	var mErr *models.MatchingError
	if errors.As(err, &mErr) {
		status := statusFromCode(mErr.Code)
		if status >= http.StatusInternalServerError {
			logger.Error("Matching operation failed", zap.String("code", mErr.Code), zap.Error(err))
		} else {
			logger.Info("Matching operation rejected", zap.String("code", mErr.Code), zap.String("reason", mErr.Message))
		}
		writeError(w, logger, status, &errorBody{
			Code:                mErr.Code,
			Message:             mErr.Message,
			SuggestedOperatorID: mErr.SuggestedOperator,
		})
		return
	}

	logger.Error("Unexpected matching fault", zap.Error(err))
	writeError(w, logger, http.StatusInternalServerError, &errorBody{
		Code:    fallbackCode,
		Message: "internal error",
	})
}

// statusFromCode maps envelope error codes to HTTP status codes.
func statusFromCode(code string) int {
	switch code {
	case models.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case models.ErrCodeIneligibleOperator, models.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case models.ErrCodeRotationLimitExceeded, models.ErrCodeTaskUnavailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeSuccess(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	writeEnvelope(w, logger, statusCode, envelope{
		Success: true,
		Data:    data,
		Meta:    newMeta(),
	})
}

func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, body *errorBody) {
	writeEnvelope(w, logger, statusCode, envelope{
		Success: false,
		Error:   body,
		Meta:    newMeta(),
	})
}

func writeEnvelope(w http.ResponseWriter, logger *zap.Logger, statusCode int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		// Headers are already sent; all we can do is log.
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func newMeta() meta {
	return meta{
		Timestamp:     time.Now().UTC(),
		AlgorithmName: matching.AlgorithmName,
	}
}
