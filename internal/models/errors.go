package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for the matching core and the stores behind it.
var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrOperatorNotFound      = errors.New("operator not found")
	ErrTaskAlreadyExists     = errors.New("task already exists with this ID")
	ErrOperatorAlreadyExists = errors.New("operator already exists with this ID")
	ErrIneligibleOperator    = errors.New("operator is not in the eligible candidate set for this task")
	ErrRotationLimitExceeded = errors.New("operator exceeds the rotation limit for recent assignments")
	ErrTaskUnavailable       = errors.New("task is no longer open for assignment")
	ErrInvalidTaskData       = errors.New("invalid task data provided")
)

// Error codes surfaced in the API envelope.
const (
	ErrCodeTaskNotFound          = "TASK_NOT_FOUND"
	ErrCodeIneligibleOperator    = "INELIGIBLE_OPERATOR"
	ErrCodeRotationLimitExceeded = "ROTATION_LIMIT_EXCEEDED"
	ErrCodeTaskUnavailable       = "TASK_UNAVAILABLE"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeMatchingFailed        = "MATCHING_FAILED"
	ErrCodeAssignmentFailed      = "ASSIGNMENT_FAILED"
)

// MatchingError is a structured error carrying the envelope error code and,
// for rotation rejections, the next-best eligible candidate as a suggestion.
type MatchingError struct {
	Code              string
	Message           string
	SuggestedOperator *uuid.UUID
	Err               error
}

// Error implements the error interface.
func (e *MatchingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is checks against the sentinel errors.
func (e *MatchingError) Unwrap() error {
	return e.Err
}

// NewMatchingError creates a MatchingError wrapping err.
func NewMatchingError(code, message string, err error) *MatchingError {
	return &MatchingError{Code: code, Message: message, Err: err}
}
