package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rentman-app/matching-service/internal/models"
)

// OperatorDirectory defines read access to the operator directory plus the
// one counter this service maintains. Profiles themselves (skills,
// reputation, level) are owned by the profile-management flow and are
// read-only here.
type OperatorDirectory interface {
	// Initialize sets up any necessary structures or connections
	Initialize(ctx context.Context) error

	// AddOperator registers an operator in the directory
	AddOperator(ctx context.Context, operator *models.Operator) error

	// GetOperator retrieves an operator by ID. Returns
	// models.ErrOperatorNotFound if absent.
	GetOperator(ctx context.Context, id uuid.UUID) (*models.Operator, error)

	// ListAvailableOperators retrieves all operators currently marked
	// available. Eligibility filtering beyond availability happens in the
	// scorer so it stays unit-testable without a live database.
	ListAvailableOperators(ctx context.Context) ([]*models.Operator, error)

	// UpdateOperatorAvailability flips the availability flag
	UpdateOperatorAvailability(ctx context.Context, id uuid.UUID, available bool) error

	// IncrementRecentAssignments bumps the rolling assignment counter
	// after a successful assignment so the growth signal reflects it.
	IncrementRecentAssignments(ctx context.Context, id uuid.UUID) error

	// Close cleans up any resources used by the directory
	Close() error
}
