package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rentman-app/matching-service/internal/models"
)

// TaskStore defines the interface for task storage operations.
// This allows different storage backends to be used interchangeably and
// lets the matching core be tested against an in-memory double.
type TaskStore interface {
	// Initialize sets up any necessary structures or connections
	Initialize(ctx context.Context) error

	// SaveTask stores a new task in the system
	SaveTask(ctx context.Context, task *models.Task) error

	// GetTask retrieves a task by ID. Returns models.ErrTaskNotFound if
	// no task exists with that ID.
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)

	// AssignTask performs the single conditional status update this
	// service is allowed to make: open -> assigned with the operator
	// recorded, guarded on the status still being open at write time.
	// It returns false (and no error) when the guard fails, i.e. the
	// task was not open at the instant of the write. It must be a single
	// atomic compare-and-swap, never a read-then-write pair.
	AssignTask(ctx context.Context, taskID, operatorID uuid.UUID) (bool, error)

	// ListTasksByStatus retrieves tasks in the given status, oldest first.
	ListTasksByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]*models.Task, error)

	// Close cleans up any resources used by the store
	Close() error
}
