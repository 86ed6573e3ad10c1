package matching

import (
	"context"

	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/models"
	"github.com/rentman-app/matching-service/internal/store"
)

// AlgorithmName identifies the scoring/rotation policy in API envelopes and
// published events.
const AlgorithmName = "growth-rotation-v1"

// AssignmentPublisher is notified after a successful assignment. A nil
// publisher disables event publishing; publishing failures never fail the
// assignment itself since the task store write is the source of truth.
type AssignmentPublisher interface {
	PublishAssignment(ctx context.Context, event *models.AssignmentEvent) error
}

// Service is the candidate-matching and task-assignment core. It holds no
// state of its own; every request works over a fresh snapshot fetched from
// the task store and the operator directory.
type Service struct {
	tasks     store.TaskStore
	operators store.OperatorDirectory
	publisher AssignmentPublisher
	logger    *zap.Logger
	opts      Options
}

// NewService creates the matching service. publisher may be nil.
func NewService(tasks store.TaskStore, operators store.OperatorDirectory, publisher AssignmentPublisher, logger *zap.Logger, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		tasks:     tasks,
		operators: operators,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
	}
}

// Options returns the effective algorithm options after defaulting.
func (s *Service) Options() Options {
	return s.opts
}
