package nats_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/models"
)

// AssignmentPublisher publishes assignment events so downstream consumers
// (operator notifications, analytics) can react without polling the task
// store. It satisfies matching.AssignmentPublisher.
type AssignmentPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewAssignmentPublisher creates a publisher for the given subject.
func NewAssignmentPublisher(nc *nats.Conn, subject string, logger *zap.Logger) *AssignmentPublisher {
	return &AssignmentPublisher{
		nc:      nc,
		subject: subject,
		logger:  logger,
	}
}

// PublishAssignment marshals and publishes one assignment event. The caller
// treats failures as best-effort; the task store write remains the source of
// truth for the assignment itself.
func (p *AssignmentPublisher) PublishAssignment(ctx context.Context, event *models.AssignmentEvent) error {
	if p.nc == nil || p.nc.Status() != nats.CONNECTED {
		return fmt.Errorf("NATS not connected, dropping assignment event for task %s", event.TaskID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling assignment event for task %s: %w", event.TaskID, err)
	}

	if err := p.nc.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publishing assignment event to %s: %w", p.subject, err)
	}

	p.logger.Debug("Published assignment event",
		zap.String("subject", p.subject),
		zap.String("task_id", event.TaskID.String()),
		zap.String("operator_id", event.OperatorID.String()),
	)
	return nil
}
