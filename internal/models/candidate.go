package models

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is an operator evaluated against a specific task, carrying the
// computed match score. Candidates are recomputed per request and never
// persisted.
type Candidate struct {
	Operator *Operator `json:"operator"`
	// MatchScore is the weighted blend of the reputation and growth
	// components, in [0,1].
	MatchScore float64 `json:"match_score"`
	// ReputationComponent is reputation_score / 100.
	ReputationComponent float64 `json:"reputation_component"`
	// GrowthComponent is 1 / (1 + recent_assignment_count). Operators with
	// fewer recent assignments score higher, so opportunity gets
	// redistributed instead of always routing to the top performer.
	GrowthComponent float64 `json:"growth_component"`
}

// MatchResult is the payload returned by the match operation.
type MatchResult struct {
	TaskID     uuid.UUID    `json:"task_id"`
	Candidates []*Candidate `json:"candidates"`
	TotalFound int          `json:"total_found"`
}

// AssignmentResult is the payload returned by a successful auto-assign.
type AssignmentResult struct {
	TaskID     uuid.UUID  `json:"task_id"`
	OperatorID uuid.UUID  `json:"operator_id"`
	Status     TaskStatus `json:"status"`
	AssignedAt time.Time  `json:"assigned_at"`
}

// AssignmentEvent is published to NATS after a successful assignment so that
// downstream consumers (notifications, analytics) can react without polling
// the task store.
type AssignmentEvent struct {
	TaskID     uuid.UUID `json:"task_id"`
	OperatorID uuid.UUID `json:"operator_id"`
	TaskType   string    `json:"task_type"`
	MatchScore float64   `json:"match_score"`
	AssignedAt time.Time `json:"assigned_at"`
}
