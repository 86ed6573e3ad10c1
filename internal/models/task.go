package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle states of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
	StatusFailed     TaskStatus = "failed"
)

// Task represents a unit of physical-world work posted by a requester.
// Tasks are owned by the task-creation flow; this service only reads them
// and performs the single open -> assigned transition.
type Task struct {
	ID             uuid.UUID       `json:"id" yaml:"id"`
	RequesterID    string          `json:"requester_id" yaml:"requester_id"`
	Title          string          `json:"title" yaml:"title"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	TaskType       string          `json:"task_type" yaml:"task_type"`
	BudgetAmount   decimal.Decimal `json:"budget_amount" yaml:"budget_amount"`
	RequiredSkills []string        `json:"required_skills" yaml:"required_skills"`
	MinReputation  float64         `json:"min_reputation,omitempty" yaml:"min_reputation,omitempty"`
	Location       string          `json:"location,omitempty" yaml:"location,omitempty"`
	Status         TaskStatus      `json:"status" yaml:"status"`
	// AssignedOperator is nil until the task has been assigned. Only one
	// operator may ever hold the assignment for a given task.
	AssignedOperator *uuid.UUID `json:"assigned_operator,omitempty" yaml:"assigned_operator,omitempty"`
	CreatedAt        time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"updated_at"`
}

// NewTask creates a new open Task with a generated ID and timestamps.
func NewTask(requesterID, title, taskType string, budget decimal.Decimal, requiredSkills []string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		Title:          title,
		TaskType:       taskType,
		BudgetAmount:   budget,
		RequiredSkills: requiredSkills,
		Status:         StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsTerminal reports whether the status is an end state.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. The forward path is strictly
// open -> assigned -> in_progress -> completed; cancelled and failed are
// reachable from any non-terminal state.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled || next == StatusFailed {
		return true
	}
	switch s {
	case StatusOpen:
		return next == StatusAssigned
	case StatusAssigned:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	}
	return false
}
