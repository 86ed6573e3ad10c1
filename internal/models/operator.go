package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operator represents a human operator registered in the directory.
// Reputation and level are derived from historical completions by the
// profile-management flow; this service treats operator records as
// read-only apart from the rolling assignment counter.
type Operator struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Skills   []string  `json:"skills" yaml:"skills"`
	// ReputationScore is on a 0-100 scale.
	ReputationScore float64 `json:"reputation_score" yaml:"reputation_score"`
	Level           int     `json:"level" yaml:"level"`
	IsAvailable     bool    `json:"is_available" yaml:"is_available"`
	// RecentAssignments counts assignments inside the rolling fairness
	// window. It feeds the growth component of the match score.
	RecentAssignments int       `json:"recent_assignment_count" yaml:"recent_assignment_count"`
	Location          string    `json:"location,omitempty" yaml:"location,omitempty"`
	RegisteredAt      time.Time `json:"registered_at" yaml:"registered_at"`
	LastSeenAt        time.Time `json:"last_seen_at" yaml:"last_seen_at"`
}

// NewOperator creates a new available Operator with a generated ID.
func NewOperator(name string, skills []string, reputation float64) *Operator {
	now := time.Now().UTC()
	return &Operator{
		ID:              uuid.New(),
		Name:            name,
		Skills:          skills,
		ReputationScore: reputation,
		Level:           1,
		IsAvailable:     true,
		RegisteredAt:    now,
		LastSeenAt:      now,
	}
}

// HasSkills reports whether the operator's skill set covers every required
// skill. Matching is case-insensitive.
func (o *Operator) HasSkills(required []string) bool {
	if len(required) == 0 {
		return true
	}
	owned := make(map[string]struct{}, len(o.Skills))
	for _, s := range o.Skills {
		owned[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, r := range required {
		if _, ok := owned[strings.ToLower(strings.TrimSpace(r))]; !ok {
			return false
		}
	}
	return true
}

// MatchesLocation reports whether the operator satisfies a task's location
// constraint. An empty constraint matches everyone; an operator without a
// recorded location is not excluded by one.
func (o *Operator) MatchesLocation(taskLocation string) bool {
	if taskLocation == "" || o.Location == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(o.Location), strings.TrimSpace(taskLocation))
}
