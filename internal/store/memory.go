package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rentman-app/matching-service/internal/models"
)

// InMemoryStore is a simple in-memory implementation of both TaskStore and
// OperatorDirectory. I need to make this thread-safe for concurrent access;
// the assignment CAS in particular must hold the write lock for the whole
// check-and-set.
type InMemoryStore struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*models.Task
	operators map[uuid.UUID]*models.Operator
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:     make(map[uuid.UUID]*models.Task),
		operators: make(map[uuid.UUID]*models.Operator),
	}
}

// Initialize sets up the in-memory store. Nothing to do here since the maps
// are created in the constructor.
func (s *InMemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// Close releases any resources. There are none for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// SaveTask stores a new task.
func (s *InMemoryStore) SaveTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return models.ErrTaskAlreadyExists
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetTask retrieves a task by its ID.
func (s *InMemoryStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, models.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// AssignTask performs the guarded open -> assigned transition. The status
// check and the mutation happen under one write lock, which gives the same
// at-most-once guarantee as the conditional UPDATE in the Postgres store.
func (s *InMemoryStore) AssignTask(ctx context.Context, taskID, operatorID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return false, models.ErrTaskNotFound
	}
	if task.Status != models.StatusOpen {
		return false, nil
	}

	opID := operatorID
	task.Status = models.StatusAssigned
	task.AssignedOperator = &opID
	task.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ListTasksByStatus returns tasks in the given status, oldest first.
func (s *InMemoryStore) ListTasksByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Task
	for _, task := range s.tasks {
		if task.Status == status {
			matched = append(matched, cloneTask(task))
		}
	}
	sortTasksByCreatedAt(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// AddOperator registers an operator in the directory.
func (s *InMemoryStore) AddOperator(ctx context.Context, operator *models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operators[operator.ID]; exists {
		return models.ErrOperatorAlreadyExists
	}
	s.operators[operator.ID] = cloneOperator(operator)
	return nil
}

// GetOperator retrieves an operator by its ID.
func (s *InMemoryStore) GetOperator(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	operator, exists := s.operators[id]
	if !exists {
		return nil, models.ErrOperatorNotFound
	}
	return cloneOperator(operator), nil
}

// ListAvailableOperators returns all operators currently marked available.
func (s *InMemoryStore) ListAvailableOperators(ctx context.Context) ([]*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var available []*models.Operator
	for _, operator := range s.operators {
		if operator.IsAvailable {
			available = append(available, cloneOperator(operator))
		}
	}
	return available, nil
}

// UpdateOperatorAvailability flips the availability flag for an operator.
func (s *InMemoryStore) UpdateOperatorAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	operator, exists := s.operators[id]
	if !exists {
		return models.ErrOperatorNotFound
	}
	operator.IsAvailable = available
	operator.LastSeenAt = time.Now().UTC()
	return nil
}

// IncrementRecentAssignments bumps the rolling assignment counter.
func (s *InMemoryStore) IncrementRecentAssignments(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	operator, exists := s.operators[id]
	if !exists {
		return models.ErrOperatorNotFound
	}
	operator.RecentAssignments++
	return nil
}

// cloneTask copies a task so callers never share memory with the store.
func cloneTask(t *models.Task) *models.Task {
	c := *t
	if t.AssignedOperator != nil {
		op := *t.AssignedOperator
		c.AssignedOperator = &op
	}
	c.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	return &c
}

// cloneOperator copies an operator for the same reason.
func cloneOperator(o *models.Operator) *models.Operator {
	c := *o
	c.Skills = append([]string(nil), o.Skills...)
	return &c
}

func sortTasksByCreatedAt(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
