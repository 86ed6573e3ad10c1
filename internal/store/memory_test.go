package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rentman-app/matching-service/internal/models"
)

func newOpenTask(t *testing.T, s *InMemoryStore) *models.Task {
	t.Helper()
	task := models.NewTask("requester-1", "Fix the sink", "repair",
		decimal.NewFromInt(45), []string{"plumbing"})
	require.NoError(t, s.SaveTask(context.Background(), task))
	return task
}

func TestSaveAndGetTask(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	task := newOpenTask(t, s)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, models.StatusOpen, got.Status)

	require.ErrorIs(t, s.SaveTask(ctx, task), models.ErrTaskAlreadyExists)

	_, err = s.GetTask(ctx, uuid.New())
	require.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestGetTaskReturnsACopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	task := newOpenTask(t, s)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	got.Status = models.StatusCancelled
	got.RequiredSkills[0] = "welding"

	fresh, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, fresh.Status)
	require.Equal(t, []string{"plumbing"}, fresh.RequiredSkills)
}

func TestAssignTaskCAS(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	task := newOpenTask(t, s)
	firstOp := uuid.New()
	secondOp := uuid.New()

	ok, err := s.AssignTask(ctx, task.ID, firstOp)
	require.NoError(t, err)
	require.True(t, ok)

	// The guard fails without error once the task left OPEN.
	ok, err = s.AssignTask(ctx, task.ID, secondOp)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAssigned, got.Status)
	require.Equal(t, firstOp, *got.AssignedOperator)

	_, err = s.AssignTask(ctx, uuid.New(), firstOp)
	require.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestAssignTaskConcurrent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	task := newOpenTask(t, s)

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.AssignTask(ctx, task.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestListTasksByStatus(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	open1 := newOpenTask(t, s)
	open2 := newOpenTask(t, s)
	assigned := newOpenTask(t, s)
	ok, err := s.AssignTask(ctx, assigned.ID, uuid.New())
	require.NoError(t, err)
	require.True(t, ok)

	tasks, err := s.ListTasksByStatus(ctx, models.StatusOpen, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.Contains(t, []uuid.UUID{open1.ID, open2.ID}, task.ID)
	}

	tasks, err = s.ListTasksByStatus(ctx, models.StatusOpen, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestOperatorDirectory(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	available := models.NewOperator("available", []string{"delivery"}, 80)
	busy := models.NewOperator("busy", []string{"delivery"}, 90)
	require.NoError(t, s.AddOperator(ctx, available))
	require.NoError(t, s.AddOperator(ctx, busy))
	require.NoError(t, s.UpdateOperatorAvailability(ctx, busy.ID, false))

	operators, err := s.ListAvailableOperators(ctx)
	require.NoError(t, err)
	require.Len(t, operators, 1)
	require.Equal(t, available.ID, operators[0].ID)

	require.ErrorIs(t, s.AddOperator(ctx, available), models.ErrOperatorAlreadyExists)
	require.ErrorIs(t, s.UpdateOperatorAvailability(ctx, uuid.New(), true), models.ErrOperatorNotFound)

	_, err = s.GetOperator(ctx, uuid.New())
	require.ErrorIs(t, err, models.ErrOperatorNotFound)
}

func TestIncrementRecentAssignments(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	op := models.NewOperator("op", []string{"delivery"}, 80)
	require.NoError(t, s.AddOperator(ctx, op))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementRecentAssignments(ctx, op.ID))
	}

	got, err := s.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.RecentAssignments)

	require.ErrorIs(t, s.IncrementRecentAssignments(ctx, uuid.New()), models.ErrOperatorNotFound)
}
