package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/matching"
	"github.com/rentman-app/matching-service/internal/models"
	"github.com/rentman-app/matching-service/internal/store"
)

type envelopeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code                string     `json:"code"`
		Message             string     `json:"message"`
		SuggestedOperatorID *uuid.UUID `json:"suggested_operator_id"`
	} `json:"error"`
	Meta struct {
		Timestamp     string `json:"timestamp"`
		AlgorithmName string `json:"algorithm_name"`
	} `json:"meta"`
}

func newTestHandler(t *testing.T) (*httptest.Server, *store.InMemoryStore) {
	t.Helper()
	mem := store.NewInMemoryStore()
	svc := matching.NewService(mem, mem, nil, zap.NewNop(), matching.DefaultOptions())
	handler := NewMatchingHandler(zap.NewNop(), svc)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv, mem
}

func postJSON(t *testing.T, url string, body any) (*http.Response, *envelopeResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	env := &envelopeResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(env))
	return resp, env
}

func seedTask(t *testing.T, mem *store.InMemoryStore) *models.Task {
	t.Helper()
	task := models.NewTask("requester-1", "Walk the dog", "errand",
		decimal.NewFromInt(15), []string{"errand"})
	require.NoError(t, mem.SaveTask(context.Background(), task))
	return task
}

func seedOperator(t *testing.T, mem *store.InMemoryStore, reputation float64, recent int) *models.Operator {
	t.Helper()
	op := models.NewOperator("op", []string{"errand"}, reputation)
	op.RecentAssignments = recent
	require.NoError(t, mem.AddOperator(context.Background(), op))
	return op
}

func TestMatchEndpoint(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)
	for i := 0; i < 7; i++ {
		seedOperator(t, mem, 70+float64(i), 0)
	}

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/match", srv.URL, task.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
	require.Nil(t, env.Error)
	require.Equal(t, matching.AlgorithmName, env.Meta.AlgorithmName)
	require.NotEmpty(t, env.Meta.Timestamp)

	var data struct {
		TaskID     uuid.UUID           `json:"task_id"`
		Candidates []*models.Candidate `json:"candidates"`
		TotalFound int                 `json:"total_found"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, task.ID, data.TaskID)
	require.Equal(t, 7, data.TotalFound)
	require.Len(t, data.Candidates, 5, "response carries only the top N")
}

func TestMatchTaskNotFound(t *testing.T) {
	srv, _ := newTestHandler(t)

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/match", srv.URL, uuid.New()), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, models.ErrCodeTaskNotFound, env.Error.Code)
}

func TestMatchInvalidTaskID(t *testing.T) {
	srv, _ := newTestHandler(t)

	resp, env := postJSON(t, srv.URL+"/tasks/not-a-uuid/match", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, models.ErrCodeValidationFailed, env.Error.Code)
}

func TestAutoAssignSuccess(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)
	op := seedOperator(t, mem, 85, 0)

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{"operator_id": op.ID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	var data models.AssignmentResult
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, task.ID, data.TaskID)
	require.Equal(t, op.ID, data.OperatorID)
	require.Equal(t, models.StatusAssigned, data.Status)
}

func TestAutoAssignIneligibleOperator(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)
	seedOperator(t, mem, 85, 0)

	unqualified := models.NewOperator("unqualified", []string{"repair"}, 95)
	require.NoError(t, mem.AddOperator(context.Background(), unqualified))

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{"operator_id": unqualified.ID.String()})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, models.ErrCodeIneligibleOperator, env.Error.Code)
}

func TestAutoAssignRotationConflict(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)

	busy := seedOperator(t, mem, 80, 10)
	seedOperator(t, mem, 80, 0)
	seedOperator(t, mem, 80, 0)
	seedOperator(t, mem, 80, 0)

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{"operator_id": busy.ID.String()})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, models.ErrCodeRotationLimitExceeded, env.Error.Code)
	require.NotNil(t, env.Error.SuggestedOperatorID)
	require.NotEqual(t, busy.ID, *env.Error.SuggestedOperatorID)
}

func TestAutoAssignTaskUnavailable(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)
	first := seedOperator(t, mem, 85, 0)
	second := seedOperator(t, mem, 85, 0)

	ok, err := mem.AssignTask(context.Background(), task.ID, first.ID)
	require.NoError(t, err)
	require.True(t, ok)

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{"operator_id": second.ID.String()})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, models.ErrCodeTaskUnavailable, env.Error.Code)
}

// faultingStore wraps the in-memory backend and fails selected operations,
// standing in for a database that is down or timing out.
type faultingStore struct {
	*store.InMemoryStore
	getTaskErr error
	listErr    error
	assignErr  error
}

func (f *faultingStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if f.getTaskErr != nil {
		return nil, f.getTaskErr
	}
	return f.InMemoryStore.GetTask(ctx, id)
}

func (f *faultingStore) ListAvailableOperators(ctx context.Context) ([]*models.Operator, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.InMemoryStore.ListAvailableOperators(ctx)
}

func (f *faultingStore) AssignTask(ctx context.Context, taskID, operatorID uuid.UUID) (bool, error) {
	if f.assignErr != nil {
		return false, f.assignErr
	}
	return f.InMemoryStore.AssignTask(ctx, taskID, operatorID)
}

func newFaultingHandler(t *testing.T) (*httptest.Server, *faultingStore) {
	t.Helper()
	fs := &faultingStore{InMemoryStore: store.NewInMemoryStore()}
	svc := matching.NewService(fs, fs, nil, zap.NewNop(), matching.DefaultOptions())
	handler := NewMatchingHandler(zap.NewNop(), svc)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv, fs
}

func TestMatchTaskStoreDown(t *testing.T) {
	srv, fs := newFaultingHandler(t)
	task := seedTask(t, fs.InMemoryStore)
	fs.getTaskErr = errors.New("connection refused")

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/match", srv.URL, task.ID), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.False(t, env.Success)
	require.Equal(t, models.ErrCodeMatchingFailed, env.Error.Code)
}

func TestMatchDirectoryDown(t *testing.T) {
	srv, fs := newFaultingHandler(t)
	task := seedTask(t, fs.InMemoryStore)
	seedOperator(t, fs.InMemoryStore, 85, 0)
	fs.listErr = errors.New("read timeout")

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/match", srv.URL, task.ID), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, models.ErrCodeMatchingFailed, env.Error.Code)
}

func TestAutoAssignWriteFailure(t *testing.T) {
	srv, fs := newFaultingHandler(t)
	task := seedTask(t, fs.InMemoryStore)
	op := seedOperator(t, fs.InMemoryStore, 85, 0)
	fs.assignErr = errors.New("connection reset by peer")

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{"operator_id": op.ID.String()})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, models.ErrCodeAssignmentFailed, env.Error.Code)

	// The write failed; the task must still be open for a later retry.
	stored, err := fs.InMemoryStore.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, stored.Status)
}

func TestAutoAssignMissingOperatorID(t *testing.T) {
	srv, mem := newTestHandler(t)
	task := seedTask(t, mem)

	resp, env := postJSON(t, fmt.Sprintf("%s/tasks/%s/auto-assign", srv.URL, task.ID),
		map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, models.ErrCodeValidationFailed, env.Error.Code)
}
