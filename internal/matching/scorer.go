package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/models"
)

// FindCandidates produces the ranked eligible operator list for a task.
// It is read-only and reflects a live snapshot: the directory is queried
// once, then all filtering and scoring happens over that in-memory list.
// Zero qualifying operators is an empty result, not an error.
func (s *Service) FindCandidates(ctx context.Context, taskID uuid.UUID) (*models.MatchResult, error) {
	task, err := s.loadTask(ctx, taskID, models.ErrCodeMatchingFailed)
	if err != nil {
		return nil, err
	}
	candidates, err := s.findCandidatesForTask(ctx, task)
	if err != nil {
		return nil, err
	}
	return &models.MatchResult{
		TaskID:     task.ID,
		Candidates: candidates,
		TotalFound: len(candidates),
	}, nil
}

// findCandidatesForTask queries the directory and ranks the result. The
// assigner calls this too, so a caller-supplied stale ranking is never
// trusted.
func (s *Service) findCandidatesForTask(ctx context.Context, task *models.Task) ([]*models.Candidate, error) {
	operators, err := s.operators.ListAvailableOperators(ctx)
	if err != nil {
		s.logger.Error("Failed to query operator directory",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
		return nil, models.NewMatchingError(models.ErrCodeMatchingFailed,
			"operator directory query failed", err)
	}

	var candidates []*models.Candidate
	for _, operator := range operators {
		if !eligible(task, operator) {
			continue
		}
		candidates = append(candidates, s.score(operator))
	}
	rankCandidates(candidates)

	s.logger.Debug("Ranked candidates for task",
		zap.String("task_id", task.ID.String()),
		zap.Int("eligible", len(candidates)),
		zap.Int("directory_size", len(operators)),
	)
	return candidates, nil
}

// eligible applies the hard qualification filters: availability, skill
// containment (case-insensitive), reputation floor, and the optional
// location constraint.
func eligible(task *models.Task, operator *models.Operator) bool {
	if !operator.IsAvailable {
		return false
	}
	if !operator.HasSkills(task.RequiredSkills) {
		return false
	}
	if operator.ReputationScore < task.MinReputation {
		return false
	}
	return operator.MatchesLocation(task.Location)
}

// score computes the weighted blend of reputation and growth. The growth
// component discounts operators with many recent assignments so task volume
// spreads across the pool instead of always routing to the top performer.
func (s *Service) score(operator *models.Operator) *models.Candidate {
	reputation := operator.ReputationScore / 100
	growth := 1 / (1 + float64(operator.RecentAssignments))
	return &models.Candidate{
		Operator:            operator,
		ReputationComponent: reputation,
		GrowthComponent:     growth,
		MatchScore:          s.opts.ReputationWeight*reputation + s.opts.GrowthWeight*growth,
	}
}

// rankCandidates sorts by score descending; ties break by ascending recent
// assignment count, then by operator ID, so the ordering is deterministic
// for identical snapshots.
func rankCandidates(candidates []*models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.Operator.RecentAssignments != b.Operator.RecentAssignments {
			return a.Operator.RecentAssignments < b.Operator.RecentAssignments
		}
		return a.Operator.ID.String() < b.Operator.ID.String()
	})
}

// loadTask fetches the task and maps store failures onto the matching error
// taxonomy. failureCode distinguishes the match path from the assign path.
func (s *Service) loadTask(ctx context.Context, taskID uuid.UUID, failureCode string) (*models.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			return nil, models.NewMatchingError(models.ErrCodeTaskNotFound,
				fmt.Sprintf("task %s does not exist", taskID), err)
		}
		s.logger.Error("Failed to load task", zap.String("task_id", taskID.String()), zap.Error(err))
		return nil, models.NewMatchingError(failureCode, "task store query failed", err)
	}
	return task, nil
}
