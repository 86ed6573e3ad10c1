package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/models"
)

// AssignWithRotation decides whether the requested operator may take the
// task and, if so, performs the single guarded open -> assigned write.
// Exactly one task mutation happens on success and none on rejection.
func (s *Service) AssignWithRotation(ctx context.Context, taskID, operatorID uuid.UUID) (*models.AssignmentResult, error) {
	task, err := s.loadTask(ctx, taskID, models.ErrCodeAssignmentFailed)
	if err != nil {
		return nil, err
	}

	// Cheap early rejection for tasks that already left OPEN. The real
	// guarantee is the conditional write below; this just avoids ranking
	// work for a task that cannot be assigned anyway.
	if task.Status != models.StatusOpen {
		return nil, models.NewMatchingError(models.ErrCodeTaskUnavailable,
			fmt.Sprintf("task %s is %s, not open", taskID, task.Status),
			models.ErrTaskUnavailable)
	}

	// Re-run candidate discovery: eligibility and rotation are always
	// decided over the current snapshot, never a caller-supplied ranking.
	candidates, err := s.findCandidatesForTask(ctx, task)
	if err != nil {
		return nil, err
	}

	requested := findCandidate(candidates, operatorID)
	if requested == nil {
		return nil, models.NewMatchingError(models.ErrCodeIneligibleOperator,
			fmt.Sprintf("operator %s is not eligible for task %s", operatorID, taskID),
			models.ErrIneligibleOperator)
	}

	if rejected, median := s.exceedsRotationLimit(requested, candidates); rejected {
		mErr := models.NewMatchingError(models.ErrCodeRotationLimitExceeded,
			fmt.Sprintf("operator %s has %d recent assignments against a top-candidate median of %.1f",
				operatorID, requested.Operator.RecentAssignments, median),
			models.ErrRotationLimitExceeded)
		if alt := nextBestCandidate(candidates, operatorID); alt != nil {
			altID := alt.Operator.ID
			mErr.SuggestedOperator = &altID
		}
		s.logger.Info("Assignment rejected by rotation rule",
			zap.String("task_id", taskID.String()),
			zap.String("operator_id", operatorID.String()),
			zap.Int("recent_assignments", requested.Operator.RecentAssignments),
			zap.Float64("median", median),
		)
		return nil, mErr
	}

	// The compare-and-swap. Losing the race against a concurrent assign
	// surfaces as ok == false, never as a duplicate assignment, so a
	// timed-out attempt is always safe for the caller to retry.
	ok, err := s.tasks.AssignTask(ctx, taskID, operatorID)
	if err != nil {
		return nil, models.NewMatchingError(models.ErrCodeAssignmentFailed,
			"conditional assignment write failed", err)
	}
	if !ok {
		return nil, models.NewMatchingError(models.ErrCodeTaskUnavailable,
			fmt.Sprintf("task %s was claimed concurrently", taskID),
			models.ErrTaskUnavailable)
	}

	assignedAt := time.Now().UTC()
	s.logger.Info("Task assigned",
		zap.String("task_id", taskID.String()),
		zap.String("operator_id", operatorID.String()),
		zap.Float64("match_score", requested.MatchScore),
	)

	// Best-effort follow-ups. The assignment already happened; failures
	// here are logged, not surfaced.
	if err := s.operators.IncrementRecentAssignments(ctx, operatorID); err != nil {
		s.logger.Warn("Failed to bump operator assignment counter",
			zap.String("operator_id", operatorID.String()),
			zap.Error(err),
		)
	}
	if s.publisher != nil {
		event := &models.AssignmentEvent{
			TaskID:     taskID,
			OperatorID: operatorID,
			TaskType:   task.TaskType,
			MatchScore: requested.MatchScore,
			AssignedAt: assignedAt,
		}
		if err := s.publisher.PublishAssignment(ctx, event); err != nil {
			s.logger.Warn("Failed to publish assignment event",
				zap.String("task_id", taskID.String()),
				zap.Error(err),
			)
		}
	}

	return &models.AssignmentResult{
		TaskID:     taskID,
		OperatorID: operatorID,
		Status:     models.StatusAssigned,
		AssignedAt: assignedAt,
	}, nil
}

// exceedsRotationLimit applies the fairness guard: the requested operator is
// rejected when its recent assignment count exceeds RotationFactor times the
// median count of the top-N candidates. This keeps a single high-reputation
// operator from monopolizing assignments even when explicitly requested.
func (s *Service) exceedsRotationLimit(requested *models.Candidate, candidates []*models.Candidate) (bool, float64) {
	top := candidates
	if len(top) > s.opts.TopCandidates {
		top = top[:s.opts.TopCandidates]
	}
	median := medianRecentAssignments(top)
	return float64(requested.Operator.RecentAssignments) > s.opts.RotationFactor*median, median
}

// medianRecentAssignments computes the median of the candidates' recent
// assignment counts; even-length lists use the mean of the middle pair.
func medianRecentAssignments(candidates []*models.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	counts := make([]int, len(candidates))
	for i, c := range candidates {
		counts[i] = c.Operator.RecentAssignments
	}
	sort.Ints(counts)
	mid := len(counts) / 2
	if len(counts)%2 == 1 {
		return float64(counts[mid])
	}
	return float64(counts[mid-1]+counts[mid]) / 2
}

func findCandidate(candidates []*models.Candidate, operatorID uuid.UUID) *models.Candidate {
	for _, c := range candidates {
		if c.Operator.ID == operatorID {
			return c
		}
	}
	return nil
}

// nextBestCandidate returns the highest-ranked candidate other than the
// requested operator, used as the suggestion on rotation rejections.
func nextBestCandidate(candidates []*models.Candidate, excluded uuid.UUID) *models.Candidate {
	for _, c := range candidates {
		if c.Operator.ID != excluded {
			return c
		}
	}
	return nil
}
