package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rentman-app/matching-service/internal/models"
)

const (
	readRetryAttempts = 3
	readRetryDelay    = 100 * time.Millisecond
)

// PostgresStore implements TaskStore and OperatorDirectory using a
// PostgreSQL database. It expects a connected pgxpool.Pool.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Initialize creates the 'tasks' and 'operators' tables if they don't
// already exist. A versioned migration tool would own this in production;
// CREATE TABLE IF NOT EXISTS keeps the service self-contained here.
func (ps *PostgresStore) Initialize(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS tasks (
		id UUID PRIMARY KEY,
		requester_id VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		task_type VARCHAR(100) NOT NULL,
		budget_amount NUMERIC(12,2) NOT NULL,
		required_skills JSONB NOT NULL DEFAULT '[]',
		min_reputation DOUBLE PRECISION NOT NULL DEFAULT 0,
		location VARCHAR(255),
		status VARCHAR(50) NOT NULL,
		assigned_operator UUID,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);
	CREATE INDEX IF NOT EXISTS idx_tasks_requester_id ON tasks (requester_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned_operator ON tasks (assigned_operator) WHERE assigned_operator IS NOT NULL;

	CREATE TABLE IF NOT EXISTS operators (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		skills JSONB NOT NULL DEFAULT '[]',
		reputation_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		recent_assignment_count INTEGER NOT NULL DEFAULT 0,
		location VARCHAR(255),
		registered_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operators_is_available ON operators (is_available);
	CREATE INDEX IF NOT EXISTS idx_operators_skills ON operators USING GIN (skills);
	`

	_, err := ps.db.Exec(ctx, createTableSQL)
	if err != nil {
		ps.logger.Error("Failed to create matching tables", zap.Error(err))
		return fmt.Errorf("initializing matching tables: %w", err)
	}
	ps.logger.Info("'tasks' and 'operators' tables checked/created successfully")
	return nil
}

// SaveTask inserts a new task row.
func (ps *PostgresStore) SaveTask(ctx context.Context, task *models.Task) error {
	skillsJSON, err := json.Marshal(task.RequiredSkills)
	if err != nil {
		return fmt.Errorf("marshalling required_skills for SaveTask: %w", err)
	}

	sqlQuery := `
	INSERT INTO tasks (
		id, requester_id, title, description, task_type, budget_amount,
		required_skills, min_reputation, location, status, assigned_operator,
		created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var assignedOperator any
	if task.AssignedOperator != nil {
		assignedOperator = *task.AssignedOperator
	}

	_, err = ps.db.Exec(ctx, sqlQuery,
		task.ID,
		task.RequesterID,
		task.Title,
		sql.NullString{String: task.Description, Valid: task.Description != ""},
		task.TaskType,
		task.BudgetAmount,
		skillsJSON,
		task.MinReputation,
		sql.NullString{String: task.Location, Valid: task.Location != ""},
		task.Status,
		assignedOperator,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrTaskAlreadyExists
		}
		ps.logger.Error("Failed to save task to DB", zap.String("task_id", task.ID.String()), zap.Error(err))
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by its ID.
func (ps *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	sqlQuery := `
	SELECT id, requester_id, title, description, task_type, budget_amount,
		required_skills, min_reputation, location, status, assigned_operator,
		created_at, updated_at
	FROM tasks WHERE id = $1
	`

	var task *models.Task
	err := WithReadRetry(ctx, ps.logger, "GetTask", readRetryAttempts, readRetryDelay, func() error {
		t, scanErr := ps.scanTaskRow(ps.db.QueryRow(ctx, sqlQuery, id))
		if scanErr != nil {
			return scanErr
		}
		task = t
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTaskNotFound
		}
		ps.logger.Error("Failed to get task from DB", zap.String("task_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return task, nil
}

// AssignTask is the atomic compare-and-swap on the task row. The WHERE
// clause guards on status = 'open' so a lost race shows up as zero affected
// rows, never as a second assignment.
func (ps *PostgresStore) AssignTask(ctx context.Context, taskID, operatorID uuid.UUID) (bool, error) {
	sqlQuery := `
	UPDATE tasks
	SET status = $1, assigned_operator = $2, updated_at = $3
	WHERE id = $4 AND status = $5
	`

	cmdTag, err := ps.db.Exec(ctx, sqlQuery,
		models.StatusAssigned,
		operatorID,
		time.Now().UTC(),
		taskID,
		models.StatusOpen,
	)
	if err != nil {
		ps.logger.Error("Failed to execute conditional assignment",
			zap.String("task_id", taskID.String()),
			zap.String("operator_id", operatorID.String()),
			zap.Error(err),
		)
		return false, fmt.Errorf("assigning task %s: %w", taskID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		// Either the task does not exist or it is no longer open. The
		// caller has just loaded the task, so distinguish the two for a
		// precise error only when it is genuinely absent.
		if _, getErr := ps.GetTask(ctx, taskID); errors.Is(getErr, models.ErrTaskNotFound) {
			return false, models.ErrTaskNotFound
		}
		return false, nil
	}
	return true, nil
}

// ListTasksByStatus retrieves tasks matching a specific status, oldest first.
func (ps *PostgresStore) ListTasksByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]*models.Task, error) {
	sqlQuery := `
	SELECT id, requester_id, title, description, task_type, budget_amount,
		required_skills, min_reputation, location, status, assigned_operator,
		created_at, updated_at
	FROM tasks
	WHERE status = $1
	ORDER BY created_at ASC
	LIMIT $2
	`

	rows, err := ps.db.Query(ctx, sqlQuery, status, limit)
	if err != nil {
		ps.logger.Error("Failed to list tasks by status", zap.String("status", string(status)), zap.Error(err))
		return nil, fmt.Errorf("listing tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, scanErr := ps.scanTaskRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning task row: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating task rows: %w", rows.Err())
	}
	return tasks, nil
}

// AddOperator inserts a new operator row.
func (ps *PostgresStore) AddOperator(ctx context.Context, operator *models.Operator) error {
	skillsJSON, err := json.Marshal(operator.Skills)
	if err != nil {
		return fmt.Errorf("marshalling skills for AddOperator: %w", err)
	}

	sqlQuery := `
	INSERT INTO operators (
		id, name, skills, reputation_score, level, is_available,
		recent_assignment_count, location, registered_at, last_seen_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = ps.db.Exec(ctx, sqlQuery,
		operator.ID,
		operator.Name,
		skillsJSON,
		operator.ReputationScore,
		operator.Level,
		operator.IsAvailable,
		operator.RecentAssignments,
		sql.NullString{String: operator.Location, Valid: operator.Location != ""},
		operator.RegisteredAt,
		operator.LastSeenAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrOperatorAlreadyExists
		}
		ps.logger.Error("Failed to add operator to DB", zap.String("operator_id", operator.ID.String()), zap.Error(err))
		return fmt.Errorf("adding operator %s: %w", operator.ID, err)
	}
	return nil
}

// GetOperator retrieves an operator by ID.
func (ps *PostgresStore) GetOperator(ctx context.Context, id uuid.UUID) (*models.Operator, error) {
	sqlQuery := `
	SELECT id, name, skills, reputation_score, level, is_available,
		recent_assignment_count, location, registered_at, last_seen_at
	FROM operators WHERE id = $1
	`

	var operator *models.Operator
	err := WithReadRetry(ctx, ps.logger, "GetOperator", readRetryAttempts, readRetryDelay, func() error {
		o, scanErr := ps.scanOperatorRow(ps.db.QueryRow(ctx, sqlQuery, id))
		if scanErr != nil {
			return scanErr
		}
		operator = o
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOperatorNotFound
		}
		ps.logger.Error("Failed to get operator from DB", zap.String("operator_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("getting operator %s: %w", id, err)
	}
	return operator, nil
}

// ListAvailableOperators returns every operator with is_available = true.
// Skill and reputation filtering deliberately happens in the scorer, over
// this one snapshot, so the decision logic stays pure and testable.
func (ps *PostgresStore) ListAvailableOperators(ctx context.Context) ([]*models.Operator, error) {
	sqlQuery := `
	SELECT id, name, skills, reputation_score, level, is_available,
		recent_assignment_count, location, registered_at, last_seen_at
	FROM operators
	WHERE is_available = TRUE
	ORDER BY id ASC
	`

	var operators []*models.Operator
	err := WithReadRetry(ctx, ps.logger, "ListAvailableOperators", readRetryAttempts, readRetryDelay, func() error {
		rows, queryErr := ps.db.Query(ctx, sqlQuery)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		var scanned []*models.Operator
		for rows.Next() {
			operator, scanErr := ps.scanOperatorRow(rows)
			if scanErr != nil {
				return scanErr
			}
			scanned = append(scanned, operator)
		}
		if rows.Err() != nil {
			return rows.Err()
		}
		operators = scanned
		return nil
	})
	if err != nil {
		ps.logger.Error("Failed to list available operators", zap.Error(err))
		return nil, fmt.Errorf("listing available operators: %w", err)
	}
	return operators, nil
}

// UpdateOperatorAvailability flips the availability flag.
func (ps *PostgresStore) UpdateOperatorAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	sqlQuery := `
	UPDATE operators SET is_available = $1, last_seen_at = $2 WHERE id = $3
	`
	cmdTag, err := ps.db.Exec(ctx, sqlQuery, available, time.Now().UTC(), id)
	if err != nil {
		ps.logger.Error("Failed to update operator availability", zap.String("operator_id", id.String()), zap.Error(err))
		return fmt.Errorf("updating availability for operator %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrOperatorNotFound
	}
	return nil
}

// IncrementRecentAssignments bumps the rolling counter in a single UPDATE so
// concurrent assignments never lose increments.
func (ps *PostgresStore) IncrementRecentAssignments(ctx context.Context, id uuid.UUID) error {
	sqlQuery := `
	UPDATE operators
	SET recent_assignment_count = recent_assignment_count + 1, last_seen_at = $1
	WHERE id = $2
	`
	cmdTag, err := ps.db.Exec(ctx, sqlQuery, time.Now().UTC(), id)
	if err != nil {
		ps.logger.Error("Failed to increment assignment counter", zap.String("operator_id", id.String()), zap.Error(err))
		return fmt.Errorf("incrementing assignments for operator %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrOperatorNotFound
	}
	return nil
}

// Close closes the database connection pool.
func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		ps.logger.Info("Closing PostgresStore database connection pool...")
		ps.db.Close()
	}
	return nil
}

func (ps *PostgresStore) scanTaskRow(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	var (
		description      sql.NullString
		location         sql.NullString
		assignedOperator *uuid.UUID
		skillsBytes      []byte
		budget           decimal.Decimal
	)

	err := row.Scan(
		&task.ID,
		&task.RequesterID,
		&task.Title,
		&description,
		&task.TaskType,
		&budget,
		&skillsBytes,
		&task.MinReputation,
		&location,
		&task.Status,
		&assignedOperator,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(skillsBytes, &task.RequiredSkills); err != nil {
		return nil, fmt.Errorf("unmarshalling required_skills: %w", err)
	}
	task.BudgetAmount = budget
	task.Description = description.String
	task.Location = location.String
	task.AssignedOperator = assignedOperator
	return task, nil
}

func (ps *PostgresStore) scanOperatorRow(row pgx.Row) (*models.Operator, error) {
	operator := &models.Operator{}
	var (
		location    sql.NullString
		skillsBytes []byte
	)

	err := row.Scan(
		&operator.ID,
		&operator.Name,
		&skillsBytes,
		&operator.ReputationScore,
		&operator.Level,
		&operator.IsAvailable,
		&operator.RecentAssignments,
		&location,
		&operator.RegisteredAt,
		&operator.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(skillsBytes, &operator.Skills); err != nil {
		return nil, fmt.Errorf("unmarshalling skills: %w", err)
	}
	operator.Location = location.String
	return operator, nil
}
