package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/models"
)

// ExecutionRepository persists dashboard item executions. A record is created
// pending and finalized exactly once.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *models.DashboardItemExecution) error
	Complete(ctx context.Context, id uuid.UUID, results []map[string]any) (*models.DashboardItemExecution, error)
	Fail(ctx context.Context, id uuid.UUID, message string) (*models.DashboardItemExecution, error)
	FindLatestSuccessfulByItemID(ctx context.Context, itemID uuid.UUID) (*models.DashboardItemExecution, error)
}

type executionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a repository over the engine database.
func NewExecutionRepository(db *sql.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

var _ ExecutionRepository = (*executionRepository)(nil)

const executionColumns = `id, item_id, status, results, error_message, started_at, completed_at`

func (r *executionRepository) Create(ctx context.Context, exec *models.DashboardItemExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	exec.Status = models.ExecutionStatusPending

	query := `
		INSERT INTO dashboard_item_executions (id, item_id, status, started_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query, exec.ID, exec.ItemID, string(exec.Status), exec.StartedAt); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (r *executionRepository) Complete(ctx context.Context, id uuid.UUID, results []map[string]any) (*models.DashboardItemExecution, error) {
	if results == nil {
		results = []map[string]any{}
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}

	query := `
		UPDATE dashboard_item_executions
		SET status = 'success', results = $2, completed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + executionColumns

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to complete execution %s: %w", id, err)
	}
	return exec, nil
}

func (r *executionRepository) Fail(ctx context.Context, id uuid.UUID, message string) (*models.DashboardItemExecution, error) {
	query := `
		UPDATE dashboard_item_executions
		SET status = 'failed', error_message = $2, completed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + executionColumns

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id, message))
	if err != nil {
		return nil, fmt.Errorf("failed to fail execution %s: %w", id, err)
	}
	return exec, nil
}

func (r *executionRepository) FindLatestSuccessfulByItemID(ctx context.Context, itemID uuid.UUID) (*models.DashboardItemExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM dashboard_item_executions
		WHERE item_id = $1 AND status = 'success'
		ORDER BY started_at DESC
		LIMIT 1`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to find latest execution for item %s: %w", itemID, err)
	}
	return exec, nil
}

// scanExecution maps a row to an execution; no row is apperrors.ErrNotFound.
func scanExecution(row *sql.Row) (*models.DashboardItemExecution, error) {
	var (
		exec        models.DashboardItemExecution
		status      string
		results     []byte
		errMessage  sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&exec.ID, &exec.ItemID, &status, &results, &errMessage, &exec.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	exec.Status = models.ExecutionStatus(status)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &exec.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	if errMessage.Valid {
		exec.ErrorMessage = &errMessage.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		exec.CompletedAt = &t
	}
	return &exec, nil
}
