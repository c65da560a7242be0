package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/repositories"
)

// finalizeTimeout bounds the write that closes out an execution record.
const finalizeTimeout = 5 * time.Second

// QueryService runs model-authored and persisted SQL against target databases.
type QueryService interface {
	// ExecuteDisplays runs every display's SQL and annotates it with the rows returned.
	ExecuteDisplays(ctx context.Context, displays []models.DisplayConfig, connectionString string, obs llm.ProgressObserver) ([]models.DisplayResult, error)

	// RefreshDashboardItem re-runs a saved item and records the outcome. Query
	// failures are captured in a failed execution rather than returned.
	RefreshDashboardItem(ctx context.Context, item *models.DashboardItem, connectionString string) (*models.DashboardItemExecution, error)

	// GetLatestExecution returns the newest successful execution of an item.
	GetLatestExecution(ctx context.Context, itemID uuid.UUID) (*models.DashboardItemExecution, error)
}

// QueryServiceConfig holds execution limits.
type QueryServiceConfig struct {
	AdHocTimeout   time.Duration
	RefreshTimeout time.Duration
	MaxParallel    int
}

type queryService struct {
	runner     datasource.QueryRunner
	executions repositories.ExecutionRepository
	cfg        QueryServiceConfig
	logger     *zap.Logger
}

// NewQueryService creates a query service.
func NewQueryService(
	runner datasource.QueryRunner,
	executions repositories.ExecutionRepository,
	cfg *QueryServiceConfig,
	logger *zap.Logger,
) QueryService {
	c := QueryServiceConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.AdHocTimeout <= 0 {
		c.AdHocTimeout = datasource.AdHocQueryTimeout
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = datasource.RefreshQueryTimeout
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	return &queryService{
		runner:     runner,
		executions: executions,
		cfg:        c,
		logger:     logger.Named("query"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) ExecuteDisplays(ctx context.Context, displays []models.DisplayConfig, connectionString string, obs llm.ProgressObserver) ([]models.DisplayResult, error) {
	if connectionString == "" {
		return nil, apperrors.ErrMissingConnectionString
	}

	out := make([]models.DisplayResult, len(displays))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for i, display := range displays {
		llm.Notify(ctx, obs, llm.ProgressEvent{
			Stage:   llm.StageExecuting,
			Message: fmt.Sprintf("Executing SQL query %d of %d", i+1, len(displays)),
		})

		// Go blocks while MaxParallel queries are in flight.
		g.Go(func() error {
			result, err := s.runner.ExecuteWithTimeout(gctx, display.SQL, connectionString, s.cfg.AdHocTimeout)
			if err != nil {
				return fmt.Errorf("display %d: %w", i+1, err)
			}
			rows := result.Rows
			if rows == nil {
				rows = []map[string]any{}
			}
			out[i] = models.DisplayResult{DisplayConfig: display, Results: rows}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Display execution failed", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return out, nil
}

func (s *queryService) RefreshDashboardItem(ctx context.Context, item *models.DashboardItem, connectionString string) (exec *models.DashboardItemExecution, err error) {
	if item == nil || item.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: dashboard item id is required", apperrors.ErrInvalidRequest)
	}
	if strings.TrimSpace(item.Display.SQL) == "" {
		return nil, fmt.Errorf("%w: dashboard item has no sql", apperrors.ErrInvalidRequest)
	}
	if connectionString == "" {
		return nil, apperrors.ErrMissingConnectionString
	}

	pending := &models.DashboardItemExecution{
		ID:        uuid.New(),
		ItemID:    item.ID,
		Status:    models.ExecutionStatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := s.executions.Create(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	var (
		rows   []map[string]any
		runErr error
	)

	// Every path out of this function, panics included, finalizes the record.
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("panic during query execution: %v", p)
			s.logger.Error("Recovered panic while refreshing dashboard item",
				zap.String("item_id", item.ID.String()),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
		exec, err = s.finalize(ctx, pending, rows, runErr)
	}()

	result, runErr := s.runner.ExecuteWithTimeout(ctx, item.Display.SQL, connectionString, s.cfg.RefreshTimeout)
	if runErr == nil {
		rows = result.Rows
	}
	return exec, err
}

// finalize moves a pending execution to success or failed. It writes with a
// context detached from the caller so cancellation cannot strand the record.
func (s *queryService) finalize(ctx context.Context, pending *models.DashboardItemExecution, rows []map[string]any, runErr error) (*models.DashboardItemExecution, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var (
		final *models.DashboardItemExecution
		err   error
	)
	if runErr == nil {
		final, err = s.executions.Complete(writeCtx, pending.ID, rows)
	} else {
		s.logger.Warn("Dashboard item refresh failed",
			zap.String("item_id", pending.ItemID.String()),
			zap.String("error", logging.SanitizeError(runErr)),
		)
		final, err = s.executions.Fail(writeCtx, pending.ID, runErr.Error())
	}
	if err != nil {
		s.logger.Error("Failed to finalize execution record",
			zap.String("execution_id", pending.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to finalize execution %s: %w", pending.ID, err)
	}

	s.logger.Info("Dashboard item refreshed",
		zap.String("item_id", pending.ItemID.String()),
		zap.String("status", string(final.Status)),
		zap.Int("rows", len(final.Results)),
	)
	return final, nil
}

func (s *queryService) GetLatestExecution(ctx context.Context, itemID uuid.UUID) (*models.DashboardItemExecution, error) {
	return s.executions.FindLatestSuccessfulByItemID(ctx, itemID)
}
