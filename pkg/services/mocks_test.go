package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/models"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockSchemaService returns a fixed formatted schema.
type mockSchemaService struct {
	mu        sync.Mutex
	formatted string
	err       error
	calls     int
}

func (m *mockSchemaService) GetSchema(context.Context, string) (*models.DatabaseSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.DatabaseSchema{}, nil
}

func (m *mockSchemaService) GetFormattedSchema(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.formatted, nil
}

func (m *mockSchemaService) Invalidate(context.Context, string) error { return nil }

// mockIntrospector counts introspections and can block until released.
type mockIntrospector struct {
	mu      sync.Mutex
	schema  *models.DatabaseSchema
	err     error
	calls   int
	release chan struct{}
}

func (m *mockIntrospector) GetFullSchema(ctx context.Context, _ string) (*models.DatabaseSchema, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.schema, nil
}

func (m *mockIntrospector) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockSampler returns canned rows per table.
type mockSampler struct {
	mu    sync.Mutex
	rows  map[string][]map[string]any
	calls []string
}

func (m *mockSampler) SampleTable(_ context.Context, tableName string, _ int, _ string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, tableName)
	return m.rows[tableName], nil
}

type runnerCall struct {
	sql     string
	timeout time.Duration
}

// mockQueryRunner dispatches on SQL text.
type mockQueryRunner struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, sql string) (*datasource.QueryResult, error)
	calls []runnerCall
}

func (m *mockQueryRunner) ExecuteReadOnlyQuery(ctx context.Context, sql, connectionString string, params ...any) (*datasource.QueryResult, error) {
	return m.ExecuteWithTimeout(ctx, sql, connectionString, datasource.AdHocQueryTimeout, params...)
}

func (m *mockQueryRunner) ExecuteWithTimeout(ctx context.Context, sql, _ string, timeout time.Duration, _ ...any) (*datasource.QueryResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runnerCall{sql: sql, timeout: timeout})
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, sql)
	}
	return &datasource.QueryResult{}, nil
}

// mockExecutionRepository keeps executions in memory and enforces the
// pending-to-terminal transition.
type mockExecutionRepository struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*models.DashboardItemExecution
	createErr error
	finalErr  error
	finalCtx  []context.Context
}

func newMockExecutionRepository() *mockExecutionRepository {
	return &mockExecutionRepository{records: make(map[uuid.UUID]*models.DashboardItemExecution)}
}

func (m *mockExecutionRepository) Create(_ context.Context, exec *models.DashboardItemExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *exec
	cp.Status = models.ExecutionStatusPending
	m.records[exec.ID] = &cp
	return nil
}

func (m *mockExecutionRepository) finish(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, rows []map[string]any, msg *string) (*models.DashboardItemExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalCtx = append(m.finalCtx, ctx)
	if m.finalErr != nil {
		return nil, m.finalErr
	}
	rec, ok := m.records[id]
	if !ok || rec.Status != models.ExecutionStatusPending {
		return nil, apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.Results = rows
	rec.ErrorMessage = msg
	rec.CompletedAt = &now
	cp := *rec
	return &cp, nil
}

func (m *mockExecutionRepository) Complete(ctx context.Context, id uuid.UUID, results []map[string]any) (*models.DashboardItemExecution, error) {
	if results == nil {
		results = []map[string]any{}
	}
	return m.finish(ctx, id, models.ExecutionStatusSuccess, results, nil)
}

func (m *mockExecutionRepository) Fail(ctx context.Context, id uuid.UUID, message string) (*models.DashboardItemExecution, error) {
	return m.finish(ctx, id, models.ExecutionStatusFailed, nil, &message)
}

func (m *mockExecutionRepository) FindLatestSuccessfulByItemID(_ context.Context, itemID uuid.UUID) (*models.DashboardItemExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.DashboardItemExecution
	for _, rec := range m.records {
		if rec.ItemID != itemID || rec.Status != models.ExecutionStatusSuccess {
			continue
		}
		if latest == nil || rec.StartedAt.After(latest.StartedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockExecutionRepository) statuses() map[models.ExecutionStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.ExecutionStatus]int)
	for _, rec := range m.records {
		out[rec.Status]++
	}
	return out
}

// eventRecorder is a ProgressObserver that keeps every message.
type eventRecorder struct {
	mu     sync.Mutex
	events []llm.ProgressEvent
}

func (r *eventRecorder) OnProgress(_ context.Context, ev llm.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Message
	}
	return out
}
