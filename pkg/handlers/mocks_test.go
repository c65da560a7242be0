package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/models"
)

// mockGenerator emits the scripted progress events to the observer before
// returning result or err.
type mockGenerator struct {
	progress []llm.ProgressEvent
	result   *models.GenerationResult
	err      error

	lastQuery string
	lastPrev  *models.QueryContext
	lastConn  string
}

func (m *mockGenerator) emit(ctx context.Context, obs llm.ProgressObserver) {
	for _, ev := range m.progress {
		llm.Notify(ctx, obs, ev)
	}
}

func (m *mockGenerator) GenerateSQL(ctx context.Context, query, conn string, obs llm.ProgressObserver) (*models.GenerationResult, error) {
	m.lastQuery, m.lastConn = query, conn
	m.emit(ctx, obs)
	return m.result, m.err
}

func (m *mockGenerator) GenerateFollowupSQL(ctx context.Context, instruction string, prev *models.QueryContext, conn string, obs llm.ProgressObserver) (*models.GenerationResult, error) {
	m.lastQuery, m.lastPrev, m.lastConn = instruction, prev, conn
	m.emit(ctx, obs)
	return m.result, m.err
}

type mockQueries struct {
	rows    []map[string]any
	execErr error

	refreshed  *models.DashboardItem
	refreshErr error
	execution  *models.DashboardItemExecution

	latest    *models.DashboardItemExecution
	latestErr error
}

func (m *mockQueries) ExecuteDisplays(ctx context.Context, displays []models.DisplayConfig, _ string, obs llm.ProgressObserver) ([]models.DisplayResult, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	out := make([]models.DisplayResult, len(displays))
	for i, d := range displays {
		llm.Notify(ctx, obs, llm.ProgressEvent{Stage: llm.StageExecuting, Message: "Executing SQL query"})
		out[i] = models.DisplayResult{DisplayConfig: d, Results: m.rows}
	}
	return out, nil
}

func (m *mockQueries) RefreshDashboardItem(_ context.Context, item *models.DashboardItem, _ string) (*models.DashboardItemExecution, error) {
	m.refreshed = item
	return m.execution, m.refreshErr
}

func (m *mockQueries) GetLatestExecution(context.Context, uuid.UUID) (*models.DashboardItemExecution, error) {
	return m.latest, m.latestErr
}

type staticPoolStats datasource.PoolStats

func (s staticPoolStats) Stats() datasource.PoolStats {
	return datasource.PoolStats(s)
}

type panickingGenerator struct{}

func (panickingGenerator) GenerateSQL(context.Context, string, string, llm.ProgressObserver) (*models.GenerationResult, error) {
	panic("generator exploded")
}

func (panickingGenerator) GenerateFollowupSQL(context.Context, string, *models.QueryContext, string, llm.ProgressObserver) (*models.GenerationResult, error) {
	panic("generator exploded")
}
