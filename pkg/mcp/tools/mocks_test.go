package tools

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/models"
)

type mockGenerator struct {
	result *models.GenerationResult
	err    error

	mu      sync.Mutex
	queries []string
}

func (m *mockGenerator) GenerateSQL(_ context.Context, query, _ string, _ llm.ProgressObserver) (*models.GenerationResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.result, m.err
}

func (m *mockGenerator) GenerateFollowupSQL(_ context.Context, instruction string, _ *models.QueryContext, _ string, _ llm.ProgressObserver) (*models.GenerationResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, instruction)
	m.mu.Unlock()
	return m.result, m.err
}

type mockQueries struct {
	rows     map[string][]map[string]any
	err      error
	executed int
}

func (m *mockQueries) ExecuteDisplays(_ context.Context, displays []models.DisplayConfig, _ string, _ llm.ProgressObserver) ([]models.DisplayResult, error) {
	m.executed++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.DisplayResult, len(displays))
	for i, d := range displays {
		out[i] = models.DisplayResult{DisplayConfig: d, Results: m.rows[d.SQL]}
	}
	return out, nil
}

func (m *mockQueries) RefreshDashboardItem(context.Context, *models.DashboardItem, string) (*models.DashboardItemExecution, error) {
	panic("not used by MCP tools")
}

func (m *mockQueries) GetLatestExecution(context.Context, uuid.UUID) (*models.DashboardItemExecution, error) {
	panic("not used by MCP tools")
}

type mockSchema struct {
	text        string
	err         error
	invalidated int
}

func (m *mockSchema) GetSchema(context.Context, string) (*models.DatabaseSchema, error) {
	return &models.DatabaseSchema{}, m.err
}

func (m *mockSchema) GetFormattedSchema(context.Context, string) (string, error) {
	return m.text, m.err
}

func (m *mockSchema) Invalidate(context.Context, string) error {
	m.invalidated++
	return nil
}

type sampleCall struct {
	table   string
	numRows int
	connStr string
}

type mockSampler struct {
	rows  []map[string]any
	err   error
	calls []sampleCall
}

func (m *mockSampler) SampleTable(_ context.Context, table string, numRows int, connStr string) ([]map[string]any, error) {
	m.calls = append(m.calls, sampleCall{table, numRows, connStr})
	return m.rows, m.err
}
