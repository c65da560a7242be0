package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayConfig_UnmarshalStat(t *testing.T) {
	raw := `{"type":"stat","sql":"SELECT COUNT(*) AS c FROM users","id":"c","name":"User Count"}`

	var d DisplayConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, DisplayTypeStat, d.Type)
	require.NotNil(t, d.StatDisplay)
	assert.Equal(t, "c", d.ID)
	assert.Equal(t, "User Count", d.Name)
	assert.Nil(t, d.TableDisplay)
	assert.Nil(t, d.ChartDisplay)
	assert.NoError(t, d.Validate())
}

func TestDisplayConfig_UnmarshalDropsForeignVariantFields(t *testing.T) {
	// A stat display that also carries a stray "title" must not grow a chart variant.
	raw := `{"type":"stat","sql":"SELECT 1","id":"x","name":"X","title":"ignored"}`

	var d DisplayConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Nil(t, d.ChartDisplay)
	assert.NotNil(t, d.StatDisplay)
}

func TestDisplayConfig_TableColumnsKeepOrder(t *testing.T) {
	raw := `{"type":"table","sql":"SELECT name, email, id FROM users","columns":{"name":"Name","email":"Email","id":"ID"}}`

	var d DisplayConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.NotNil(t, d.TableDisplay)
	assert.Equal(t, ColumnLabels{
		{Column: "name", Label: "Name"},
		{Column: "email", Label: "Email"},
		{Column: "id", Label: "ID"},
	}, d.Columns)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
	assert.Contains(t, string(out), `{"name":"Name","email":"Email","id":"ID"}`)
}

func TestDisplayConfig_ChartRoundTrip(t *testing.T) {
	raw := `{"type":"chart","sql":"SELECT day, total FROM sales","chartType":"line",
		"xAxis":{"column":"day","label":"Day"},"yAxis":{"column":"total","label":"Total"},"title":"Sales"}`

	var d DisplayConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.NotNil(t, d.ChartDisplay)
	assert.Equal(t, ChartTypeLine, d.ChartType)
	assert.Equal(t, "total", d.YAxis.Column)
	assert.NoError(t, d.Validate())
}

func TestDisplayConfig_ChartCategory(t *testing.T) {
	raw := `{"explanation":"Orders by status per month","display":[{"type":"chart","sql":"SELECT month, status, count(*) FROM orders GROUP BY 1, 2",
		"chartType":"bar","title":"Orders","xAxis":{"column":"month","label":"Month"},
		"yAxis":{"column":"count","label":"Orders"},"category":{"column":"status","label":"Status"}}]}`

	var result GenerationResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	require.NoError(t, result.Validate())
	require.Len(t, result.Display, 1)

	chart := result.Display[0].ChartDisplay
	require.NotNil(t, chart)
	require.NotNil(t, chart.Category)
	assert.Equal(t, AxisBinding{Column: "status", Label: "Status"}, *chart.Category)

	encoded, err := json.Marshal(result.Display[0])
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"category":{"column":"status","label":"Status"}`)

	var back DisplayConfig
	require.NoError(t, json.Unmarshal(encoded, &back))
	assert.Equal(t, result.Display[0], back)
}

func TestDisplayConfig_ChartWithoutCategoryOmitsIt(t *testing.T) {
	d := DisplayConfig{
		Type: DisplayTypeChart,
		SQL:  "SELECT day, total FROM sales",
		ChartDisplay: &ChartDisplay{
			ChartType: ChartTypeLine,
			XAxis:     AxisBinding{Column: "day", Label: "Day"},
			YAxis:     AxisBinding{Column: "total", Label: "Total"},
		},
	}
	encoded, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "category")
}

func TestDisplayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"missing sql", `{"type":"table","columns":{}}`, true},
		{"unknown type", `{"type":"map","sql":"SELECT 1"}`, true},
		{"stat without id", `{"type":"stat","sql":"SELECT 1","name":"One"}`, true},
		{"bad chart type", `{"type":"chart","sql":"SELECT 1","chartType":"radar"}`, true},
		{"table without columns", `{"type":"table","sql":"SELECT 1"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DisplayConfig
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &d))
			err := d.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDisplay)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerationResult_ValidateRejectsEmpty(t *testing.T) {
	var g GenerationResult
	require.NoError(t, json.Unmarshal([]byte(`{"display":[]}`), &g))
	assert.ErrorIs(t, g.Validate(), ErrInvalidDisplay)
}

func TestDisplayResult_MarshalFlattensResults(t *testing.T) {
	r := DisplayResult{
		DisplayConfig: DisplayConfig{
			Type:        DisplayTypeStat,
			SQL:         "SELECT 1 AS one",
			StatDisplay: &StatDisplay{ID: "one", Name: "One"},
		},
		Results: []map[string]any{{"one": float64(1)}},
	}

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stat","sql":"SELECT 1 AS one","id":"one","name":"One","results":[{"one":1}]}`, string(out))

	var back DisplayResult
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, r, back)
}
