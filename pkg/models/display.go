package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DisplayType discriminates the variants of a DisplayConfig.
type DisplayType string

const (
	DisplayTypeTable DisplayType = "table"
	DisplayTypeStat  DisplayType = "stat"
	DisplayTypeChart DisplayType = "chart"
)

// ChartType is the rendering style of a chart display.
type ChartType string

const (
	ChartTypeBar     ChartType = "bar"
	ChartTypeLine    ChartType = "line"
	ChartTypePie     ChartType = "pie"
	ChartTypeScatter ChartType = "scatter"
)

// ErrInvalidDisplay is returned by Validate for unusable display configs.
var ErrInvalidDisplay = errors.New("invalid display config")

// DisplayConfig pairs one SQL statement with rendering metadata. Exactly one of
// the variant pointers matching Type is set; their fields are flattened on the wire.
type DisplayConfig struct {
	Type        DisplayType `json:"type"`
	SQL         string      `json:"sql"`
	Description string      `json:"description,omitempty"`

	*TableDisplay
	*StatDisplay
	*ChartDisplay
}

// TableDisplay maps result columns to human-readable labels.
type TableDisplay struct {
	Columns ColumnLabels `json:"columns"`
}

// StatDisplay renders a single value as a stat card.
type StatDisplay struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

// ChartDisplay binds result columns to chart axes.
type ChartDisplay struct {
	ChartType ChartType    `json:"chartType"`
	XAxis     AxisBinding  `json:"xAxis"`
	YAxis     AxisBinding  `json:"yAxis"`
	Category  *AxisBinding `json:"category,omitempty"` // series column, optional
	Title     string       `json:"title,omitempty"`
}

// AxisBinding names the column plotted on an axis.
type AxisBinding struct {
	Column string `json:"column"`
	Label  string `json:"label"`
}

// ColumnLabel is one entry of a table's column → label mapping.
type ColumnLabel struct {
	Column string
	Label  string
}

// ColumnLabels is an ordered column → label mapping encoded as a JSON object.
type ColumnLabels []ColumnLabel

// MarshalJSON writes the labels as an object, preserving order.
func (c ColumnLabels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cl := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cl.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cl.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string labels in document order.
func (c *ColumnLabels) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("columns: expected object, got %v", tok)
	}

	labels := ColumnLabels{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var label any
		if err := dec.Decode(&label); err != nil {
			return fmt.Errorf("columns.%s: %w", key, err)
		}
		labelStr, ok := label.(string)
		if !ok {
			labelStr = fmt.Sprint(label)
		}
		labels = append(labels, ColumnLabel{Column: key, Label: labelStr})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*c = labels
	return nil
}

type displayConfigAlias DisplayConfig

// UnmarshalJSON decodes the flattened wire form and keeps only the variant named by type.
func (d *DisplayConfig) UnmarshalJSON(data []byte) error {
	var alias displayConfigAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*d = DisplayConfig(alias)

	switch d.Type {
	case DisplayTypeTable:
		if d.TableDisplay == nil {
			d.TableDisplay = &TableDisplay{}
		}
		d.StatDisplay, d.ChartDisplay = nil, nil
	case DisplayTypeStat:
		if d.StatDisplay == nil {
			d.StatDisplay = &StatDisplay{}
		}
		d.TableDisplay, d.ChartDisplay = nil, nil
	case DisplayTypeChart:
		if d.ChartDisplay == nil {
			d.ChartDisplay = &ChartDisplay{}
		}
		d.TableDisplay, d.StatDisplay = nil, nil
	}
	return nil
}

// Validate checks that the display names a known variant and carries SQL.
func (d *DisplayConfig) Validate() error {
	if strings.TrimSpace(d.SQL) == "" {
		return fmt.Errorf("%w: %s display has no sql", ErrInvalidDisplay, d.Type)
	}

	switch d.Type {
	case DisplayTypeTable:
		if d.TableDisplay == nil {
			return fmt.Errorf("%w: table display missing columns", ErrInvalidDisplay)
		}
	case DisplayTypeStat:
		if d.StatDisplay == nil || d.StatDisplay.ID == "" {
			return fmt.Errorf("%w: stat display missing id", ErrInvalidDisplay)
		}
	case DisplayTypeChart:
		if d.ChartDisplay == nil {
			return fmt.Errorf("%w: chart display missing axes", ErrInvalidDisplay)
		}
		switch d.ChartDisplay.ChartType {
		case ChartTypeBar, ChartTypeLine, ChartTypePie, ChartTypeScatter:
		default:
			return fmt.Errorf("%w: unknown chart type %q", ErrInvalidDisplay, d.ChartDisplay.ChartType)
		}
	default:
		return fmt.Errorf("%w: unknown display type %q", ErrInvalidDisplay, d.Type)
	}
	return nil
}

// DisplayResult is a display config annotated with the rows its SQL returned.
type DisplayResult struct {
	DisplayConfig
	Results []map[string]any `json:"results"`
}

// MarshalJSON flattens the embedded config alongside results.
func (r DisplayResult) MarshalJSON() ([]byte, error) {
	cfg, err := json.Marshal(r.DisplayConfig)
	if err != nil {
		return nil, err
	}
	results := r.Results
	if results == nil {
		results = []map[string]any{}
	}
	res, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(cfg)+len(res)+12)
	out = append(out, cfg[:len(cfg)-1]...)
	out = append(out, `,"results":`...)
	out = append(out, res...)
	out = append(out, '}')
	return out, nil
}

// UnmarshalJSON reads the flattened form produced by MarshalJSON.
func (r *DisplayResult) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.DisplayConfig); err != nil {
		return err
	}
	var withResults struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(data, &withResults); err != nil {
		return err
	}
	r.Results = withResults.Results
	return nil
}

// QueryContext is the previous turn threaded into a follow-up request.
type QueryContext struct {
	Query       string          `json:"query"`
	Display     []DisplayResult `json:"display"`
	Explanation string          `json:"explanation,omitempty"`
}

// GenerationResult is the terminal output of a generation call.
type GenerationResult struct {
	Display     []DisplayConfig `json:"display"`
	Explanation string          `json:"explanation,omitempty"`
}

// Validate requires a non-empty display list of valid configs.
func (g *GenerationResult) Validate() error {
	if len(g.Display) == 0 {
		return fmt.Errorf("%w: empty display list", ErrInvalidDisplay)
	}
	for i := range g.Display {
		if err := g.Display[i].Validate(); err != nil {
			return fmt.Errorf("display[%d]: %w", i, err)
		}
	}
	return nil
}
