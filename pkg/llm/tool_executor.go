package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/jsonutil"
	"github.com/askdb/askdb-engine/pkg/metrics"
	sqlutil "github.com/askdb/askdb-engine/pkg/sql"
)

// SampleTableExecutorConfig holds the per-generation collaborators of the executor.
type SampleTableExecutorConfig struct {
	Sampler          datasource.RowSampler
	ConnectionString string
	Observer         ProgressObserver
	Logger           *zap.Logger
}

// SampleTableExecutor dispatches model tool calls. sampleTable is the only tool.
type SampleTableExecutor struct {
	sampler  datasource.RowSampler
	connStr  string
	observer ProgressObserver
	logger   *zap.Logger
}

// NewSampleTableExecutor creates an executor bound to one target database.
func NewSampleTableExecutor(cfg *SampleTableExecutorConfig) *SampleTableExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleTableExecutor{
		sampler:  cfg.Sampler,
		connStr:  cfg.ConnectionString,
		observer: cfg.Observer,
		logger:   logger.Named("tool-executor"),
	}
}

var _ ToolExecutor = (*SampleTableExecutor)(nil)

// sampleTableArgs accepts loosely typed values; models often quote numbers.
type sampleTableArgs struct {
	TableName json.RawMessage `json:"tableName"`
	NumRows   json.RawMessage `json:"numRows"`
}

// ExecuteTool runs the named tool and returns its JSON-encoded result.
func (e *SampleTableExecutor) ExecuteTool(ctx context.Context, name, arguments string) (string, error) {
	var (
		result string
		err    error
	)
	switch name {
	case SampleTableToolName:
		result, err = e.sampleTable(ctx, arguments)
	default:
		err = &UnknownToolError{Name: name}
	}
	metrics.ObserveToolCall(name, err)
	return result, err
}

func (e *SampleTableExecutor) sampleTable(ctx context.Context, arguments string) (string, error) {
	sanitized := SanitizeToolArguments(arguments)

	var args sampleTableArgs
	if err := json.Unmarshal([]byte(sanitized), &args); err != nil {
		e.logger.Warn("Unparseable tool arguments",
			zap.String("function", SampleTableToolName),
			zap.String("arguments", arguments),
			zap.Error(err))
		return "", &ToolArgumentError{Function: SampleTableToolName, Cause: err}
	}

	tableName := jsonutil.FlexibleStringValue(args.TableName)
	if tableName == "" {
		return "", &ToolArgumentError{Function: SampleTableToolName, Cause: errors.New("tableName is required")}
	}
	if err := sqlutil.ValidateIdentifier(tableName); err != nil {
		e.logger.Warn("Rejected table name from model",
			zap.String("table", tableName))
		return "", &ToolArgumentError{Function: SampleTableToolName, Rejected: true, Cause: err}
	}

	numRows, err := jsonutil.FlexibleIntValue(args.NumRows, datasource.DefaultSampleRows)
	if err != nil {
		return "", &ToolArgumentError{Function: SampleTableToolName, Cause: fmt.Errorf("numRows: %w", err)}
	}
	numRows = datasource.ClampSampleRows(numRows)

	Notify(ctx, e.observer, ProgressEvent{
		Stage:   StageSampling,
		Message: samplingMessage(tableName, numRows),
		Table:   tableName,
		Rows:    numRows,
	})

	rows, err := e.sampler.SampleTable(ctx, tableName, numRows, e.connStr)
	if err != nil {
		if errors.Is(err, sqlutil.ErrInvalidIdentifier) {
			return "", &ToolArgumentError{Function: SampleTableToolName, Rejected: true, Cause: err}
		}
		return "", fmt.Errorf("failed to sample table %s: %w", tableName, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode sample rows: %w", err)
	}

	e.logger.Debug("Sampled table for model",
		zap.String("table", tableName),
		zap.Int("rows", len(rows)))
	return string(encoded), nil
}

func samplingMessage(table string, n int) string {
	noun := "row"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("Sampling %d %s from `%s` table", n, noun, table)
}
