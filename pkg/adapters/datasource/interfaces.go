// Package datasource is the boundary to target databases: a pool registry keyed
// by connection string and the contracts the generation core consumes.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askdb/askdb-engine/pkg/models"
)

// Execution policy constants. They are not configurable per call.
const (
	AdHocQueryTimeout   = 5 * time.Second
	RefreshQueryTimeout = 10 * time.Second

	MinSampleRows     = 1
	MaxSampleRows     = 10
	DefaultSampleRows = 5
)

// ClampSampleRows forces n into [MinSampleRows, MaxSampleRows].
func ClampSampleRows(n int) int {
	return min(max(n, MinSampleRows), MaxSampleRows)
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds rows as column-keyed records, in result order.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// QueryRunner executes statements inside a read-only, timeout-bounded transaction.
type QueryRunner interface {
	// ExecuteReadOnlyQuery runs sql with the ad hoc timeout.
	ExecuteReadOnlyQuery(ctx context.Context, sql, connectionString string, params ...any) (*QueryResult, error)

	// ExecuteWithTimeout runs sql with an explicit statement timeout.
	ExecuteWithTimeout(ctx context.Context, sql, connectionString string, timeout time.Duration, params ...any) (*QueryResult, error)
}

// RowSampler returns a bounded random sample of a table's rows.
type RowSampler interface {
	SampleTable(ctx context.Context, tableName string, numRows int, connectionString string) ([]map[string]any, error)
}

// SchemaIntrospector reads the structure of a target database.
type SchemaIntrospector interface {
	GetFullSchema(ctx context.Context, connectionString string) (*models.DatabaseSchema, error)
}

// QueryExecutionError wraps a failure of model-authored or persisted SQL.
type QueryExecutionError struct {
	SQL   string
	Cause error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Cause)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Cause
}

// PoolProvider hands out a pool for a connection string.
type PoolProvider interface {
	Get(ctx context.Context, connectionString string) (*pgxpool.Pool, error)
}

var _ PoolProvider = (*PoolRegistry)(nil)
