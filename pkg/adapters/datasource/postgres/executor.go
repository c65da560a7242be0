// Package postgres implements the datasource contracts against PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/audit"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/metrics"
	sqlutil "github.com/askdb/askdb-engine/pkg/sql"
)

// Executor runs statements against target databases. Every statement runs in a
// read-only transaction with a statement timeout, on a pooled connection that is
// always released.
type Executor struct {
	pools   datasource.PoolProvider
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewExecutor creates an executor that obtains pools from the given provider.
func NewExecutor(pools datasource.PoolProvider, logger *zap.Logger) *Executor {
	return &Executor{
		pools:   pools,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("postgres-executor"),
	}
}

var (
	_ datasource.QueryRunner = (*Executor)(nil)
	_ datasource.RowSampler  = (*Executor)(nil)
)

// ExecuteReadOnlyQuery runs sql with the ad hoc timeout.
func (e *Executor) ExecuteReadOnlyQuery(ctx context.Context, sql, connectionString string, params ...any) (*datasource.QueryResult, error) {
	return e.ExecuteWithTimeout(ctx, sql, connectionString, datasource.AdHocQueryTimeout, params...)
}

// ExecuteWithTimeout runs a single statement with the given statement timeout.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, sql, connectionString string, timeout time.Duration, params ...any) (*datasource.QueryResult, error) {
	start := time.Now()
	result, err := e.executeWithTimeout(ctx, sql, connectionString, timeout, params)
	metrics.ObserveQuery(queryKind(timeout), time.Since(start), err)
	return result, err
}

func (e *Executor) executeWithTimeout(ctx context.Context, sql, connectionString string, timeout time.Duration, params []any) (*datasource.QueryResult, error) {
	normalized, err := sqlutil.ValidateAndNormalize(sql)
	if err != nil {
		if errors.Is(err, sqlutil.ErrMultipleStatements) {
			e.auditor.LogStatementRejected(ctx, connectionString, sql, err)
		}
		return nil, &datasource.QueryExecutionError{SQL: sql, Cause: err}
	}
	if err := sqlutil.CheckAllParameters(params); err != nil {
		var injErr *sqlutil.InjectionError
		if errors.As(err, &injErr) {
			e.auditor.LogInjectionAttempt(ctx, connectionString, normalized, audit.SQLInjectionDetails{
				Position:    injErr.Position,
				Fingerprint: injErr.Fingerprint,
			})
		}
		return nil, &datasource.QueryExecutionError{SQL: sql, Cause: err}
	}

	e.logger.Debug("Executing read-only query",
		zap.String("sql", logging.SanitizeQuery(normalized)),
		zap.Duration("timeout", timeout))

	var result *datasource.QueryResult
	err = e.readOnly(ctx, connectionString, timeout, func(tx pgx.Tx) error {
		var qerr error
		result, qerr = collect(ctx, tx, normalized, params...)
		return qerr
	})
	if err != nil {
		if sqlutil.UserErrorCode(err) == "read_only_violation" {
			e.auditor.LogReadOnlyViolation(ctx, connectionString, normalized)
		}
		return nil, &datasource.QueryExecutionError{SQL: sql, Cause: err}
	}
	return result, nil
}

// SampleTable returns up to numRows random rows of tableName. The name is
// checked before any connection is acquired.
func (e *Executor) SampleTable(ctx context.Context, tableName string, numRows int, connectionString string) ([]map[string]any, error) {
	if err := sqlutil.ValidateIdentifier(tableName); err != nil {
		return nil, err
	}
	limit := datasource.ClampSampleRows(numRows)
	quoted := pgx.Identifier{tableName}.Sanitize()

	var rows []map[string]any
	start := time.Now()
	err := e.readOnly(ctx, connectionString, datasource.AdHocQueryTimeout, func(tx pgx.Tx) error {
		var count int64
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&count); err != nil {
			return fmt.Errorf("failed to count rows of %s: %w", tableName, err)
		}
		if count == 0 {
			rows = []map[string]any{}
			return nil
		}

		query, args := "SELECT * FROM "+quoted, []any(nil)
		if count > int64(limit) {
			query, args = "SELECT * FROM "+quoted+" ORDER BY RANDOM() LIMIT $1", []any{limit}
		}
		result, err := collect(ctx, tx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to sample %s: %w", tableName, err)
		}
		rows = result.Rows
		return nil
	})
	metrics.ObserveQuery("sample", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Sampled table",
		zap.String("table", tableName),
		zap.Int("requested", numRows),
		zap.Int("returned", len(rows)))
	return rows, nil
}

// readOnly runs fn inside BEGIN READ ONLY with a local statement timeout. The
// transaction is committed on success and rolled back on every failure path.
func (e *Executor) readOnly(ctx context.Context, connectionString string, timeout time.Duration, fn func(pgx.Tx) error) (err error) {
	pool, err := e.pools.Get(ctx, connectionString)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if err != nil {
			// Rollback must run even when ctx is already done.
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				e.logger.Warn("Rollback failed", zap.String("error", logging.SanitizeError(rbErr)))
			}
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set statement timeout: %w", err)
	}

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit read-only transaction: %w", err)
	}
	return nil
}

// collect runs query and gathers rows as column-keyed records.
func collect(ctx context.Context, tx pgx.Tx, query string, args ...any) (*datasource.QueryResult, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// normalizeValue converts pgx values without a natural JSON form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.Exp >= 0 && val.InfinityModifier == pgtype.Finite {
			n := new(big.Int).Set(val.Int)
			n.Mul(n, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(val.Exp)), nil))
			if n.IsInt64() {
				return n.Int64()
			}
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

func queryKind(timeout time.Duration) string {
	if timeout == datasource.RefreshQueryTimeout {
		return "refresh"
	}
	return "adhoc"
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to display names.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "BOOL"
	case pgtype.ByteaOID:
		return "BYTEA"
	case pgtype.Int8OID:
		return "INT8"
	case pgtype.Int2OID:
		return "INT2"
	case pgtype.Int4OID:
		return "INT4"
	case pgtype.TextOID:
		return "TEXT"
	case pgtype.JSONOID:
		return "JSON"
	case pgtype.Float4OID:
		return "FLOAT4"
	case pgtype.Float8OID:
		return "FLOAT8"
	case pgtype.BPCharOID:
		return "BPCHAR"
	case pgtype.VarcharOID:
		return "VARCHAR"
	case pgtype.DateOID:
		return "DATE"
	case pgtype.TimeOID:
		return "TIME"
	case pgtype.TimestampOID:
		return "TIMESTAMP"
	case pgtype.TimestamptzOID:
		return "TIMESTAMPTZ"
	case pgtype.IntervalOID:
		return "INTERVAL"
	case pgtype.NumericOID:
		return "NUMERIC"
	case pgtype.UUIDOID:
		return "UUID"
	case pgtype.JSONBOID:
		return "JSONB"
	case pgtype.TextArrayOID:
		return "TEXT[]"
	case pgtype.Int4ArrayOID:
		return "INT4[]"
	case pgtype.Int8ArrayOID:
		return "INT8[]"
	default:
		return "UNKNOWN"
	}
}
