package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/models"
)

// Reads every public base table with its columns, key flags and an approximate
// row count. Rows are ordered by table then ordinal position.
const tableColumnsQuery = `
WITH primary_keys AS (
    SELECT tc.table_name, kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON tc.constraint_name = kcu.constraint_name
        AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
        AND tc.table_schema = 'public'
),
foreign_keys AS (
    SELECT DISTINCT ON (kcu.table_name, kcu.column_name)
        kcu.table_name,
        kcu.column_name,
        ccu.table_name AS foreign_table,
        ccu.column_name AS foreign_column
    FROM information_schema.key_column_usage kcu
    JOIN information_schema.table_constraints tc
        ON kcu.constraint_name = tc.constraint_name
        AND kcu.table_schema = tc.table_schema
    JOIN information_schema.constraint_column_usage ccu
        ON tc.constraint_name = ccu.constraint_name
        AND tc.table_schema = ccu.table_schema
    WHERE tc.constraint_type = 'FOREIGN KEY'
        AND tc.table_schema = 'public'
    ORDER BY kcu.table_name, kcu.column_name, ccu.table_name
),
row_counts AS (
    SELECT c.relname AS table_name, GREATEST(c.reltuples, 0)::bigint AS row_count
    FROM pg_class c
    JOIN pg_namespace n ON n.oid = c.relnamespace
    WHERE n.nspname = 'public' AND c.relkind IN ('r', 'p')
)
SELECT
    c.table_name,
    c.column_name,
    c.data_type,
    c.udt_name,
    c.is_nullable = 'YES' AS is_nullable,
    c.column_default,
    pk.column_name IS NOT NULL AS is_primary_key,
    fk.column_name IS NOT NULL AS is_foreign_key,
    COALESCE(fk.foreign_table, '') AS foreign_table,
    COALESCE(fk.foreign_column, '') AS foreign_column,
    COALESCE(rc.row_count, 0) AS row_count
FROM information_schema.columns c
JOIN information_schema.tables t
    ON t.table_name = c.table_name
    AND t.table_schema = c.table_schema
    AND t.table_type = 'BASE TABLE'
LEFT JOIN primary_keys pk
    ON pk.table_name = c.table_name AND pk.column_name = c.column_name
LEFT JOIN foreign_keys fk
    ON fk.table_name = c.table_name AND fk.column_name = c.column_name
LEFT JOIN row_counts rc
    ON rc.table_name = c.table_name
WHERE c.table_schema = 'public'
ORDER BY c.table_name, c.ordinal_position`

const enumsQuery = `
SELECT t.typname, e.enumlabel
FROM pg_type t
JOIN pg_enum e ON e.enumtypid = t.oid
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = 'public'
ORDER BY t.typname, e.enumsortorder`

// SchemaIntrospector reads table, column and enum structure from a target database.
type SchemaIntrospector struct {
	pools  datasource.PoolProvider
	logger *zap.Logger
}

// NewSchemaIntrospector creates an introspector backed by the given pools.
func NewSchemaIntrospector(pools datasource.PoolProvider, logger *zap.Logger) *SchemaIntrospector {
	return &SchemaIntrospector{
		pools:  pools,
		logger: logger.Named("schema-introspector"),
	}
}

var _ datasource.SchemaIntrospector = (*SchemaIntrospector)(nil)

// GetFullSchema runs the table and enum queries concurrently and assembles the result.
func (s *SchemaIntrospector) GetFullSchema(ctx context.Context, connectionString string) (*models.DatabaseSchema, error) {
	pool, err := s.pools.Get(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	var (
		tables []models.DatabaseTable
		enums  []models.DatabaseEnum
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := pool.Query(gctx, tableColumnsQuery)
		if err != nil {
			return fmt.Errorf("failed to query tables: %w", err)
		}
		defer rows.Close()

		var scanned []columnRow
		for rows.Next() {
			var r columnRow
			if err := rows.Scan(&r.table, &r.column.Name, &r.column.DataType, &r.column.UDTName,
				&r.column.IsNullable, &r.column.DefaultValue, &r.column.IsPrimaryKey,
				&r.column.IsForeignKey, &r.column.ForeignTable, &r.column.ForeignColumn,
				&r.rowCount); err != nil {
				return fmt.Errorf("failed to scan column: %w", err)
			}
			scanned = append(scanned, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating columns: %w", err)
		}
		tables = groupColumns(scanned)
		return nil
	})
	g.Go(func() error {
		rows, err := pool.Query(gctx, enumsQuery)
		if err != nil {
			return fmt.Errorf("failed to query enums: %w", err)
		}
		defer rows.Close()

		var pairs [][2]string
		for rows.Next() {
			var name, label string
			if err := rows.Scan(&name, &label); err != nil {
				return fmt.Errorf("failed to scan enum: %w", err)
			}
			pairs = append(pairs, [2]string{name, label})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating enums: %w", err)
		}
		enums = groupEnums(pairs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("Introspected schema",
		zap.Int("tables", len(tables)),
		zap.Int("enums", len(enums)))

	return &models.DatabaseSchema{
		Tables:      tables,
		Enums:       enums,
		LastUpdated: time.Now().UTC(),
	}, nil
}

type columnRow struct {
	table    string
	column   models.DatabaseColumn
	rowCount int64
}

// groupColumns folds ordered column rows into tables, keeping first-seen order.
func groupColumns(rows []columnRow) []models.DatabaseTable {
	tables := make([]models.DatabaseTable, 0)
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.table]
		if !ok {
			i = len(tables)
			index[r.table] = i
			tables = append(tables, models.DatabaseTable{Name: r.table, RowCount: r.rowCount})
		}
		tables[i].Columns = append(tables[i].Columns, r.column)
	}
	return tables
}

// groupEnums folds ordered (type, label) pairs into enums.
func groupEnums(pairs [][2]string) []models.DatabaseEnum {
	enums := make([]models.DatabaseEnum, 0)
	index := make(map[string]int)
	for _, p := range pairs {
		i, ok := index[p[0]]
		if !ok {
			i = len(enums)
			index[p[0]] = i
			enums = append(enums, models.DatabaseEnum{Name: p[0]})
		}
		enums[i].Values = append(enums[i].Values, p[1])
	}
	return enums
}
