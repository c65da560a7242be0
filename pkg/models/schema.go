package models

import "time"

// DatabaseSchema is an immutable snapshot of a target database's structure.
// Tables and enums are ordered by name.
type DatabaseSchema struct {
	Tables      []DatabaseTable `json:"tables"`
	Enums       []DatabaseEnum  `json:"enums"`
	LastUpdated time.Time       `json:"last_updated"`
}

// DatabaseTable is a table with its columns in ordinal order.
type DatabaseTable struct {
	Name     string           `json:"name"`
	Columns  []DatabaseColumn `json:"columns"`
	RowCount int64            `json:"row_count"` // approximate, from planner statistics
}

// DatabaseColumn describes a single column for prompt grounding.
type DatabaseColumn struct {
	Name          string  `json:"name"`
	DataType      string  `json:"data_type"`
	UDTName       string  `json:"udt_name"`
	IsNullable    bool    `json:"is_nullable"`
	DefaultValue  *string `json:"default_value,omitempty"`
	IsPrimaryKey  bool    `json:"is_primary_key"`
	IsForeignKey  bool    `json:"is_foreign_key"`
	ForeignTable  string  `json:"foreign_table,omitempty"`
	ForeignColumn string  `json:"foreign_column,omitempty"`
}

// DatabaseEnum is a user-defined enum type and its labels in sort order.
type DatabaseEnum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Table returns the table with the given name, or nil.
func (s *DatabaseSchema) Table(name string) *DatabaseTable {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}
