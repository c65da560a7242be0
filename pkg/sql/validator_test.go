package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain select", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"trailing semicolon and whitespace", "  SELECT 1 ;  \n", "SELECT 1"},
		{"semicolon in literal", "SELECT * FROM users WHERE name = 'a;b'", "SELECT * FROM users WHERE name = 'a;b'"},
		{"semicolon in quoted identifier", `SELECT * FROM "odd;name"`, `SELECT * FROM "odd;name"`},
		{"doubled quote escape", "SELECT * FROM users WHERE name = 'O''Brien;'", "SELECT * FROM users WHERE name = 'O''Brien;'"},
		{"semicolon in line comment", "SELECT 1 -- one; two\nFROM t", "SELECT 1 -- one; two\nFROM t"},
		{"semicolon in block comment", "SELECT /* a; b */ 1", "SELECT /* a; b */ 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAndNormalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateAndNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyStatement},
		{"only semicolon", " ; ", ErrEmptyStatement},
		{"two statements", "SELECT 1; SELECT 2", ErrMultipleStatements},
		{"stacked delete", "SELECT 1; DELETE FROM users;", ErrMultipleStatements},
		{"separator after comment", "SELECT 1 /* c */; DROP TABLE t", ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAndNormalize(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"users", "_tmp", "Order_Items2", "a"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "1users", "users;", "users--", "public.users", `"users"`, "users DROP", "ta-ble", "ünïcode"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateIdentifier(name), ErrInvalidIdentifier, name)
	}
}
