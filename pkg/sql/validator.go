// Package sql guards the SQL text and identifiers that reach a target database.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyStatement indicates the SQL text has no statement at all.
	ErrEmptyStatement = errors.New("empty SQL statement")

	// ErrMultipleStatements indicates the SQL text contains more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidateAndNormalize trims the statement, strips one trailing semicolon and
// rejects anything that still contains a statement separator outside of
// literals, quoted identifiers and comments.
func ValidateAndNormalize(sqlQuery string) (string, error) {
	normalized := strings.TrimSpace(sqlQuery)
	normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))

	if normalized == "" {
		return "", ErrEmptyStatement
	}
	if hasStatementSeparator(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// hasStatementSeparator scans for a ';' in plain SQL context.
func hasStatementSeparator(s string) bool {
	const (
		plain = iota
		singleQuoted
		doubleQuoted
		lineComment
		blockComment
	)

	state := plain
	for i := 0; i < len(s); i++ {
		c := s[i]
		var next byte
		if i+1 < len(s) {
			next = s[i+1]
		}

		switch state {
		case plain:
			switch {
			case c == ';':
				return true
			case c == '\'':
				state = singleQuoted
			case c == '"':
				state = doubleQuoted
			case c == '-' && next == '-':
				state = lineComment
				i++
			case c == '/' && next == '*':
				state = blockComment
				i++
			}
		case singleQuoted:
			// '' re-enters the literal on the following quote.
			if c == '\'' {
				state = plain
			} else if c == '\\' {
				i++
			}
		case doubleQuoted:
			if c == '"' {
				state = plain
			}
		case lineComment:
			if c == '\n' {
				state = plain
			}
		case blockComment:
			if c == '*' && next == '/' {
				state = plain
				i++
			}
		}
	}
	return false
}
