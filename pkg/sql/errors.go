package sql

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// sqlStateRegex matches PostgreSQL SQLSTATE codes in error messages like "(SQLSTATE 42601)".
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsUserError reports whether err is a problem with the statement itself (bad
// SQL, missing table, a write inside a read-only transaction) rather than a
// server, connection or timeout failure.
func IsUserError(err error) bool {
	return UserErrorCode(err) != ""
}

// UserErrorCode maps err to a short machine-readable code, or "" when it is
// not a user error.
func UserErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyStatement), errors.Is(err, ErrMultipleStatements):
		return "invalid_statement"
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	}
	var injErr *InjectionError
	if errors.As(err, &injErr) {
		return "injection_detected"
	}

	code := sqlState(err)
	if code == "" || !isUserSQLState(code) {
		return ""
	}

	switch code {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "42883":
		return "undefined_function"
	case "25006":
		return "read_only_violation"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	}

	switch code[:2] {
	case "22":
		return "data_exception"
	case "42":
		return "sql_error"
	}
	return "sql_error"
}

// IsStatementTimeout reports whether the server canceled the statement after
// its statement_timeout (SQLSTATE 57014).
func IsStatementTimeout(err error) bool {
	return err != nil && sqlState(err) == "57014"
}

// ErrorMessage extracts the server message from a PostgreSQL error, dropping
// the SQLSTATE suffix and wrapper prefixes.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	msg := err.Error()
	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}
	for _, prefix := range []string{"query execution failed: ", "ERROR: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	if m := sqlStateRegex.FindStringSubmatch(err.Error()); len(m) >= 2 {
		return m[1]
	}
	return ""
}

// isUserSQLState covers data exceptions (22), syntax and access rule
// violations (42) and read-only transaction writes (25006).
func isUserSQLState(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code {
	case "25006":
		return true
	}
	switch code[:2] {
	case "22", "42":
		return true
	}
	return false
}
