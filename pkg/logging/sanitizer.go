// Package logging builds the zap logger and scrubs secrets from values that
// end up in log fields.
package logging

import "regexp"

const (
	// MaxQueryLogLength is the maximum length of a SQL statement in a log field.
	MaxQueryLogLength = 200
	// RedactedText replaces sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens and provider API keys
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`)
	skKeyPattern  = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`)

	// user:pass@host in URL-style connection strings
	connStringPattern = regexp.MustCompile(`://([^:/@\s]+):[^@\s]+@`)

	// single-quoted SQL literals
	sqlLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// SanitizeConnectionString masks the password of a connection string.
// Host, port and database stay visible so pool keys remain distinguishable in logs.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://${1}:"+RedactedText+"@")
}

// SanitizeError scrubs credentials from an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeSecrets(err.Error())
}

// SanitizeQuery truncates a SQL statement and masks string literals.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := sqlLiteralPattern.ReplaceAllString(query, "'?'")
	return TruncateString(sanitizeSecrets(sanitized), MaxQueryLogLength)
}

// TruncateString truncates s to maxLen bytes and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func sanitizeSecrets(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = skKeyPattern.ReplaceAllString(s, RedactedText)
	return connStringPattern.ReplaceAllString(s, "://${1}:"+RedactedText+"@")
}
