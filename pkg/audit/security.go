// Package audit logs security-relevant query events in a structured form that
// a SIEM can filter on.
package audit

import (
	"context"
	"encoding/json"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a query parameter.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventStatementRejected is logged when SQL fails single-statement validation.
	EventStatementRejected SecurityEventType = "statement_rejected"
	// EventReadOnlyViolation is logged when a statement tries to write inside
	// the read-only transaction.
	EventReadOnlyViolation SecurityEventType = "read_only_violation"
)

// SecurityEvent is one auditable event. SQL and Target are always sanitized.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Target    string            `json:"target"`
	SQL       string            `json:"sql"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails identifies the flagged parameter.
type SQLInjectionDetails struct {
	Position    int    `json:"position"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a parameter rejected by injection screening.
// Logged at ERROR with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, connectionString, sql string, details SQLInjectionDetails) {
	event := a.event(ctx, EventSQLInjectionAttempt, "critical", connectionString, sql)
	event.Details = details

	a.logger.Error("SQL injection attempt detected",
		append(event.fields(),
			zap.Int("param_position", details.Position),
			zap.String("fingerprint", details.Fingerprint))...)
}

// LogStatementRejected records SQL that failed validation before execution,
// such as a multi-statement batch. Logged at WARN.
func (a *SecurityAuditor) LogStatementRejected(ctx context.Context, connectionString, sql string, reason error) {
	event := a.event(ctx, EventStatementRejected, "warning", connectionString, sql)
	event.Details = map[string]string{"reason": logging.SanitizeError(reason)}

	a.logger.Warn("SQL statement rejected", append(event.fields(), zap.String("reason", logging.SanitizeError(reason)))...)
}

// LogReadOnlyViolation records a statement the database refused because it
// attempted to write. Logged at WARN.
func (a *SecurityAuditor) LogReadOnlyViolation(ctx context.Context, connectionString, sql string) {
	event := a.event(ctx, EventReadOnlyViolation, "warning", connectionString, sql)
	a.logger.Warn("Write attempted in read-only transaction", event.fields()...)
}

func (a *SecurityAuditor) event(ctx context.Context, typ SecurityEventType, severity, connectionString, sql string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: typ,
		RequestID: chimw.GetReqID(ctx),
		Target:    logging.SanitizeConnectionString(connectionString),
		SQL:       logging.SanitizeQuery(sql),
		Severity:  severity,
	}
}

func (e *SecurityEvent) fields() []zap.Field {
	// Marshaling these types cannot fail.
	eventJSON, _ := json.Marshal(e)
	return []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(e.EventType)),
		zap.String("request_id", e.RequestID),
		zap.String("target", e.Target),
		zap.String("severity", e.Severity),
	}
}
