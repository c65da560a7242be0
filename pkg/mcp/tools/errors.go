package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/services"
	sqlutil "github.com/askdb/askdb-engine/pkg/sql"
)

// ErrorResponse is a structured error returned as a tool result so the
// calling agent sees actionable details instead of a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can act on (bad arguments, bad SQL, a model
// that gave up); infrastructure failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// errorResult converts a service error into a tool error result. ok is false
// when err is not actionable and should surface as a protocol error.
func errorResult(err error) (result *mcp.CallToolResult, ok bool) {
	var (
		argErr     *llm.ToolArgumentError
		unknownErr *llm.UnknownToolError
		maxErr     *services.MaxTurnsExceededError
		gwErr      *llm.GatewayError
	)

	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest), errors.Is(err, apperrors.ErrMissingConnectionString):
		return NewErrorResult("invalid_request", err.Error()), true
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error()), true
	case errors.Is(err, context.DeadlineExceeded), sqlutil.IsStatementTimeout(err):
		return NewErrorResult("timeout", "the operation timed out"), true
	case errors.As(err, &maxErr):
		return NewErrorResultWithDetails("model_error", err.Error(), map[string]int{"max_turns": maxErr.MaxTurns}), true
	case errors.As(err, &argErr), errors.As(err, &unknownErr):
		return NewErrorResult("model_error", err.Error()), true
	case errors.As(err, &gwErr) && gwErr.IsRetryable():
		return NewErrorResult("model_unavailable", gwErr.Error()), true
	}

	if code := sqlutil.UserErrorCode(err); code != "" {
		return NewErrorResult(code, sqlutil.ErrorMessage(err)), true
	}
	return nil, false
}
