package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is wrapped by GatewayError when the provider returns no choices.
var ErrNoChoices = errors.New("no choices in response")

// GatewayError is a failed round trip to the model provider.
type GatewayError struct {
	StatusCode int    // HTTP status, 0 for transport failures
	Body       string // upstream response body, if any
	Message    string
	Model      string
	Endpoint   string
	Cause      error
}

func (e *GatewayError) Error() string {
	parts := []string{"gateway error"}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	msg := strings.Join(parts, " ") + ": " + e.Message
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Cause != nil && e.Body == "" {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether a caller could reasonably try again.
// The gateway never retries on its own.
func (e *GatewayError) IsRetryable() bool {
	switch {
	case errors.Is(e.Cause, context.Canceled):
		return false
	case e.StatusCode == 0, e.StatusCode == 429, e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// classifyError converts an error from the openai client into a GatewayError.
func classifyError(err error, model, endpoint string) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	gwErr = &GatewayError{Model: model, Endpoint: endpoint, Cause: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		gwErr.StatusCode = apiErr.HTTPStatusCode
		gwErr.Message = describeStatus(apiErr.HTTPStatusCode)
		if body, mErr := json.Marshal(openai.ErrorResponse{Error: apiErr}); mErr == nil {
			gwErr.Body = string(body)
		}
	case errors.As(err, &reqErr):
		gwErr.StatusCode = reqErr.HTTPStatusCode
		gwErr.Message = describeStatus(reqErr.HTTPStatusCode)
		gwErr.Body = strings.TrimSpace(string(reqErr.Body))
	case errors.Is(err, context.DeadlineExceeded):
		gwErr.Message = "request timeout"
	case errors.Is(err, context.Canceled):
		gwErr.Message = "request canceled"
	default:
		gwErr.Message = "request failed"
	}
	return gwErr
}

func describeStatus(code int) string {
	switch {
	case code == 401 || code == 403:
		return "authentication failed"
	case code == 404:
		return "endpoint or model not found"
	case code == 429:
		return "rate limited"
	case code >= 500:
		return "server error"
	default:
		return "unexpected status"
	}
}

// ToolArgumentError is raised when tool-call arguments cannot be decoded even
// after repair, or decode to values the tool refuses (Rejected).
type ToolArgumentError struct {
	Function string
	Rejected bool
	Cause    error
}

func (e *ToolArgumentError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("Invalid arguments for %s: %v", e.Function, e.Cause)
	}
	return fmt.Sprintf("Unable to parse arguments for %s", e.Function)
}

func (e *ToolArgumentError) Unwrap() error {
	return e.Cause
}

// UnknownToolError is raised when the model calls a capability that does not exist.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown function: %s", e.Name)
}
