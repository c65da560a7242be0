package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/services"
	sqlutil "github.com/askdb/askdb-engine/pkg/sql"
)

// apiError is the HTTP projection of a service error.
type apiError struct {
	Status  int
	Code    string
	Message string
}

// classifyError maps service errors onto status codes and stable error codes.
func classifyError(err error) apiError {
	var (
		gwErr      *llm.GatewayError
		argErr     *llm.ToolArgumentError
		unknownErr *llm.UnknownToolError
		maxErr     *services.MaxTurnsExceededError
		queryErr   *datasource.QueryExecutionError
	)

	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest), errors.Is(err, apperrors.ErrMissingConnectionString):
		return apiError{http.StatusBadRequest, "invalid_request", err.Error()}
	case errors.Is(err, apperrors.ErrNotFound):
		return apiError{http.StatusNotFound, "not_found", err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, "timeout", "The request timed out"}
	case sqlutil.IsStatementTimeout(err):
		return apiError{http.StatusGatewayTimeout, "statement_timeout", "The query exceeded its time limit"}
	case errors.Is(err, context.Canceled):
		return apiError{499, "canceled", "The request was canceled"}
	case errors.As(err, &gwErr):
		return apiError{http.StatusBadGateway, "model_unavailable", gwErr.Error()}
	case errors.As(err, &argErr), errors.As(err, &unknownErr), errors.As(err, &maxErr):
		return apiError{http.StatusBadGateway, "model_error", err.Error()}
	case errors.As(err, &queryErr), sqlutil.IsUserError(err):
		code := sqlutil.UserErrorCode(err)
		if code == "" {
			return apiError{http.StatusBadGateway, "query_failed", logging.SanitizeError(err)}
		}
		return apiError{http.StatusUnprocessableEntity, code, sqlutil.ErrorMessage(err)}
	default:
		return apiError{http.StatusInternalServerError, "internal_error", "An internal error occurred"}
	}
}

// writeServiceError logs err and writes the mapped JSON error response.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	apiErr := classifyError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", apiErr.Status), zap.String("error", logging.SanitizeError(err)))
	} else {
		logger.Info("Request rejected", zap.Int("status", apiErr.Status), zap.String("error", logging.SanitizeError(err)))
	}
	if werr := ErrorResponse(w, apiErr.Status, apiErr.Code, apiErr.Message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
