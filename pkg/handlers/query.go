package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/services"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QueryRequest is the body of POST /api/query and /api/query/stream.
type QueryRequest struct {
	Query            string `json:"query"`
	ConnectionString string `json:"connectionString"`
}

// FollowupRequest is the body of the follow-up endpoints.
type FollowupRequest struct {
	Instruction      string               `json:"instruction"`
	PreviousContext  *models.QueryContext `json:"previousContext"`
	ConnectionString string               `json:"connectionString"`
}

// QueryResponse is a generated answer with every display's rows attached.
type QueryResponse struct {
	Query       string                 `json:"query"`
	Display     []models.DisplayResult `json:"display"`
	Explanation string                 `json:"explanation,omitempty"`
}

// QueryHandler exposes SQL generation over HTTP.
type QueryHandler struct {
	generator services.SQLGenerationService
	queries   services.QueryService
	logger    *zap.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(generator services.SQLGenerationService, queries services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		generator: generator,
		queries:   queries,
		logger:    logger.Named("query-handler"),
	}
}

// RegisterRoutes registers the query endpoints.
func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/query", func(r chi.Router) {
		r.Post("/", h.Query)
		r.Post("/stream", h.QueryStream)
		r.Post("/followup", h.Followup)
		r.Post("/followup/stream", h.FollowupStream)
	})
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.answer(r.Context(), req.Query, req.ConnectionString, nil, func(ctx context.Context, obs llm.ProgressObserver) (*models.GenerationResult, error) {
		return h.generator.GenerateSQL(ctx, req.Query, req.ConnectionString, obs)
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// QueryStream handles POST /api/query/stream with NDJSON progress events.
func (h *QueryHandler) QueryStream(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.stream(w, r, req.Query, req.ConnectionString, "Starting query processing", func(ctx context.Context, obs llm.ProgressObserver) (*models.GenerationResult, error) {
		return h.generator.GenerateSQL(ctx, req.Query, req.ConnectionString, obs)
	})
}

// Followup handles POST /api/query/followup.
func (h *QueryHandler) Followup(w http.ResponseWriter, r *http.Request) {
	var req FollowupRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.answer(r.Context(), req.Instruction, req.ConnectionString, nil, func(ctx context.Context, obs llm.ProgressObserver) (*models.GenerationResult, error) {
		return h.generator.GenerateFollowupSQL(ctx, req.Instruction, req.PreviousContext, req.ConnectionString, obs)
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode follow-up response", zap.Error(err))
	}
}

// FollowupStream handles POST /api/query/followup/stream.
func (h *QueryHandler) FollowupStream(w http.ResponseWriter, r *http.Request) {
	var req FollowupRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.stream(w, r, req.Instruction, req.ConnectionString, "Starting follow-up processing", func(ctx context.Context, obs llm.ProgressObserver) (*models.GenerationResult, error) {
		return h.generator.GenerateFollowupSQL(ctx, req.Instruction, req.PreviousContext, req.ConnectionString, obs)
	})
}

type generateFunc func(ctx context.Context, obs llm.ProgressObserver) (*models.GenerationResult, error)

// answer generates displays and executes them.
func (h *QueryHandler) answer(ctx context.Context, query, connectionString string, obs llm.ProgressObserver, generate generateFunc) (*QueryResponse, error) {
	result, err := generate(ctx, obs)
	if err != nil {
		return nil, err
	}

	displays, err := h.queries.ExecuteDisplays(ctx, result.Display, connectionString, obs)
	if err != nil {
		return nil, err
	}

	return &QueryResponse{
		Query:       query,
		Display:     displays,
		Explanation: result.Explanation,
	}, nil
}

// stream runs answer with progress written as NDJSON. Errors after the
// header is sent are reported in-band.
func (h *QueryHandler) stream(w http.ResponseWriter, r *http.Request, query, connectionString, startMessage string, generate generateFunc) {
	out := newNDJSONStream(w)
	out.progress(startMessage)

	resp, err := h.answer(r.Context(), query, connectionString, out, generate)
	if err != nil {
		apiErr := classifyError(err)
		h.logger.Warn("Streaming request failed", zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code))
		out.fail(apiErr)
		return
	}
	out.result(resp)
}

// decode reads a JSON body, writing a 400 on failure.
func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeJSONBody(w, r, h.logger, dst)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeServiceError(w, logger, fmt.Errorf("%w: invalid request body: %s", apperrors.ErrInvalidRequest, strings.TrimPrefix(err.Error(), "json: ")))
		return false
	}
	return true
}
