package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askdb/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/logging"
	"github.com/askdb/askdb-engine/pkg/metrics"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/prompts"
)

// Generation defaults.
const (
	DefaultMaxTurns         = 10
	DefaultMaxParallelTools = 4
	DefaultMaxTokens        = 1024
)

// Progress messages emitted by the generation loop.
const (
	msgGenerating         = "Generating SQL query..."
	msgFinalizing         = "Finalizing SQL queries"
	msgFollowupGenerating = "Processing follow-up instruction..."
	msgFollowupFinalizing = "Finalizing SQL queries for follow-up"
)

// MaxTurnsExceededError is returned when the model never produced a usable result.
type MaxTurnsExceededError struct {
	MaxTurns int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("no valid SQL result after %d model turns", e.MaxTurns)
}

// MalformedOutputError describes final model content that failed to parse or
// validate. It is logged and counted; the loop keeps going.
type MalformedOutputError struct {
	Turn  int
	Cause error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output on turn %d: %v", e.Turn, e.Cause)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Cause
}

// SQLGenerationService turns natural-language requests into display configs.
type SQLGenerationService interface {
	// GenerateSQL answers a fresh request. The first model turn is forced to sample a table.
	GenerateSQL(ctx context.Context, query, connectionString string, obs llm.ProgressObserver) (*models.GenerationResult, error)

	// GenerateFollowupSQL refines a previous result. Tool use is always left to the model.
	GenerateFollowupSQL(ctx context.Context, instruction string, prev *models.QueryContext, connectionString string, obs llm.ProgressObserver) (*models.GenerationResult, error)
}

// ToolExecutorFactory binds a tool executor to one request's database and observer.
type ToolExecutorFactory func(connectionString string, obs llm.ProgressObserver) llm.ToolExecutor

// NewSampleTableToolFactory returns a factory producing sampleTable executors.
func NewSampleTableToolFactory(sampler datasource.RowSampler, logger *zap.Logger) ToolExecutorFactory {
	return func(connectionString string, obs llm.ProgressObserver) llm.ToolExecutor {
		return llm.NewSampleTableExecutor(&llm.SampleTableExecutorConfig{
			Sampler:          sampler,
			ConnectionString: connectionString,
			Observer:         obs,
			Logger:           logger,
		})
	}
}

// SQLGenerationConfig tunes the generation loop.
type SQLGenerationConfig struct {
	Model             string // empty uses the gateway default
	Temperature       float64
	MaxTokens         int
	MaxTurns          int
	ParallelToolCalls bool
	MaxParallelTools  int
}

func (c *SQLGenerationConfig) withDefaults() SQLGenerationConfig {
	out := SQLGenerationConfig{}
	if c != nil {
		out = *c
	}
	if out.MaxTurns <= 0 {
		out.MaxTurns = DefaultMaxTurns
	}
	if out.MaxParallelTools <= 0 {
		out.MaxParallelTools = DefaultMaxParallelTools
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	return out
}

type sqlGenerationService struct {
	schema   SchemaService
	chat     llm.ChatClient
	newTools ToolExecutorFactory
	cfg      SQLGenerationConfig
	logger   *zap.Logger
}

// NewSQLGenerationService creates the generation orchestrator.
func NewSQLGenerationService(
	schema SchemaService,
	chat llm.ChatClient,
	newTools ToolExecutorFactory,
	cfg *SQLGenerationConfig,
	logger *zap.Logger,
) SQLGenerationService {
	return &sqlGenerationService{
		schema:   schema,
		chat:     chat,
		newTools: newTools,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("sql-generation"),
	}
}

var _ SQLGenerationService = (*sqlGenerationService)(nil)

// generation is the state of one run of the turn loop.
type generation struct {
	entry      string
	forceFirst bool
	progress   string
	finalizing string
	messages   []llm.Message
	tools      llm.ToolExecutor
	obs        llm.ProgressObserver
}

func (s *sqlGenerationService) GenerateSQL(ctx context.Context, query, connectionString string, obs llm.ProgressObserver) (*models.GenerationResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", apperrors.ErrInvalidRequest)
	}
	if connectionString == "" {
		return nil, apperrors.ErrMissingConnectionString
	}

	schemaText, err := s.schema.GetFormattedSchema(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	return s.run(ctx, &generation{
		entry:      "initial",
		forceFirst: true,
		progress:   msgGenerating,
		finalizing: msgFinalizing,
		messages: []llm.Message{
			llm.SystemMessage(prompts.BuildSQLGenerationPrompt(schemaText)),
			llm.UserMessage(query),
		},
		tools: s.newTools(connectionString, obs),
		obs:   obs,
	})
}

func (s *sqlGenerationService) GenerateFollowupSQL(ctx context.Context, instruction string, prev *models.QueryContext, connectionString string, obs llm.ProgressObserver) (*models.GenerationResult, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: instruction is required", apperrors.ErrInvalidRequest)
	}
	if prev == nil {
		return nil, fmt.Errorf("%w: previous context is required", apperrors.ErrInvalidRequest)
	}
	if connectionString == "" {
		return nil, apperrors.ErrMissingConnectionString
	}

	schemaText, err := s.schema.GetFormattedSchema(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	return s.run(ctx, &generation{
		entry:      "followup",
		progress:   msgFollowupGenerating,
		finalizing: msgFollowupFinalizing,
		messages: []llm.Message{
			llm.SystemMessage(prompts.BuildFollowupSQLPrompt(schemaText, prev, instruction)),
			llm.UserMessage(instruction),
		},
		tools: s.newTools(connectionString, obs),
		obs:   obs,
	})
}

func (s *sqlGenerationService) run(ctx context.Context, g *generation) (*models.GenerationResult, error) {
	start := time.Now()
	s.logger.Info("Starting SQL generation", zap.String("entry", g.entry))

	result, turns, err := s.loop(ctx, g)
	metrics.ObserveGeneration(g.entry, turns, err)
	if err != nil {
		s.logger.Error("SQL generation failed",
			zap.String("entry", g.entry),
			zap.Int("turns", turns),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	s.logger.Info("SQL generation completed",
		zap.String("entry", g.entry),
		zap.Int("turns", turns),
		zap.Int("displays", len(result.Display)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// loop drives the model until it returns a valid result, an error occurs, or
// the turn budget runs out. It returns the number of turns taken.
func (s *sqlGenerationService) loop(ctx context.Context, g *generation) (*models.GenerationResult, int, error) {
	tools := []llm.ToolDefinition{llm.SampleTableTool()}

	for turn := 1; turn <= s.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, turn - 1, err
		}

		llm.Notify(ctx, g.obs, llm.ProgressEvent{Stage: llm.StageGenerating, Message: g.progress})

		choice := llm.AutoToolChoice()
		if g.forceFirst && turn == 1 {
			choice = llm.ForceTool(llm.SampleTableToolName)
		}

		resp, err := s.chat.ChatCompletion(ctx, &llm.ChatRequest{
			Model:       s.cfg.Model,
			Messages:    g.messages,
			Tools:       tools,
			ToolChoice:  choice,
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
		})
		if err != nil {
			return nil, turn, err
		}

		assistant := resp.Message
		assistant.Role = llm.RoleAssistant
		g.messages = append(g.messages, assistant)

		if len(assistant.ToolCalls) > 0 {
			s.logger.Debug("Model requested tools",
				zap.Int("turn", turn),
				zap.Int("calls", len(assistant.ToolCalls)),
			)
			results, err := s.dispatchTools(ctx, g.tools, assistant.ToolCalls)
			if err != nil {
				return nil, turn, err
			}
			g.messages = append(g.messages, results...)
			continue
		}

		if strings.TrimSpace(assistant.Content) == "" {
			s.logger.Debug("Model turn had neither tool calls nor content", zap.Int("turn", turn))
			continue
		}

		result, err := parseGenerationResult(assistant.Content)
		if err != nil {
			malformed := &MalformedOutputError{Turn: turn, Cause: err}
			metrics.IncrementMalformedOutput()
			s.logger.Warn("Discarding malformed model output",
				zap.Error(malformed),
				zap.String("content", logging.TruncateString(assistant.Content, 200)),
			)
			continue
		}

		llm.Notify(ctx, g.obs, llm.ProgressEvent{Stage: llm.StageFinalizing, Message: g.finalizing})
		return result, turn, nil
	}

	return nil, s.cfg.MaxTurns, &MaxTurnsExceededError{MaxTurns: s.cfg.MaxTurns}
}

// dispatchTools runs the calls and returns their result messages in call order.
// The first failure aborts the generation.
func (s *sqlGenerationService) dispatchTools(ctx context.Context, tools llm.ToolExecutor, calls []llm.ToolCall) ([]llm.Message, error) {
	out := make([]llm.Message, len(calls))

	if !s.cfg.ParallelToolCalls || len(calls) == 1 {
		for i, call := range calls {
			content, err := tools.ExecuteTool(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return nil, err
			}
			out[i] = llm.ToolResultMessage(call, content)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			content, err := tools.ExecuteTool(gctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return err
			}
			out[i] = llm.ToolResultMessage(call, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseGenerationResult decodes and validates final model content.
func parseGenerationResult(content string) (*models.GenerationResult, error) {
	result, err := llm.ParseJSONResponse[models.GenerationResult](content)
	if err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
