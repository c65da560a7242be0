package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/metrics"
)

// Client is the model gateway for OpenAI-compatible chat completion endpoints.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

// Config holds configuration for creating a Client.
type Config struct {
	Endpoint string        // Base URL, e.g. "https://openrouter.ai/api/v1"
	Model    string        // Default model, overridable per request
	APIKey   string        // Sent as a bearer token; optional for local endpoints
	AppName  string        // X-Title header, for providers that attribute traffic
	AppURL   string        // HTTP-Referer header
	Timeout  time.Duration // Per-request timeout; zero means no client timeout
}

// NewClient creates a model gateway client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": cfg.AppURL,
				"X-Title":      cfg.AppName,
			},
		},
	}

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm"),
	}, nil
}

// ChatCompletion sends the conversation and returns the assistant's next turn.
// Errors are always *GatewayError.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildOpenAIMessages(req.Messages),
		Tools:       buildOpenAITools(req.Tools),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.ToolChoice != nil && len(oaiReq.Tools) > 0 {
		oaiReq.ToolChoice = buildOpenAIToolChoice(req.ToolChoice)
	}

	c.logger.Debug("Chat completion request",
		zap.String("model", model),
		zap.Int("message_count", len(req.Messages)),
		zap.Int("tool_count", len(req.Tools)),
		zap.Bool("tool_forced", req.ToolChoice.IsForced()))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	elapsed := time.Since(start)
	if err != nil {
		gwErr := classifyError(err, model, c.endpoint)
		metrics.ObserveGatewayRequest(elapsed, gwErr)
		c.logger.Error("Chat completion failed",
			zap.Int("status_code", gwErr.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, gwErr
	}

	if len(resp.Choices) == 0 {
		gwErr := &GatewayError{
			Message:  "empty response",
			Model:    model,
			Endpoint: c.endpoint,
			Cause:    ErrNoChoices,
		}
		metrics.ObserveGatewayRequest(elapsed, gwErr)
		return nil, gwErr
	}
	metrics.ObserveGatewayRequest(elapsed, nil)

	choice := resp.Choices[0]
	out := &ChatResponse{
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	c.logger.Info("Chat completion finished",
		zap.String("finish_reason", out.FinishReason),
		zap.Int("tool_calls", len(out.Message.ToolCalls)),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed))

	return out, nil
}

// GetModel returns the default model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleTool {
			oaiMsg.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}

func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}
	return result
}

func buildOpenAIToolChoice(tc *ToolChoice) any {
	if !tc.IsForced() {
		return "auto"
	}
	return openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: tc.Function},
	}
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{
		Role:    m.Role,
		Content: m.Content,
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: ToolCallFunc{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}
