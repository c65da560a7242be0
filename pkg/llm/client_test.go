package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProvider is an OpenAI-compatible endpoint that records request bodies.
type fakeProvider struct {
	status   int
	body     string
	requests []map[string]any
	headers  []http.Header
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	f.requests = append(f.requests, decoded)
	f.headers = append(f.headers, r.Header.Clone())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

const finalContentBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"display\":[]}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 11, "completion_tokens": 5, "total_tokens": 16}
}`

const toolCallBody = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "", "tool_calls": [
    {"id": "call_1", "type": "function", "function": {"name": "sampleTable", "arguments": "{\"tableName\":\"users\",\"numRows\":5}"}}
  ]}, "finish_reason": "tool_calls"}]
}`

func newTestClient(t *testing.T, provider *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{
		Endpoint: srv.URL + "/",
		Model:    "test-model",
		APIKey:   "sk-test",
		AppName:  "askdb",
		AppURL:   "https://askdb.example",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{Model: "m"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewClient(&Config{Endpoint: "http://localhost"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestClient_ChatCompletion_FinalContent(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: finalContentBody}
	client := newTestClient(t, provider)

	resp, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Messages:    []Message{SystemMessage("sys"), UserMessage("count users")},
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	require.NoError(t, err)

	assert.Equal(t, RoleAssistant, resp.Message.Role)
	assert.Equal(t, `{"display":[]}`, resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 16, resp.Usage.TotalTokens)

	require.Len(t, provider.requests, 1)
	sent := provider.requests[0]
	assert.Equal(t, "test-model", sent["model"], "empty model falls back to the default")
	assert.EqualValues(t, 1024, sent["max_tokens"])
	assert.NotContains(t, sent, "tool_choice", "no tool_choice without tools")

	h := provider.headers[0]
	assert.Equal(t, "Bearer sk-test", h.Get("Authorization"))
	assert.Equal(t, "https://askdb.example", h.Get("HTTP-Referer"))
	assert.Equal(t, "askdb", h.Get("X-Title"))
}

func TestClient_ChatCompletion_ForcedToolChoice(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: toolCallBody}
	client := newTestClient(t, provider)

	resp, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Model:      "override-model",
		Messages:   []Message{UserMessage("q")},
		Tools:      []ToolDefinition{SampleTableTool()},
		ToolChoice: ForceTool(SampleTableToolName),
	})
	require.NoError(t, err)

	require.Len(t, resp.Message.ToolCalls, 1)
	call := resp.Message.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, SampleTableToolName, call.Function.Name)
	assert.JSONEq(t, `{"tableName":"users","numRows":5}`, call.Function.Arguments)

	sent := provider.requests[0]
	assert.Equal(t, "override-model", sent["model"])
	assert.Equal(t, map[string]any{
		"type":     "function",
		"function": map[string]any{"name": "sampleTable"},
	}, sent["tool_choice"])

	tools, ok := sent["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "sampleTable", fn["name"])
}

func TestClient_ChatCompletion_AutoToolChoice(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: finalContentBody}
	client := newTestClient(t, provider)

	_, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Messages:   []Message{UserMessage("q")},
		Tools:      []ToolDefinition{SampleTableTool()},
		ToolChoice: AutoToolChoice(),
	})
	require.NoError(t, err)
	assert.Equal(t, "auto", provider.requests[0]["tool_choice"])
}

func TestClient_ChatCompletion_ToolResultMessage(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: finalContentBody}
	client := newTestClient(t, provider)

	call := SampleTableCall("call_9", `{"tableName":"users","numRows":2}`)
	_, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Messages: []Message{
			UserMessage("q"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
			ToolResultMessage(call, `[{"id":1}]`),
		},
	})
	require.NoError(t, err)

	messages := provider.requests[0]["messages"].([]any)
	require.Len(t, messages, 3)
	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_9", toolMsg["tool_call_id"])
	assert.Equal(t, "sampleTable", toolMsg["name"])
	assert.Equal(t, `[{"id":1}]`, toolMsg["content"])
}

func TestClient_ChatCompletion_Non2xx(t *testing.T) {
	provider := &fakeProvider{status: http.StatusBadGateway, body: "upstream exploded"}
	client := newTestClient(t, provider)

	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Messages: []Message{UserMessage("q")}})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
	assert.Equal(t, "upstream exploded", gwErr.Body)
	assert.True(t, gwErr.IsRetryable())
	assert.Len(t, provider.requests, 1, "the gateway never retries")
}

func TestClient_ChatCompletion_APIErrorBody(t *testing.T) {
	provider := &fakeProvider{
		status: http.StatusUnauthorized,
		body:   `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`,
	}
	client := newTestClient(t, provider)

	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Messages: []Message{UserMessage("q")}})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
	assert.Contains(t, gwErr.Body, "invalid api key")
	assert.Equal(t, "authentication failed", gwErr.Message)
	assert.False(t, gwErr.IsRetryable())
}

func TestClient_ChatCompletion_NoChoices(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: `{"id":"x","object":"chat.completion","choices":[]}`}
	client := newTestClient(t, provider)

	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Messages: []Message{UserMessage("q")}})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, errors.Is(err, ErrNoChoices))
}

func TestClient_ChatCompletion_Canceled(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: finalContentBody}
	client := newTestClient(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ChatCompletion(ctx, &ChatRequest{Messages: []Message{UserMessage("q")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.False(t, gwErr.IsRetryable())
}
