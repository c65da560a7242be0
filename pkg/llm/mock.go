package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockChatClient is a configurable ChatClient for tests. When ChatCompletionFunc
// is nil, Responses are returned in order and an error once they run out.
type MockChatClient struct {
	// ChatCompletionFunc is called when ChatCompletion is invoked.
	ChatCompletionFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Responses is the scripted reply sequence used without ChatCompletionFunc.
	Responses []*ChatResponse

	mu sync.Mutex
	// Requests holds a copy of every request, in call order.
	Requests []ChatRequest
}

// NewMockChatClient creates a mock that replies with responses in order.
func NewMockChatClient(responses ...*ChatResponse) *MockChatClient {
	return &MockChatClient{Responses: responses}
}

// ChatCompletion implements ChatClient.
func (m *MockChatClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]Message(nil), req.Messages...)
	m.Requests = append(m.Requests, snapshot)
	call := len(m.Requests)
	m.mu.Unlock()

	if m.ChatCompletionFunc != nil {
		return m.ChatCompletionFunc(ctx, req)
	}
	if call > len(m.Responses) {
		return nil, fmt.Errorf("mock chat client: no scripted response for call %d", call)
	}
	return m.Responses[call-1], nil
}

// Calls returns the number of ChatCompletion invocations.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// ToolCallRecord captures one ExecuteTool invocation.
type ToolCallRecord struct {
	Name      string
	Arguments string
}

// MockToolExecutor is a configurable ToolExecutor for tests.
type MockToolExecutor struct {
	// ExecuteToolFunc is called when ExecuteTool is invoked.
	// If nil, returns "[]" and nil error.
	ExecuteToolFunc func(ctx context.Context, name, arguments string) (string, error)

	mu    sync.Mutex
	Calls []ToolCallRecord
}

// ExecuteTool implements ToolExecutor.
func (m *MockToolExecutor) ExecuteTool(ctx context.Context, name, arguments string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ToolCallRecord{Name: name, Arguments: arguments})
	m.mu.Unlock()

	if m.ExecuteToolFunc != nil {
		return m.ExecuteToolFunc(ctx, name, arguments)
	}
	return "[]", nil
}

// AssistantToolCalls builds a scripted response that calls tools.
func AssistantToolCalls(calls ...ToolCall) *ChatResponse {
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}
}

// AssistantContent builds a scripted final-content response.
func AssistantContent(content string) *ChatResponse {
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, Content: content},
		FinishReason: "stop",
	}
}

// SampleTableCall builds a sampleTable tool call with raw arguments.
func SampleTableCall(id, arguments string) ToolCall {
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: ToolCallFunc{Name: SampleTableToolName, Arguments: arguments},
	}
}

var (
	_ ChatClient   = (*MockChatClient)(nil)
	_ ToolExecutor = (*MockToolExecutor)(nil)
)
