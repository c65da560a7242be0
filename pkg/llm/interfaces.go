package llm

import "context"

// ChatClient is the model gateway: stateless, no retries, safe for concurrent use.
type ChatClient interface {
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ToolExecutor runs a tool call for the model and returns the serialized result.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, arguments string) (string, error)
}

var _ ChatClient = (*Client)(nil)
