// Package llm is the model gateway and tool-call plumbing for SQL generation:
// an OpenAI-compatible chat client, the sampleTable tool, argument repair and
// progress events.
package llm

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model request to run a named capability. Arguments is raw model
// output and is not guaranteed to be valid JSON.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc is the function half of a tool call.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolChoice is the tool-forcing policy for one request. A zero Function means auto.
type ToolChoice struct {
	Function string
}

// AutoToolChoice lets the model decide whether to call a tool.
func AutoToolChoice() *ToolChoice {
	return &ToolChoice{}
}

// ForceTool requires the model to call the named function.
func ForceTool(name string) *ToolChoice {
	return &ToolChoice{Function: name}
}

// IsForced reports whether the choice names a specific function.
func (tc *ToolChoice) IsForced() bool {
	return tc != nil && tc.Function != ""
}

// ChatRequest is one round trip to the model provider.
type ChatRequest struct {
	Model       string // empty uses the client default
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice // nil omits tool_choice
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the assistant's next turn.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Model        string
	Usage        Usage
}

// Usage reports token accounting for a response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResultMessage builds the tool-role reply for a call.
func ToolResultMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       call.Function.Name,
		ToolCallID: call.ID,
	}
}
