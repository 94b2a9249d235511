// Package llm defines the model-provider abstraction used by the
// conversation engine, with implementations for Gemini and Bedrock.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of model context. Tool results are fed back as
// RoleTool messages referencing the originating call.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Property describes one tool parameter.
type Property struct {
	Type        string   `json:"type"` // "string", "integer", "boolean"
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]Property `json:"parameters,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	System      []string
	Messages    []Message
	Tools       []Tool
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
	// Degraded is true when a fallback provider without tool support
	// produced this response.
	Degraded bool
}

// Client is a chat model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// SupportsTools reports whether the provider honors Request.Tools.
	SupportsTools() bool
}
