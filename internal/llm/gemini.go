package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API, including
// function calling.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, modelID: modelID}, nil
}

func (c *GeminiClient) SupportsTools() bool { return true }

func geminiSchemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func toGeminiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]*genai.Schema, len(t.Parameters))
		for name, p := range t.Parameters {
			props[name] = &genai.Schema{
				Type:        geminiSchemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   t.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiContent(msg Message) *genai.Content {
	switch msg.Role {
	case RoleTool:
		var resp map[string]interface{}
		// Tool results travel as JSON-ish text; Gemini wants a map.
		resp = map[string]interface{}{"result": msg.Content}
		return &genai.Content{
			Role:  "user",
			Parts: []genai.Part{genai.FunctionResponse{Name: msg.ToolName, Response: resp}},
		}
	case RoleAssistant:
		var parts []genai.Part
		if strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
		}
		if len(parts) == 0 {
			return nil
		}
		return &genai.Content{Role: "model", Parts: parts}
	default:
		if strings.TrimSpace(msg.Content) == "" {
			return nil
		}
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}}
	}
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	model.Tools = toGeminiTools(req.Tools)

	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}

	if len(req.Messages) == 0 {
		return Response{}, errors.New("llm: gemini requires at least one message")
	}

	cs := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		if msg.Role == RoleSystem {
			continue
		}
		if content := toGeminiContent(msg); content != nil {
			cs.History = append(cs.History, content)
		}
	}

	last := toGeminiContent(req.Messages[len(req.Messages)-1])
	if last == nil {
		return Response{}, errors.New("llm: gemini last message is empty")
	}

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Response{}, errors.New("llm: gemini returned empty content")
	}

	var result Response
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        uuid.NewString(),
				Name:      p.Name,
				Arguments: p.Args,
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	result.StopReason = candidate.FinishReason.String()

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
