// Package openai provides chat and embedding capabilities backed by OpenAI models.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/datar-psa/rageval/api"
)

const (
	// DefaultChatModel is the judge model used by the evaluation suites
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is used by embedding-based metrics
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// ChatModel wraps a go-openai client to implement api.ChatModel
type ChatModel struct {
	client      *goopenai.Client
	modelName   string
	temperature float32
}

// NewChatModel creates a new OpenAI chat model with temperature 0
// client: *openai.Client from github.com/sashabaranov/go-openai
// modelName: the model to use (e.g., "gpt-4o-mini")
func NewChatModel(client *goopenai.Client, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultChatModel
	}
	return &ChatModel{
		client:    client,
		modelName: modelName,
	}
}

// NewChatModelFromKey creates a chat model talking to api.openai.com (or baseURL when set)
func NewChatModelFromKey(apiKey, baseURL, modelName string) *ChatModel {
	return NewChatModel(newClient(apiKey, baseURL), modelName)
}

// WithTemperature returns a copy of the model using the given sampling temperature
func (m *ChatModel) WithTemperature(t float32) *ChatModel {
	cp := *m
	cp.temperature = t
	return &cp
}

func newClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

func (m *ChatModel) request(conv api.Conversation) goopenai.ChatCompletionRequest {
	// temperature is omitempty in the wire format; a zero value would fall back to the API default of 1
	temp := m.temperature
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	return goopenai.ChatCompletionRequest{
		Model:       m.modelName,
		Messages:    toOpenAIMessages(conv),
		Temperature: temp,
	}
}

// Complete implements api.ChatModel.Complete
func (m *ChatModel) Complete(ctx context.Context, conv api.Conversation) (string, error) {
	if m.client == nil {
		return "", fmt.Errorf("openai client is required")
	}
	resp, err := m.client.CreateChatCompletion(ctx, m.request(conv))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON implements api.ChatModel.CompleteJSON using a JSON schema response format
func (m *ChatModel) CompleteJSON(ctx context.Context, conv api.Conversation, schema map[string]any) (map[string]any, error) {
	if m.client == nil {
		return nil, fmt.Errorf("openai client is required")
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	req := m.request(conv)
	req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
		Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
			Name:   "evaluation",
			Schema: json.RawMessage(raw),
		},
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}
	return out, nil
}

func toOpenAIMessages(conv api.Conversation) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(conv))
	for _, msg := range conv {
		role := goopenai.ChatMessageRoleUser
		if msg.Role() == api.RoleAI {
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: msg.Content()})
	}
	return out
}

// Embedder wraps a go-openai client to implement api.Embedder
type Embedder struct {
	client    *goopenai.Client
	modelName string
}

// NewEmbedder creates a new OpenAI embedder
func NewEmbedder(client *goopenai.Client, modelName string) *Embedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	return &Embedder{client: client, modelName: modelName}
}

// NewEmbedderFromKey creates an embedder talking to api.openai.com (or baseURL when set)
func NewEmbedderFromKey(apiKey, baseURL, modelName string) *Embedder {
	return NewEmbedder(newClient(apiKey, baseURL), modelName)
}

// Embed implements api.Embedder.Embed
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.client == nil {
		return nil, fmt.Errorf("openai client is required")
	}
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(e.modelName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	values := resp.Data[0].Embedding
	embedding := make([]float64, len(values))
	for i, v := range values {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

var (
	_ api.ChatModel = (*ChatModel)(nil)
	_ api.Embedder  = (*Embedder)(nil)
)
