// Package gemini provides chat, embedding and moderation capabilities backed by Google models.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/datar-psa/rageval/api"
)

// ChatModel wraps a genai.Client to implement the api.ChatModel interface
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// NewChatModel creates a new Gemini chat model
// client: genai.Client from google.golang.org/genai
// modelName: the model to use (e.g., "gemini-2.5-flash")
func NewChatModel(client *genai.Client, modelName string) *ChatModel {
	return &ChatModel{
		client:    client,
		modelName: modelName,
	}
}

// Complete implements api.ChatModel.Complete
func (m *ChatModel) Complete(ctx context.Context, conv api.Conversation) (string, error) {
	resp, err := m.generate(ctx, conv, &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// CompleteJSON implements api.ChatModel.CompleteJSON
func (m *ChatModel) CompleteJSON(ctx context.Context, conv api.Conversation, schema map[string]any) (map[string]any, error) {
	resp, err := m.generate(ctx, conv, &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](0),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}
	return out, nil
}

func (m *ChatModel) generate(ctx context.Context, conv api.Conversation, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.client == nil {
		return nil, fmt.Errorf("genai client is required")
	}

	contents := make([]*genai.Content, 0, len(conv))
	for _, msg := range conv {
		var role genai.Role = genai.RoleUser
		if msg.Role() == api.RoleAI {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content(), role))
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}

	if resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no parts in response")
	}

	return resp, nil
}

// Verify that ChatModel implements api.ChatModel
var _ api.ChatModel = (*ChatModel)(nil)
