package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// ErrBatchSize is returned by StructuredGenerate when the prompt does not normalize
// to exactly one conversation
var ErrBatchSize = errors.New("structured generation needs exactly one conversation")

// Generator normalizes every prompt before handing it to a chat model
type Generator struct {
	model api.ChatModel
}

// NewGenerator wraps a chat model so it accepts any prompt shape
func NewGenerator(model api.ChatModel) *Generator {
	return &Generator{model: model}
}

// Generate implements api.LLMGenerator.Generate
func (g *Generator) Generate(ctx context.Context, in api.PromptInput) ([]string, error) {
	if g.model == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	batch := Normalize(in)
	out := make([]string, 0, len(batch))
	for i, conv := range batch {
		text, err := g.model.Complete(ctx, conv)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", i, err)
		}
		out = append(out, text)
	}
	return out, nil
}

// StructuredGenerate implements api.LLMGenerator.StructuredGenerate
func (g *Generator) StructuredGenerate(ctx context.Context, in api.PromptInput, schema map[string]any) (map[string]any, error) {
	if g.model == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	batch := Normalize(in)
	if len(batch) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, len(batch))
	}
	return g.model.CompleteJSON(ctx, batch[0], schema)
}

// Verify that Generator implements LLMGenerator
var _ api.LLMGenerator = (*Generator)(nil)
