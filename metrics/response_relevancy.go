package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
	"github.com/datar-psa/rageval/embedding"
)

// ResponseRelevancyOptions configures the ResponseRelevancy scorer
type ResponseRelevancyOptions struct {
	// Strictness is the number of questions generated from the response (default 3)
	Strictness int
}

// ResponseRelevancy returns a scorer that generates questions the response would answer
// and compares them to the original question with embeddings. Noncommittal answers score 0.
func ResponseRelevancy(llm api.LLMGenerator, embedder api.Embedder, opts ResponseRelevancyOptions) api.Scorer {
	if opts.Strictness <= 0 {
		opts.Strictness = 3
	}
	return &responseRelevancyScorer{opts: opts, llm: llm, embedder: embedder}
}

type responseRelevancyScorer struct {
	opts     ResponseRelevancyOptions
	llm      api.LLMGenerator
	embedder api.Embedder
}

const responseRelevancyPromptTemplate = `Generate a question for the given answer and identify if the answer is noncommittal.
Set noncommittal to 1 if the answer is evasive, vague or ambiguous (for example "I don't know" or "I'm not sure"), 0 otherwise.

Answer: %s`

var responseRelevancySchema = objectSchema(map[string]any{
	"question":     map[string]any{"type": "string"},
	"noncommittal": map[string]any{"type": "integer", "enum": []int{0, 1}},
})

func (s *responseRelevancyScorer) Name() string { return "answer_relevancy" }

func (s *responseRelevancyScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if s.embedder == nil {
		return fail(result, fmt.Errorf("embedder is required"))
	}
	if in.Input == "" {
		return fail(result, fmt.Errorf("question is required for this scorer"))
	}

	questions := make([]string, 0, s.opts.Strictness)
	noncommittal := false
	for i := 0; i < s.opts.Strictness; i++ {
		resp, err := judge(ctx, s.llm, api.StringPrompt{Text: fmt.Sprintf(responseRelevancyPromptTemplate, in.Output)}, responseRelevancySchema)
		if err != nil {
			return fail(result, err)
		}
		q, ok := resp["question"].(string)
		if !ok {
			return fail(result, fmt.Errorf("failed to extract question from structured response"))
		}
		if nc, ok := truthy(resp["noncommittal"]); ok && nc {
			noncommittal = true
		}
		questions = append(questions, q)
	}

	original, err := s.embedder.Embed(ctx, in.Input)
	if err != nil {
		return fail(result, fmt.Errorf("failed to embed question: %w", err))
	}

	total := 0.0
	for _, q := range questions {
		generated, err := s.embedder.Embed(ctx, q)
		if err != nil {
			return fail(result, fmt.Errorf("failed to embed generated question: %w", err))
		}
		total += embedding.CosineSimilarity(original, generated)
	}
	mean := total / float64(len(questions))

	if noncommittal {
		result.Score = 0
	} else {
		result.Score = mean
	}
	result.Metadata["generated_questions"] = questions
	result.Metadata["mean_similarity"] = mean
	result.Metadata["noncommittal"] = noncommittal
	return result
}
