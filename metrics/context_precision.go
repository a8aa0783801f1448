package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// ContextPrecision returns a scorer that judges, without a reference, whether each
// retrieved context was useful for the response, and rewards useful contexts that
// rank high (average precision). Range [0,1].
func ContextPrecision(llm api.LLMGenerator) api.Scorer {
	return &contextPrecisionScorer{llm: llm}
}

type contextPrecisionScorer struct {
	llm api.LLMGenerator
}

const contextPrecisionPromptTemplate = `Given a question, an answer and a context, verify whether the context was useful in arriving at the answer.
Set verdict to 1 if it was useful, 0 otherwise.

Question: %s
Answer: %s
Context: %s`

func (s *contextPrecisionScorer) Name() string { return "llm_context_precision_without_reference" }

func (s *contextPrecisionScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if len(in.Contexts) == 0 {
		return fail(result, api.ErrNoContexts)
	}

	schema := objectSchema(map[string]any{
		"verdict": map[string]any{"type": "integer", "enum": []int{0, 1}},
		"reason":  map[string]any{"type": "string"},
	})

	useful := make([]bool, len(in.Contexts))
	for i, c := range in.Contexts {
		resp, err := judge(ctx, s.llm, api.StringPrompt{Text: fmt.Sprintf(contextPrecisionPromptTemplate, in.Input, in.Output, c)}, schema)
		if err != nil {
			return fail(result, fmt.Errorf("context %d: %w", i, err))
		}
		v, ok := truthy(resp["verdict"])
		if !ok {
			return fail(result, fmt.Errorf("context %d: failed to extract verdict from structured response", i))
		}
		useful[i] = v
	}

	result.Score = averagePrecision(useful)
	result.Metadata["verdicts"] = useful
	return result
}

// averagePrecision is sum(precision@k * v_k) / number of relevant items
func averagePrecision(relevant []bool) float64 {
	hits := 0
	sum := 0.0
	for i, ok := range relevant {
		if ok {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}
