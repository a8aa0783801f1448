package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// ContextRecall returns a scorer that measures how much of the reference answer is
// attributable to the retrieved contexts. Range [0,1].
func ContextRecall(llm api.LLMGenerator) api.Scorer {
	return &contextRecallScorer{llm: llm}
}

type contextRecallScorer struct {
	llm api.LLMGenerator
}

const contextRecallPromptTemplate = `Given a context and a reference answer, split the reference answer into sentences and classify each one.
Set verdict to 1 if the sentence can be attributed to the context, 0 otherwise.

Question: %s
Context:
%s
Reference answer: %s`

func (s *contextRecallScorer) Name() string { return "context_recall" }

func (s *contextRecallScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if in.Expected == "" {
		return fail(result, api.ErrNoExpectedValue)
	}
	if len(in.Contexts) == 0 {
		return fail(result, api.ErrNoContexts)
	}

	prompt := fmt.Sprintf(contextRecallPromptTemplate, in.Input, numberedList(in.Contexts), in.Expected)
	resp, err := judge(ctx, s.llm, api.Text(prompt), objectSchema(map[string]any{
		"classifications": verdictArray("statement", "sentences of the reference answer"),
	}))
	if err != nil {
		return fail(result, err)
	}
	result.Metadata["raw_response"] = resp

	classes, err := verdicts(resp, "classifications", "statement")
	if err != nil {
		return fail(result, err)
	}
	if len(classes) == 0 {
		return fail(result, fmt.Errorf("no statements extracted from reference"))
	}

	attributed := countTrue(classes)
	result.Score = float64(attributed) / float64(len(classes))
	result.Metadata["statements"] = len(classes)
	result.Metadata["attributed_statements"] = attributed
	return result
}
