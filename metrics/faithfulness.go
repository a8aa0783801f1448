package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// Faithfulness returns a scorer that measures how many statements of the response
// can be inferred from the retrieved contexts. Range [0,1].
func Faithfulness(llm api.LLMGenerator) api.Scorer {
	return &faithfulnessScorer{llm: llm}
}

type faithfulnessScorer struct {
	llm api.LLMGenerator
}

const faithfulnessPromptTemplate = `Break the answer below into short standalone statements, then judge each statement against the context.
Set verdict to 1 if the statement can be directly inferred from the context, 0 otherwise.

Question: %s
Answer: %s`

func (s *faithfulnessScorer) Name() string { return "faithfulness" }

func (s *faithfulnessScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if len(in.Contexts) == 0 {
		return fail(result, api.ErrNoContexts)
	}

	// contexts and instructions travel as two human turns of one conversation
	prompt := api.Sequence{
		api.Text("Context:\n" + numberedList(in.Contexts)),
		api.StringPrompt{Text: fmt.Sprintf(faithfulnessPromptTemplate, in.Input, in.Output)},
	}
	resp, err := judge(ctx, s.llm, prompt, objectSchema(map[string]any{
		"statements": verdictArray("statement", "statements from the answer"),
	}))
	if err != nil {
		return fail(result, err)
	}
	result.Metadata["raw_response"] = resp

	statements, err := verdicts(resp, "statements", "statement")
	if err != nil {
		return fail(result, err)
	}
	if len(statements) == 0 {
		return fail(result, fmt.Errorf("no statements extracted from response"))
	}

	faithful := countTrue(statements)
	result.Score = float64(faithful) / float64(len(statements))
	result.Metadata["statements"] = len(statements)
	result.Metadata["faithful_statements"] = faithful
	return result
}
