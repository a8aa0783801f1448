package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// FactualCorrectnessOptions configures the FactualCorrectness scorer
type FactualCorrectnessOptions struct {
	// Mode selects precision (response claims backed by the reference),
	// recall (reference claims covered by the response) or f1 (default)
	Mode Mode
}

// FactualCorrectness returns a scorer that decomposes the response and the reference
// into atomic claims and checks each side against the other.
func FactualCorrectness(llm api.LLMGenerator, opts FactualCorrectnessOptions) api.Scorer {
	opts.Mode = opts.Mode.orDefault(ModeF1)
	return &factualCorrectnessScorer{opts: opts, llm: llm}
}

type factualCorrectnessScorer struct {
	opts FactualCorrectnessOptions
	llm  api.LLMGenerator
}

const factualCorrectnessPromptTemplate = `You are comparing an AI assistant's answer with an expert reference answer.

[BEGIN DATA]
[Question]: %s
[Reference]: %s
[Response]: %s
[END DATA]

1. Break the Response into short, self-contained factual claims. For each claim set verdict to 1 if the Reference supports it, otherwise 0.
2. Break the Reference into short, self-contained factual claims. For each claim set verdict to 1 if the Response states it, otherwise 0.
Numbers, names and dates must match exactly to count as supported.`

func (s *factualCorrectnessScorer) Name() string {
	return fmt.Sprintf("factual_correctness(mode=%s)", s.opts.Mode)
}

func (s *factualCorrectnessScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if in.Expected == "" {
		return fail(result, api.ErrNoExpectedValue)
	}

	schema := objectSchema(map[string]any{
		"response_claims":  verdictArray("claim", "claims made by the response"),
		"reference_claims": verdictArray("claim", "claims made by the reference"),
	})

	resp, err := judge(ctx, s.llm, api.StringPrompt{Text: fmt.Sprintf(factualCorrectnessPromptTemplate, in.Input, in.Expected, in.Output)}, schema)
	if err != nil {
		return fail(result, err)
	}
	result.Metadata["raw_response"] = resp

	responseClaims, err := verdicts(resp, "response_claims", "claim")
	if err != nil {
		return fail(result, err)
	}
	referenceClaims, err := verdicts(resp, "reference_claims", "claim")
	if err != nil {
		return fail(result, err)
	}

	var precision, recall float64
	if len(responseClaims) > 0 {
		precision = float64(countTrue(responseClaims)) / float64(len(responseClaims))
	}
	if len(referenceClaims) > 0 {
		recall = float64(countTrue(referenceClaims)) / float64(len(referenceClaims))
	}

	result.Score = s.opts.Mode.combine(precision, recall)
	result.Metadata["precision"] = precision
	result.Metadata["recall"] = recall
	result.Metadata["mode"] = string(s.opts.Mode)
	result.Metadata["response_claims"] = len(responseClaims)
	result.Metadata["reference_claims"] = len(referenceClaims)
	return result
}
