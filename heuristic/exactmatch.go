// Package heuristic provides scorers that need no model calls.
package heuristic

import (
	"context"
	"strings"

	"github.com/datar-psa/rageval/api"
)

// ExactMatchOptions configures the ExactMatch scorer
type ExactMatchOptions struct {
	// CaseInsensitive determines if the comparison should ignore case
	CaseInsensitive bool
	// TrimWhitespace determines if leading and trailing whitespace should be trimmed
	TrimWhitespace bool
	// Contains accepts responses that contain the reference anywhere,
	// e.g. reference "23" against "There are 23 articles"
	Contains bool
}

// ExactMatch returns a scorer that checks the response against the reference
func ExactMatch(opts ExactMatchOptions) api.Scorer {
	return &exactMatchScorer{opts: opts}
}

type exactMatchScorer struct {
	opts ExactMatchOptions
}

func (s *exactMatchScorer) Name() string { return "exact_match" }

func (s *exactMatchScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     s.Name(),
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		return result
	}

	output, expected := in.Output, in.Expected
	if s.opts.TrimWhitespace {
		output = strings.TrimSpace(output)
		expected = strings.TrimSpace(expected)
	}
	if s.opts.CaseInsensitive {
		output = strings.ToLower(output)
		expected = strings.ToLower(expected)
	}

	matched := output == expected
	if s.opts.Contains {
		matched = strings.Contains(output, expected)
	}
	if matched {
		result.Score = 1.0
	}

	result.Metadata["case_insensitive"] = s.opts.CaseInsensitive
	result.Metadata["trim_whitespace"] = s.opts.TrimWhitespace
	result.Metadata["contains"] = s.opts.Contains
	result.Metadata["output_length"] = len(in.Output)
	result.Metadata["expected_length"] = len(in.Expected)

	return result
}
