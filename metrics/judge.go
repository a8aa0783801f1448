// Package metrics provides LLM-as-a-judge scorers for retrieval-augmented answers.
// Every scorer builds its prompt as an api.PromptInput and sends it through an
// api.LLMGenerator, so the underlying chat model always receives a canonical batch.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/datar-psa/rageval/api"
)

func newResult(name string) api.Score {
	return api.Score{Name: name, Metadata: make(map[string]any)}
}

func fail(result api.Score, err error) api.Score {
	result.Error = err
	result.Score = 0
	return result
}

// judge runs a structured prompt and wraps generation failures in ErrLLMGenerationFailed
func judge(ctx context.Context, llm api.LLMGenerator, in api.PromptInput, schema map[string]any) (map[string]any, error) {
	if llm == nil {
		return nil, fmt.Errorf("LLM generator is required")
	}
	resp, err := llm.StructuredGenerate(ctx, in, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrLLMGenerationFailed, err)
	}
	return resp, nil
}

// verdictArray is the schema for an array of {<textKey>, verdict, reason} objects
func verdictArray(textKey, description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				textKey:   map[string]any{"type": "string"},
				"verdict": map[string]any{"type": "integer", "enum": []int{0, 1}},
				"reason":  map[string]any{"type": "string"},
			},
			"required": []string{textKey, "verdict"},
		},
	}
}

// objectSchema is an object schema whose properties are all required
func objectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

type verdict struct {
	Text   string
	OK     bool
	Reason string
}

// verdicts extracts resp[key] as a list of verdict objects
func verdicts(resp map[string]any, key, textKey string) ([]verdict, error) {
	raw, ok := resp[key].([]any)
	if !ok {
		return nil, fmt.Errorf("failed to extract %s from structured response", key)
	}
	out := make([]verdict, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not an object", key, i)
		}
		v, ok := truthy(obj["verdict"])
		if !ok {
			return nil, fmt.Errorf("%s[%d] has no usable verdict", key, i)
		}
		text, _ := obj[textKey].(string)
		reason, _ := obj["reason"].(string)
		out = append(out, verdict{Text: text, OK: v, Reason: reason})
	}
	return out, nil
}

func countTrue(vs []verdict) int {
	n := 0
	for _, v := range vs {
		if v.OK {
			n++
		}
	}
	return n
}

// truthy reads JSON verdict values: 0/1, booleans and yes/no strings
func truthy(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case int:
		return x != 0, true
	case string:
		return parseYesNo(x)
	default:
		return false, false
	}
}

func parseYesNo(s string) (bool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!")
	switch s {
	case "yes", "y", "true", "1":
		return true, true
	case "no", "n", "false", "0":
		return false, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0, true
	}
	if strings.HasPrefix(s, "yes") {
		return true, true
	}
	if strings.HasPrefix(s, "no") {
		return false, true
	}
	return false, false
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

// fbeta combines precision and recall; beta=1 is F1
func fbeta(precision, recall, beta float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	b2 := beta * beta
	return (1 + b2) * precision * recall / (b2*precision + recall)
}

// Mode selects which side of a claim comparison a scorer reports
type Mode string

const (
	ModePrecision Mode = "precision"
	ModeRecall    Mode = "recall"
	ModeF1        Mode = "f1"
)

func (m Mode) orDefault(def Mode) Mode {
	if m == "" {
		return def
	}
	return m
}

func (m Mode) combine(precision, recall float64) float64 {
	switch m {
	case ModePrecision:
		return precision
	case ModeRecall:
		return recall
	default:
		return fbeta(precision, recall, 1)
	}
}
