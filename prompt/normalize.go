// Package prompt reduces loosely shaped prompts to the canonical batch-of-conversations
// form and adapts chat models so that every caller can pass whatever shape it has.
package prompt

import (
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// Normalize converts any prompt representation into a canonical batch.
// It never fails: the result always holds at least one conversation, and
// conversation boundaries and ordering are preserved.
//
// Dispatch order:
//  1. StringPrompt: one conversation with one human message carrying its text
//  2. Text: one conversation with one human message
//  3. empty sequence: one empty conversation
//  4. sequence whose first element is a sequence: a batch, each conversation normalized;
//     a PromptBatch element contributes all of its conversations
//  5. any other sequence: a single conversation, wrapped as a batch of one
//
// Anything else, including a batch inside a conversation, is stringified into a
// single human message.
func Normalize(in api.PromptInput) api.PromptBatch {
	switch v := in.(type) {
	case api.StringPrompt:
		return api.PromptBatch{{api.Human(v.Text)}}
	case api.Text:
		return api.PromptBatch{{api.Human(string(v))}}
	case api.PromptBatch:
		if len(v) == 0 {
			return api.PromptBatch{{}}
		}
		out := make(api.PromptBatch, len(v))
		for i, conv := range v {
			out[i] = append(api.Conversation{}, conv...)
		}
		return out
	case api.Conversation:
		return api.PromptBatch{append(api.Conversation{}, v...)}
	case api.Sequence:
		if len(v) == 0 {
			return api.PromptBatch{{}}
		}
		if _, nested := elements(v[0]); nested {
			out := make(api.PromptBatch, 0, len(v))
			for _, item := range v {
				if batch, ok := item.(api.PromptBatch); ok {
					out = append(out, Normalize(batch)...)
					continue
				}
				if elems, ok := elements(item); ok {
					out = append(out, normalizeConversation(elems))
				} else {
					out = append(out, api.Conversation{normalizeElement(item)})
				}
			}
			return out
		}
		return api.PromptBatch{normalizeConversation(v)}
	default:
		return api.PromptBatch{{api.Human(stringify(in))}}
	}
}

// elements returns the members of a sequence-like input
func elements(in api.PromptInput) ([]api.PromptInput, bool) {
	switch v := in.(type) {
	case api.Sequence:
		return v, true
	case api.Conversation:
		out := make([]api.PromptInput, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	case api.PromptBatch:
		out := make([]api.PromptInput, len(v))
		for i, conv := range v {
			out[i] = conv
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeConversation(elems []api.PromptInput) api.Conversation {
	conv := make(api.Conversation, 0, len(elems))
	for _, e := range elems {
		conv = append(conv, normalizeElement(e))
	}
	return conv
}

func normalizeElement(e api.PromptInput) api.Message {
	switch v := e.(type) {
	case api.Text:
		return api.Human(string(v))
	case api.StringPrompt:
		return api.Human(v.Text)
	case api.Message:
		return v
	default:
		return api.Human(stringify(e))
	}
}

func stringify(in api.PromptInput) string {
	switch v := in.(type) {
	case nil:
		return fmt.Sprint(nil)
	case api.Other:
		return fmt.Sprint(v.Value)
	case api.Sequence:
		parts := make([]any, len(v))
		for i, e := range v {
			parts[i] = stringify(e)
		}
		return fmt.Sprint(parts)
	default:
		return fmt.Sprint(v)
	}
}

// FromAny maps a loosely typed Go value onto the PromptInput variants.
// It is the entry point for decoded JSON (chat histories, fixtures) and
// for callers that hold plain strings and slices.
func FromAny(v any) api.PromptInput {
	switch x := v.(type) {
	case api.PromptInput:
		return x
	case string:
		return api.Text(x)
	case []string:
		seq := make(api.Sequence, len(x))
		for i, s := range x {
			seq[i] = api.Text(s)
		}
		return seq
	case []api.Message:
		return api.Conversation(x)
	case [][]api.Message:
		batch := make(api.PromptBatch, len(x))
		for i, conv := range x {
			batch[i] = api.Conversation(conv)
		}
		return batch
	case []any:
		seq := make(api.Sequence, len(x))
		for i, item := range x {
			seq[i] = FromAny(item)
		}
		return seq
	case [][]any:
		seq := make(api.Sequence, len(x))
		for i, item := range x {
			seq[i] = FromAny(item)
		}
		return seq
	case map[string]any:
		if m, ok := messageFromMap(x); ok {
			return m
		}
		return api.Other{Value: x}
	default:
		return api.Other{Value: v}
	}
}

func messageFromMap(m map[string]any) (api.Message, bool) {
	content, ok := m["content"].(string)
	if !ok {
		return api.Message{}, false
	}
	role, _ := m["role"].(string)
	switch role {
	case "human", "user":
		return api.Human(content), true
	case "ai", "assistant":
		return api.AI(content), true
	default:
		return api.Message{}, false
	}
}
