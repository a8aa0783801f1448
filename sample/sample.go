// Package sample builds evaluation samples from a test case and a QA service answer.
// Builders are pure: they never call the QA service themselves.
package sample

import (
	"github.com/datar-psa/rageval/api"
)

// MaxContexts is the number of retrieved documents inspected when collecting contexts
const MaxContexts = 3

// BuildSingleTurn combines a test case with the service answer.
// A nil response yields an empty answer and no contexts.
func BuildSingleTurn(tc api.TestCase, resp *api.AnswerResponse) api.SingleTurnSample {
	s := api.SingleTurnSample{
		UserInput:         tc.Question,
		Reference:         tc.Reference,
		RetrievedContexts: []string{},
	}
	if resp == nil {
		return s
	}
	s.Response = resp.Answer
	s.RetrievedContexts = Contexts(resp.RetrievedDocs)
	return s
}

// BuildMultiTurn appends the question and the service answer to a copy of prior
// and pairs the conversation with the test case's expected topics.
func BuildMultiTurn(tc api.TestCase, resp *api.AnswerResponse, prior api.Conversation) api.MultiTurnSample {
	turns := make(api.Conversation, 0, len(prior)+2)
	turns = append(turns, prior...)
	turns = append(turns, api.Human(tc.Question))

	answer := ""
	if resp != nil {
		answer = resp.Answer
	}
	turns = append(turns, api.AI(answer))

	topics := append([]string{}, tc.ExpectedTopics...)
	return api.MultiTurnSample{Turns: turns, ReferenceTopics: topics}
}

// Contexts returns the page content of the first MaxContexts documents.
// Documents without page content are skipped, not replaced by later ones.
func Contexts(docs []api.Document) []string {
	n := min(MaxContexts, len(docs))
	out := make([]string, 0, n)
	for _, d := range docs[:n] {
		if !d.HasContent() {
			continue
		}
		out = append(out, d.Content)
	}
	return out
}
