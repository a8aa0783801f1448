package sample

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/rageval/api"
)

func decodeAnswer(t *testing.T, body string) *api.AnswerResponse {
	t.Helper()
	var resp api.AnswerResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}

func TestBuildSingleTurn_CapsContexts(t *testing.T) {
	resp := decodeAnswer(t, `{
		"answer": "23",
		"retrieved_docs": [
			{"page_content": "a"}, {"page_content": "b"}, {"page_content": "c"}, {"page_content": "d"}
		]
	}`)
	tc := api.TestCase{ID: "java", Question: "How many articles are there for JAVA?", Reference: "23"}

	got := BuildSingleTurn(tc, resp)

	assert.Equal(t, api.SingleTurnSample{
		UserInput:         "How many articles are there for JAVA?",
		Reference:         "23",
		Response:          "23",
		RetrievedContexts: []string{"a", "b", "c"},
	}, got)
}

func TestBuildSingleTurn_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		resp *api.AnswerResponse
	}{
		{name: "nil response", resp: nil},
		{name: "empty object", resp: decodeAnswer(t, `{}`)},
		{name: "null docs", resp: decodeAnswer(t, `{"answer": null, "retrieved_docs": null}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSingleTurn(api.TestCase{Question: "q"}, tt.resp)
			assert.Equal(t, "q", got.UserInput)
			assert.Empty(t, got.Response)
			assert.NotNil(t, got.RetrievedContexts)
			assert.Empty(t, got.RetrievedContexts)
		})
	}
}

func TestContexts(t *testing.T) {
	tests := []struct {
		name string
		docs []api.Document
		want []string
	}{
		{name: "none", docs: nil, want: []string{}},
		{name: "fewer than cap", docs: []api.Document{api.NewDocument("a")}, want: []string{"a"}},
		{
			name: "order preserved",
			docs: []api.Document{api.NewDocument("c"), api.NewDocument("a"), api.NewDocument("b")},
			want: []string{"c", "a", "b"},
		},
		{
			name: "document without content is skipped within the cap",
			docs: []api.Document{api.NewDocument("a"), {Metadata: map[string]any{"source": "x"}}, api.NewDocument("c"), api.NewDocument("d")},
			want: []string{"a", "c"},
		},
		{
			name: "empty content is kept",
			docs: []api.Document{api.NewDocument(""), api.NewDocument("b")},
			want: []string{"", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contexts(tt.docs))
		})
	}
}

func TestBuildMultiTurn(t *testing.T) {
	prior := api.Conversation{
		api.Human("How many articles are there for JAVA?"),
		api.AI("23"),
	}
	tc := api.TestCase{Question: "And for Python?", ExpectedTopics: []string{"courses"}}

	got := BuildMultiTurn(tc, &api.AnswerResponse{Answer: "12"}, prior)

	assert.Equal(t, api.Conversation{
		api.Human("How many articles are there for JAVA?"),
		api.AI("23"),
		api.Human("And for Python?"),
		api.AI("12"),
	}, got.Turns)
	assert.Equal(t, []string{"courses"}, got.ReferenceTopics)
	assert.Len(t, prior, 2, "prior turns must not be modified")

	// the builder owns its slices
	got.ReferenceTopics[0] = "changed"
	assert.Equal(t, "courses", tc.ExpectedTopics[0])
}

func TestBuildMultiTurn_NoPriorNoResponse(t *testing.T) {
	got := BuildMultiTurn(api.TestCase{Question: "q"}, nil, nil)

	assert.Equal(t, api.Conversation{api.Human("q"), api.AI("")}, got.Turns)
	assert.Empty(t, got.ReferenceTopics)
}
