package qaclient_test

import (
	"context"
	"strings"
	"testing"

	"github.com/datar-psa/rageval/api"
	"github.com/datar-psa/rageval/internal/testutils"
	"github.com/datar-psa/rageval/sample"
)

// TestAsk_Integration asks the recorded QA service and builds a sample from the answer
// Set UPDATE_TESTS=true to record fresh responses from the live service
func TestAsk_Integration(t *testing.T) {
	testutils.SkipUnlessIntegration(t)

	client := testutils.NewQAClient(t, "qa")
	tc := api.TestCase{
		ID:        "java_articles",
		Question:  "How many articles are there for JAVA?",
		Reference: "There are 23 articles for JAVA.",
	}

	resp, err := client.Ask(context.Background(), tc.Question, nil)
	if err != nil {
		t.Fatalf("Ask() unexpected error = %v", err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		t.Errorf("Ask() answer is empty")
	}
	if len(resp.RetrievedDocs) == 0 {
		t.Fatalf("Ask() returned no retrieved docs")
	}

	s := sample.BuildSingleTurn(tc, resp)
	if len(s.RetrievedContexts) == 0 || len(s.RetrievedContexts) > sample.MaxContexts {
		t.Errorf("BuildSingleTurn() contexts = %d, want between 1 and %d", len(s.RetrievedContexts), sample.MaxContexts)
	}
	t.Logf("Answer: %s", resp.Answer)
}
