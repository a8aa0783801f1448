package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/rageval/api"
)

type stubScorer struct {
	name  string
	score float64
	err   error
	delay time.Duration
	panic bool
	calls atomic.Int32
}

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panic {
		panic("scorer exploded")
	}
	return api.Score{Name: s.name, Score: s.score, Error: s.err}
}

var inputs = api.ScoreInputs{Input: "q", Output: "a", Expected: "a", Contexts: []string{"c"}}

func TestRun_IsolatesFailures(t *testing.T) {
	upstream := errors.New("scoring backend returned 503")
	metrics := []api.Scorer{
		&stubScorer{name: "faithfulness", score: 0.9},
		&stubScorer{name: "context_recall", err: upstream},
		&stubScorer{name: "answer_relevancy", panic: true},
		&stubScorer{name: "exact_match", score: 1},
	}

	result := New().Run(context.Background(), inputs, metrics)

	require.Len(t, result.Scores, 4)
	assert.Equal(t, map[string]float64{"faithfulness": 0.9, "exact_match": 1}, result.Values())

	failed := result.Failed()
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed["context_recall"], upstream)
	assert.ErrorIs(t, failed["answer_relevancy"], ErrMetricPanic)
	assert.False(t, result.OK())
	assert.Equal(t, []string{"answer_relevancy", "context_recall", "exact_match", "faithfulness"}, result.Names())
}

func TestRun_NoClamping(t *testing.T) {
	result := New().Run(context.Background(), inputs, []api.Scorer{
		&stubScorer{name: "raw_similarity", score: -0.25},
		&stubScorer{name: "over", score: 1.5},
	})
	assert.Equal(t, -0.25, result.Scores["raw_similarity"].Score)
	assert.Equal(t, 1.5, result.Scores["over"].Score)
	assert.True(t, result.OK())
}

func TestRun_OrderIndependent(t *testing.T) {
	// the slowest metric is first; aggregation must not depend on completion order
	metrics := []api.Scorer{
		&stubScorer{name: "slow", score: 0.1, delay: 30 * time.Millisecond},
		&stubScorer{name: "fast", score: 0.2},
	}

	for _, concurrency := range []int{0, 1, 2} {
		result := New(WithConcurrency(concurrency)).Run(context.Background(), inputs, metrics)
		assert.Equal(t, map[string]float64{"slow": 0.1, "fast": 0.2}, result.Values(), "concurrency %d", concurrency)
	}
}

func TestRun_RunsConcurrently(t *testing.T) {
	metrics := make([]api.Scorer, 5)
	for i := range metrics {
		metrics[i] = &stubScorer{name: string(rune('a' + i)), delay: 50 * time.Millisecond}
	}

	start := time.Now()
	New().Run(context.Background(), inputs, metrics)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRun_DuplicateNames(t *testing.T) {
	result := New().Run(context.Background(), inputs, []api.Scorer{
		&stubScorer{name: "moderation", score: 1},
		&stubScorer{name: "moderation", score: 0},
	})

	assert.Equal(t, map[string]float64{"moderation": 1, "moderation#2": 0}, result.Values())
	assert.Equal(t, "moderation#2", result.Scores["moderation#2"].Name)
}

func TestRun_DuplicateNamesNeverCollide(t *testing.T) {
	result := New().Run(context.Background(), inputs, []api.Scorer{
		&stubScorer{name: "a", score: 0.1},
		&stubScorer{name: "a", score: 0.2},
		&stubScorer{name: "a#2", score: 0.3},
		&stubScorer{name: "a", score: 0.4},
	})

	require.Len(t, result.Scores, 4)
	assert.Equal(t, map[string]float64{"a": 0.1, "a#3": 0.2, "a#2": 0.3, "a#4": 0.4}, result.Values())
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scorer := &stubScorer{name: "faithfulness", score: 1}
	result := New().Run(ctx, inputs, []api.Scorer{scorer})

	assert.ErrorIs(t, result.Failed()["faithfulness"], context.Canceled)
	assert.Zero(t, scorer.calls.Load())
}

func TestRun_NoMetrics(t *testing.T) {
	result := New().Run(context.Background(), inputs, nil)
	assert.Empty(t, result.Scores)
	assert.True(t, result.OK())
}

func TestRunAll(t *testing.T) {
	scorer := &stubScorer{name: "exact_match", score: 1}
	results := New().RunAll(context.Background(), []api.ScoreInputs{inputs, inputs, inputs}, []api.Scorer{scorer})

	require.Len(t, results, 3)
	assert.EqualValues(t, 3, scorer.calls.Load())
	for _, r := range results {
		assert.Equal(t, 1.0, r.Scores["exact_match"].Score)
	}
}
