package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/rageval/api"
	"github.com/datar-psa/rageval/runner"
	"github.com/datar-psa/rageval/tracking"
)

// fakeQA answers every question with four documents unless an error is configured for it
type fakeQA struct {
	errs  map[string]error
	delay map[string]time.Duration
	panic map[string]bool

	mu        sync.Mutex
	questions []string
}

func (f *fakeQA) Ask(ctx context.Context, question string, history api.Conversation) (*api.AnswerResponse, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.mu.Unlock()

	if d := f.delay[question]; d > 0 {
		time.Sleep(d)
	}
	if f.panic[question] {
		panic("client exploded")
	}
	if err := f.errs[question]; err != nil {
		return nil, err
	}
	return &api.AnswerResponse{
		Answer: "answer to " + question,
		RetrievedDocs: []api.Document{
			api.NewDocument("a"), api.NewDocument("b"), api.NewDocument("c"), api.NewDocument("d"),
		},
	}, nil
}

// echoScorer scores 1 when the response mentions the question
type echoScorer struct {
	name string
	err  error
	seen atomic.Int32
}

func (s *echoScorer) Name() string { return s.name }

func (s *echoScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	s.seen.Add(1)
	if s.err != nil {
		return api.Score{Name: s.name, Error: s.err}
	}
	score := 0.0
	if in.Output == "answer to "+in.Input {
		score = 1
	}
	return api.Score{Name: s.name, Score: score}
}

// turnsScorer records the conversation it was given
type turnsScorer struct {
	mu     sync.Mutex
	turns  []api.Conversation
	topics [][]string
}

func (s *turnsScorer) Name() string { return "topic_adherence(mode=precision)" }

func (s *turnsScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, in.Turns)
	s.topics = append(s.topics, in.Topics)
	return api.Score{Name: s.Name(), Score: 0.9}
}

type fakeUploader struct {
	err   error
	panic bool

	mu      sync.Mutex
	records []tracking.Record
}

func (u *fakeUploader) Upload(ctx context.Context, rec tracking.Record) tracking.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, rec)
	if u.panic {
		panic("ingest client bug")
	}
	if u.err != nil {
		return tracking.Result{Err: fmt.Errorf("%w: %v", tracking.ErrUpload, u.err)}
	}
	return tracking.Result{RunID: fmt.Sprintf("run-%d", len(u.records))}
}

func cases(n int) []api.TestCase {
	out := make([]api.TestCase, n)
	for i := range out {
		out[i] = api.TestCase{ID: fmt.Sprintf("case-%d", i+1), Question: fmt.Sprintf("q%d", i+1), Reference: "r"}
	}
	return out
}

func TestEvaluate_TimeoutOnSecondCase(t *testing.T) {
	qa := &fakeQA{errs: map[string]error{"q2": context.DeadlineExceeded}}
	uploader := &fakeUploader{}
	o := New(qa,
		WithMetrics(&echoScorer{name: "faithfulness"}, &echoScorer{name: "exact_match"}),
		WithUploader(uploader),
	)

	outcomes := o.Evaluate(context.Background(), cases(3))

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"case-1", "case-2", "case-3"}, []string{outcomes[0].TestCaseID, outcomes[1].TestCaseID, outcomes[2].TestCaseID})

	assert.True(t, outcomes[1].Failed())
	assert.Equal(t, StageAnswer, outcomes[1].FailedStage())
	assert.ErrorIs(t, outcomes[1].Err, context.DeadlineExceeded)
	assert.Empty(t, outcomes[1].Scores.Scores)

	for _, i := range []int{0, 2} {
		assert.False(t, outcomes[i].Failed(), "outcome %d", i)
		assert.Equal(t, map[string]float64{"faithfulness": 1, "exact_match": 1}, outcomes[i].Scores.Values())
		assert.Equal(t, []string{"a", "b", "c"}, outcomes[i].RetrievedContexts)
		assert.True(t, outcomes[i].Upload.OK())
	}

	// the failed case is never uploaded
	require.Len(t, uploader.records, 2)
	assert.Equal(t, "case-1", uploader.records[0].TestCaseID)
	assert.Equal(t, "case-3", uploader.records[1].TestCaseID)
}

func TestEvaluate_UploadFailureIsNotFatal(t *testing.T) {
	run := func(u Uploader) []Outcome {
		qa := &fakeQA{}
		return New(qa, WithMetrics(&echoScorer{name: "faithfulness"}), WithUploader(u)).Evaluate(context.Background(), cases(2))
	}

	healthy := run(&fakeUploader{})
	broken := run(&fakeUploader{err: errors.New("503 from ingest")})

	require.Len(t, broken, 2)
	for i := range broken {
		assert.False(t, broken[i].Failed())
		assert.ErrorIs(t, broken[i].Upload.Err, tracking.ErrUpload)
		assert.Equal(t, healthy[i].Scores, broken[i].Scores)
		assert.Equal(t, healthy[i].Sample, broken[i].Sample)
	}
}

func TestEvaluate_UploaderPanicIsNotFatal(t *testing.T) {
	outcomes := New(&fakeQA{},
		WithMetrics(&echoScorer{name: "faithfulness"}),
		WithUploader(&fakeUploader{panic: true}),
	).Evaluate(context.Background(), cases(2))

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.False(t, out.Failed())
		assert.NoError(t, out.Err)
		assert.Equal(t, map[string]float64{"faithfulness": 1}, out.Scores.Values())
		assert.ErrorIs(t, out.Upload.Err, tracking.ErrUpload)
		assert.Contains(t, out.Upload.Err.Error(), "ingest client bug")
	}
	assert.Equal(t, Summary{Total: 2}, Summarize(outcomes))
}

func TestEvaluate_MetricFailureKeepsPartialResults(t *testing.T) {
	backendDown := errors.New("scoring backend returned 502")
	uploader := &fakeUploader{}
	o := New(&fakeQA{},
		WithMetrics(&echoScorer{name: "faithfulness"}, &echoScorer{name: "context_recall", err: backendDown}),
		WithUploader(uploader),
	)

	out := o.Evaluate(context.Background(), cases(1))[0]

	assert.Equal(t, StageEvaluate, out.FailedStage())
	assert.ErrorIs(t, out.Err, backendDown)
	assert.Equal(t, "answer to q1", out.Answer)
	assert.Equal(t, map[string]float64{"faithfulness": 1}, out.Scores.Values())

	// partially scored cases are still uploaded, failures included
	require.Len(t, uploader.records, 1)
	assert.Len(t, uploader.records[0].Scores, 2)
}

func TestEvaluate_OrderWithConcurrency(t *testing.T) {
	qa := &fakeQA{
		delay: map[string]time.Duration{"q1": 40 * time.Millisecond, "q2": 20 * time.Millisecond},
		errs:  map[string]error{"q4": errors.New("connection reset")},
	}
	o := New(qa, WithMetrics(&echoScorer{name: "exact_match"}), WithConcurrency(4))

	in := cases(6)
	outcomes := o.Evaluate(context.Background(), in)

	require.Len(t, outcomes, len(in))
	for i, out := range outcomes {
		assert.Equal(t, in[i].ID, out.TestCaseID)
		if i == 3 {
			assert.True(t, out.Failed())
			continue
		}
		assert.Equal(t, "answer to "+in[i].Question, out.Answer)
	}
	assert.Len(t, qa.questions, 6)
}

func TestEvaluate_SequentialByDefault(t *testing.T) {
	qa := &fakeQA{}
	New(qa).Evaluate(context.Background(), cases(3))
	assert.Equal(t, []string{"q1", "q2", "q3"}, qa.questions)
}

func TestEvaluate_Empty(t *testing.T) {
	assert.Empty(t, New(&fakeQA{}).Evaluate(context.Background(), nil))
}

func TestEvaluate_PanicInClientIsContained(t *testing.T) {
	qa := &fakeQA{panic: map[string]bool{"q1": true}}
	outcomes := New(qa, WithMetrics(&echoScorer{name: "exact_match"})).Evaluate(context.Background(), cases(2))

	require.Len(t, outcomes, 2)
	assert.Equal(t, StageAnswer, outcomes[0].FailedStage())
	assert.False(t, outcomes[1].Failed())
}

func TestEvaluateOne_MissingID(t *testing.T) {
	uploader := &fakeUploader{}
	out := New(&fakeQA{}, WithUploader(uploader)).EvaluateOne(context.Background(), api.TestCase{Question: "q"})

	assert.Equal(t, UnknownTestCaseID, out.TestCaseID)
	require.Len(t, uploader.records, 1)
	assert.Equal(t, UnknownTestCaseID, uploader.records[0].TestCaseID)
}

func TestEvaluateOne_ConversationMetrics(t *testing.T) {
	single := &echoScorer{name: "faithfulness"}
	conv := &turnsScorer{}
	o := New(&fakeQA{}, WithMetrics(single), WithConversationMetrics(conv))

	withTopics := o.EvaluateOne(context.Background(), api.TestCase{ID: "t", Question: "q", ExpectedTopics: []string{"courses"}})
	withoutTopics := o.EvaluateOne(context.Background(), api.TestCase{ID: "n", Question: "q"})

	require.NotNil(t, withTopics.Conversation)
	assert.Equal(t, map[string]float64{"faithfulness": 1, "topic_adherence(mode=precision)": 0.9}, withTopics.Scores.Values())
	require.Len(t, conv.turns, 1)
	assert.Equal(t, api.Conversation{api.Human("q"), api.AI("answer to q")}, conv.turns[0])
	assert.Equal(t, []string{"courses"}, conv.topics[0])

	assert.Nil(t, withoutTopics.Conversation)
	assert.Equal(t, map[string]float64{"faithfulness": 1}, withoutTopics.Scores.Values())
	assert.EqualValues(t, 2, single.seen.Load())
}

func TestEvaluateOne_NoUploader(t *testing.T) {
	out := New(&fakeQA{}).EvaluateOne(context.Background(), api.TestCase{Question: "q"})
	assert.True(t, out.Upload.Skipped)
}

func TestMerge_NameCollision(t *testing.T) {
	dst := runner.Result{Scores: map[string]api.Score{"moderation": {Name: "moderation", Score: 1}}}
	merge(dst, runner.Result{Scores: map[string]api.Score{"moderation": {Name: "moderation", Score: 0}}})

	assert.Equal(t, 1.0, dst.Scores["moderation"].Score)
	assert.Equal(t, "conversation:moderation", dst.Scores["conversation:moderation"].Name)
}

func TestSummarize(t *testing.T) {
	outcomes := []Outcome{
		{Upload: tracking.Result{RunID: "r1"}},
		{Err: errors.New("boom")},
		{Upload: tracking.Result{Skipped: true}},
		{Upload: tracking.Result{Err: tracking.ErrUpload}},
	}
	assert.Equal(t, Summary{Total: 4, Failed: 1, Uploaded: 1, Skipped: 1}, Summarize(outcomes))
}
