// Package batch drives test cases through the evaluation pipeline:
// ask the QA service, build samples, score them, upload the outcome.
//
// Every test case yields exactly one Outcome, in input order. A failure is
// recorded on the case it belongs to and never removes or aborts other cases.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/datar-psa/rageval/api"
	"github.com/datar-psa/rageval/runner"
	"github.com/datar-psa/rageval/sample"
	"github.com/datar-psa/rageval/tracking"
)

// UnknownTestCaseID identifies test cases loaded without an id
const UnknownTestCaseID = "unknown"

// AnswerClient is the QA service under evaluation
type AnswerClient interface {
	Ask(ctx context.Context, question string, history api.Conversation) (*api.AnswerResponse, error)
}

// Uploader persists a completed evaluation
type Uploader interface {
	Upload(ctx context.Context, rec tracking.Record) tracking.Result
}

// Stage names the pipeline step a test case failed in
type Stage string

const (
	StageAnswer   Stage = "answer"
	StageEvaluate Stage = "evaluate"
)

// StageError is a test case failure tagged with the stage it happened in
type StageError struct {
	Stage      Stage
	TestCaseID string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("test case %s: %s: %v", e.TestCaseID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of one test case. Partial results are kept: a case
// whose scoring failed still carries its answer and contexts.
type Outcome struct {
	TestCaseID        string
	Sample            api.SingleTurnSample
	Conversation      *api.MultiTurnSample
	Answer            string
	RetrievedContexts []string
	Scores            runner.Result
	Err               error
	Upload            tracking.Result
}

// Failed reports whether any stage of the case failed. Upload failures do not count.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// FailedStage returns the stage the case failed in, or "" when it succeeded
func (o Outcome) FailedStage() Stage {
	var se *StageError
	if errors.As(o.Err, &se) {
		return se.Stage
	}
	return ""
}

// Orchestrator runs batches of test cases
type Orchestrator struct {
	client              AnswerClient
	runner              *runner.Runner
	metrics             []api.Scorer
	conversationMetrics []api.Scorer
	uploader            Uploader
	concurrency         int
	logger              *slog.Logger
}

// Options configures Orchestrator creation
type Options struct {
	runner              *runner.Runner
	metrics             []api.Scorer
	conversationMetrics []api.Scorer
	uploader            Uploader
	concurrency         int
	logger              *slog.Logger
}

// WithMetrics sets the metrics every single-turn sample is scored with
func WithMetrics(metrics ...api.Scorer) func(*Options) {
	return func(opts *Options) {
		opts.metrics = append(opts.metrics, metrics...)
	}
}

// WithConversationMetrics sets the metrics scored on the conversation sample
// built for test cases that carry expected topics
func WithConversationMetrics(metrics ...api.Scorer) func(*Options) {
	return func(opts *Options) {
		opts.conversationMetrics = append(opts.conversationMetrics, metrics...)
	}
}

// WithUploader sets where outcomes are uploaded. Without one nothing is uploaded.
func WithUploader(u Uploader) func(*Options) {
	return func(opts *Options) {
		opts.uploader = u
	}
}

// WithRunner sets the metric runner
func WithRunner(r *runner.Runner) func(*Options) {
	return func(opts *Options) {
		opts.runner = r
	}
}

// WithConcurrency bounds how many test cases are evaluated at once (default 1)
func WithConcurrency(n int) func(*Options) {
	return func(opts *Options) {
		opts.concurrency = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// New creates an Orchestrator using functional options.
func New(client AnswerClient, opts ...func(*Options)) *Orchestrator {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default().With("component", "batch")
	}
	if options.runner == nil {
		options.runner = runner.New(runner.WithLogger(options.logger))
	}
	if options.concurrency <= 0 {
		options.concurrency = 1
	}
	return &Orchestrator{
		client:              client,
		runner:              options.runner,
		metrics:             options.metrics,
		conversationMetrics: options.conversationMetrics,
		uploader:            options.uploader,
		concurrency:         options.concurrency,
		logger:              options.logger,
	}
}

// Evaluate runs every test case and returns one outcome per case, in input order.
func (o *Orchestrator) Evaluate(ctx context.Context, cases []api.TestCase) []Outcome {
	outcomes := make([]Outcome, len(cases))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, tc := range cases {
		g.Go(func() error {
			o.logger.Info("evaluating test case", "index", i+1, "total", len(cases), "test_case_id", testCaseID(tc))
			outcomes[i] = o.EvaluateOne(ctx, tc)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// EvaluateOne runs the pipeline for a single test case:
// answer, then samples, then scores, then upload.
func (o *Orchestrator) EvaluateOne(ctx context.Context, tc api.TestCase) (out Outcome) {
	id := testCaseID(tc)
	out = Outcome{TestCaseID: id, RetrievedContexts: []string{}}
	stage := StageAnswer

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("panic while evaluating test case", "test_case_id", id, "stage", stage, "panic", p)
			out.Err = &StageError{Stage: stage, TestCaseID: id, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	resp, err := o.client.Ask(ctx, tc.Question, nil)
	if err != nil {
		o.logger.Error("QA service call failed", "test_case_id", id, "error", err)
		out.Err = &StageError{Stage: StageAnswer, TestCaseID: id, Err: err}
		return out
	}
	stage = StageEvaluate

	out.Sample = sample.BuildSingleTurn(tc, resp)
	out.Answer = out.Sample.Response
	out.RetrievedContexts = out.Sample.RetrievedContexts

	scores := o.runner.Run(ctx, out.Sample.Inputs(), o.metrics)
	if len(tc.ExpectedTopics) > 0 && len(o.conversationMetrics) > 0 {
		conv := sample.BuildMultiTurn(tc, resp, nil)
		out.Conversation = &conv
		merge(scores, o.runner.Run(ctx, conv.Inputs(), o.conversationMetrics))
	}
	out.Scores = scores

	if failed := scores.Failed(); len(failed) > 0 {
		out.Err = &StageError{Stage: StageEvaluate, TestCaseID: id, Err: joinFailures(failed)}
		o.logger.Warn("metrics failed", "test_case_id", id, "failed", len(failed), "total", len(scores.Scores))
	}

	out.Upload = o.upload(ctx, out)
	return out
}

func (o *Orchestrator) upload(ctx context.Context, out Outcome) (result tracking.Result) {
	if o.uploader == nil {
		return tracking.Result{Skipped: true}
	}
	// an uploader fault is an upload failure, never a case failure
	defer func() {
		if p := recover(); p != nil {
			result = tracking.Result{Err: fmt.Errorf("%w: panic: %v", tracking.ErrUpload, p)}
			o.logger.Error("panic while uploading evaluation results", "test_case_id", out.TestCaseID, "panic", p)
		}
	}()
	result = o.uploader.Upload(ctx, tracking.Record{
		TestCaseID:        out.TestCaseID,
		Question:          out.Sample.UserInput,
		Reference:         out.Sample.Reference,
		Answer:            out.Answer,
		RetrievedContexts: out.RetrievedContexts,
		Scores:            out.Scores.Scores,
	})
	switch {
	case result.Err != nil:
		// the local outcome stays valid
		o.logger.Warn("failed to upload evaluation results", "test_case_id", out.TestCaseID, "error", result.Err)
	case result.Skipped:
		o.logger.Debug("upload skipped", "test_case_id", out.TestCaseID)
	}
	return result
}

func merge(dst, src runner.Result) {
	for name, s := range src.Scores {
		if _, taken := dst.Scores[name]; taken {
			name = "conversation:" + name
			s.Name = name
		}
		dst.Scores[name] = s
	}
}

func joinFailures(failed map[string]error) error {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, failed[name]))
	}
	return errors.Join(errs...)
}

func testCaseID(tc api.TestCase) string {
	if tc.ID == "" {
		return UnknownTestCaseID
	}
	return tc.ID
}

// Summary counts outcomes by status
type Summary struct {
	Total    int
	Failed   int
	Uploaded int
	Skipped  int
}

// Summarize counts the outcomes of a batch
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Failed() {
			s.Failed++
		}
		switch {
		case o.Upload.OK():
			s.Uploaded++
		case o.Upload.Skipped:
			s.Skipped++
		}
	}
	return s
}
