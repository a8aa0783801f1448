// Package runner scores samples against a set of metrics.
// Every (sample, metric) pair is isolated: a failing or panicking metric is
// recorded for that metric alone and never aborts its siblings.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/datar-psa/rageval/api"
)

// ErrMetricPanic marks a metric that panicked while scoring
var ErrMetricPanic = errors.New("metric panicked")

// Result holds one score per metric, keyed by metric name
type Result struct {
	Scores map[string]api.Score
}

// Names returns the metric names in sorted order
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Scores))
	for name := range r.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns the scores of the metrics that succeeded
func (r Result) Values() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for name, s := range r.Scores {
		if s.Error == nil {
			out[name] = s.Score
		}
	}
	return out
}

// Failed returns the error of every metric that failed
func (r Result) Failed() map[string]error {
	out := make(map[string]error)
	for name, s := range r.Scores {
		if s.Error != nil {
			out[name] = s.Error
		}
	}
	return out
}

// OK reports whether every metric produced a score
func (r Result) OK() bool {
	return len(r.Failed()) == 0
}

// Runner dispatches metrics concurrently
type Runner struct {
	concurrency int
	logger      *slog.Logger
}

// Options configures Runner creation
type Options struct {
	concurrency int
	logger      *slog.Logger
}

// WithConcurrency bounds how many metrics run at once; zero means all at once
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

// New creates a Runner using functional options.
func New(opts ...func(*Options)) *Runner {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default().With("component", "runner")
	}
	return &Runner{
		concurrency: options.concurrency,
		logger:      options.logger,
	}
}

// Run scores one sample with every metric. Scores are returned as produced;
// no clamping or rounding is applied. A metric whose name repeats an earlier
// one is keyed as "name#2", "name#3" and so on.
func (r *Runner) Run(ctx context.Context, in api.ScoreInputs, metrics []api.Scorer) Result {
	names := uniqueNames(metrics)
	scores := make([]api.Score, len(metrics))

	var g errgroup.Group
	limit := r.concurrency
	if limit <= 0 {
		limit = len(metrics)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, m := range metrics {
		g.Go(func() error {
			scores[i] = r.score(ctx, names[i], m, in)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Scores: make(map[string]api.Score, len(metrics))}
	for i, s := range scores {
		s.Name = names[i]
		result.Scores[names[i]] = s
	}
	return result
}

// RunAll scores several samples with the same metrics, returning results in input order
func (r *Runner) RunAll(ctx context.Context, samples []api.ScoreInputs, metrics []api.Scorer) []Result {
	results := make([]Result, len(samples))
	for i, in := range samples {
		results[i] = r.Run(ctx, in, metrics)
	}
	return results
}

func (r *Runner) score(ctx context.Context, name string, m api.Scorer, in api.ScoreInputs) (s api.Score) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in metric", "metric", name, "panic", p)
			s = api.Score{Name: name, Error: fmt.Errorf("%w: %v", ErrMetricPanic, p)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return api.Score{Name: name, Error: err}
	}
	s = m.Score(ctx, in)
	if s.Error != nil {
		r.logger.Warn("metric failed", "metric", name, "error", s.Error)
	}
	return s
}

// uniqueNames keys every metric distinctly. The first metric with a name keeps it;
// later duplicates take the lowest free "name#n", skipping names other metrics use.
func uniqueNames(metrics []api.Scorer) []string {
	names := make([]string, len(metrics))
	used := make(map[string]bool, len(metrics))
	var dups []int
	for i, m := range metrics {
		name := m.Name()
		if used[name] {
			dups = append(dups, i)
			continue
		}
		used[name] = true
		names[i] = name
	}
	for _, i := range dups {
		base := metrics[i].Name()
		for n := 2; ; n++ {
			candidate := base + "#" + strconv.Itoa(n)
			if !used[candidate] {
				used[candidate] = true
				names[i] = candidate
				break
			}
		}
	}
	return names
}
