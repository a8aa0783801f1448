// Package tracking uploads evaluation outcomes to LangSmith as run records.
// Upload failures are returned as a Result value, never as a panic or a batch error.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/datar-psa/rageval/api"
)

const (
	// DefaultEndpoint is the LangSmith API root
	DefaultEndpoint = "https://api.smith.langchain.com"
	// DefaultProject is the project runs are filed under
	DefaultProject = "ragas-evaluation-results"
	// RunName is the name given to every uploaded run
	RunName = "ragas-evaluation"
)

// ErrUpload wraps every tracking service failure
var ErrUpload = errors.New("upload to tracking service failed")

// Record is the completed evaluation of one test case
type Record struct {
	TestCaseID        string
	Question          string
	Reference         string
	Answer            string
	RetrievedContexts []string
	Scores            map[string]api.Score
}

// Result is the outcome of one upload
type Result struct {
	RunID   string
	Err     error
	Skipped bool
}

// OK reports whether the run was created
func (r Result) OK() bool {
	return r.Err == nil && r.RunID != ""
}

// Uploader creates LangSmith runs. It is safe for concurrent use.
type Uploader struct {
	endpoint   string
	apiKey     string
	project    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	// set once the project is known to exist; checking again is harmless
	ensured atomic.Bool
}

// Options configures Uploader creation
type Options struct {
	endpoint   string
	apiKey     string
	project    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// WithAPIKey sets the LangSmith API key. Without one every upload is skipped.
func WithAPIKey(key string) func(*Options) {
	return func(opts *Options) {
		opts.apiKey = key
	}
}

// WithEndpoint overrides the LangSmith API root
func WithEndpoint(endpoint string) func(*Options) {
	return func(opts *Options) {
		opts.endpoint = endpoint
	}
}

// WithProject sets the project runs are filed under
func WithProject(project string) func(*Options) {
	return func(opts *Options) {
		opts.project = project
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) func(*Options) {
	return func(opts *Options) {
		opts.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithClock sets the time source used for run timestamps
func WithClock(now func() time.Time) func(*Options) {
	return func(opts *Options) {
		opts.now = now
	}
}

// New creates an Uploader using functional options.
func New(opts ...func(*Options)) *Uploader {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.endpoint == "" {
		options.endpoint = DefaultEndpoint
	}
	if options.project == "" {
		options.project = DefaultProject
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if options.logger == nil {
		options.logger = slog.Default().With("component", "tracking")
	}
	if options.now == nil {
		options.now = time.Now
	}
	return &Uploader{
		endpoint:   strings.TrimRight(options.endpoint, "/"),
		apiKey:     options.apiKey,
		project:    options.project,
		httpClient: options.httpClient,
		logger:     options.logger,
		now:        options.now,
	}
}

// Enabled reports whether uploads will be attempted
func (u *Uploader) Enabled() bool {
	return u.apiKey != ""
}

// Project returns the project name runs are filed under
func (u *Uploader) Project() string {
	return u.project
}

// EnsureProject creates the project if it does not exist yet.
// An already existing project is not an error.
func (u *Uploader) EnsureProject(ctx context.Context) error {
	if u.ensured.Load() {
		return nil
	}

	exists, err := u.projectExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		status, body, err := u.do(ctx, http.MethodPost, "/api/v1/sessions", map[string]any{"name": u.project})
		if err != nil {
			return err
		}
		// a concurrent creator may have won the race
		if status != http.StatusConflict && !success(status) {
			return fmt.Errorf("%w: creating project %q: status %d: %s", ErrUpload, u.project, status, body)
		}
		u.logger.Info("created tracking project", "project", u.project)
	}

	u.ensured.Store(true)
	return nil
}

func (u *Uploader) projectExists(ctx context.Context) (bool, error) {
	status, body, err := u.do(ctx, http.MethodGet, "/api/v1/sessions?name="+url.QueryEscape(u.project), nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if !success(status) {
		return false, fmt.Errorf("%w: reading project %q: status %d: %s", ErrUpload, u.project, status, body)
	}

	var sessions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &sessions); err != nil {
		return false, fmt.Errorf("%w: decoding projects: %v", ErrUpload, err)
	}
	for _, s := range sessions {
		if s.Name == u.project {
			return true, nil
		}
	}
	return false, nil
}

// Run is the run record sent to the tracking service
type Run struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	RunType     string         `json:"run_type"`
	SessionName string         `json:"session_name"`
	StartTime   string         `json:"start_time"`
	EndTime     string         `json:"end_time"`
	Inputs      map[string]any `json:"inputs"`
	Outputs     map[string]any `json:"outputs"`
	Extra       map[string]any `json:"extra"`
}

// Upload creates one chain run for the record. It never panics and never
// returns a bare error: failures are carried in Result.Err wrapping ErrUpload.
func (u *Uploader) Upload(ctx context.Context, rec Record) Result {
	if !u.Enabled() {
		u.logger.Debug("tracking API key not set, skipping upload", "test_case_id", rec.TestCaseID)
		return Result{Skipped: true}
	}

	if err := u.EnsureProject(ctx); err != nil {
		return Result{Err: err}
	}

	now := u.now().UTC()
	payload := BuildRun(rec, u.project, now)

	status, body, err := u.do(ctx, http.MethodPost, "/api/v1/runs", payload)
	if err != nil {
		return Result{Err: err}
	}
	if !success(status) {
		return Result{Err: fmt.Errorf("%w: creating run: status %d: %s", ErrUpload, status, body)}
	}

	u.logger.Info("uploaded evaluation results", "run_id", payload.ID, "test_case_id", rec.TestCaseID)
	return Result{RunID: payload.ID}
}

// BuildRun serializes a record into the run shape the tracking service stores
func BuildRun(rec Record, project string, at time.Time) Run {
	contexts := rec.RetrievedContexts
	if contexts == nil {
		contexts = []string{}
	}
	results, names := evaluationResults(rec.Scores)
	testCaseID := rec.TestCaseID
	if testCaseID == "" {
		testCaseID = "unknown"
	}
	ts := at.Format(time.RFC3339Nano)

	return Run{
		ID:          uuid.NewString(),
		Name:        RunName,
		RunType:     "chain",
		SessionName: project,
		StartTime:   ts,
		EndTime:     ts,
		Inputs: map[string]any{
			"question":           rec.Question,
			"reference":          rec.Reference,
			"retrieved_contexts": contexts,
		},
		Outputs: map[string]any{
			"answer":             rec.Answer,
			"evaluation_results": results,
		},
		Extra: map[string]any{
			"metadata": map[string]any{
				"evaluation_metrics": names,
				"test_case_id":       testCaseID,
				"test_data_id":       testCaseID,
			},
		},
	}
}

// evaluationResults maps each metric to its score, or to {"error": ...} when it failed
func evaluationResults(scores map[string]api.Score) (map[string]any, []string) {
	results := make(map[string]any, len(scores))
	names := make([]string, 0, len(scores))
	for name, s := range scores {
		names = append(names, name)
		switch {
		case s.Error != nil:
			results[name] = map[string]any{"error": s.Error.Error()}
		case math.IsNaN(s.Score) || math.IsInf(s.Score, 0):
			// not representable in JSON
			results[name] = nil
		default:
			results[name] = s.Score
		}
	}
	sort.Strings(names)
	return results, names
}

func (u *Uploader) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: encoding request: %v", ErrUpload, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.endpoint+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	req.Header.Set("x-api-key", u.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading body: %v", ErrUpload, err)
	}
	return resp.StatusCode, data, nil
}

func success(status int) bool {
	return status >= 200 && status <= 299
}
