package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/rageval/api"
)

// fakeLangSmith records the calls the uploader makes
type fakeLangSmith struct {
	t *testing.T

	projectExists bool
	runStatus     int

	sessionReads   atomic.Int32
	sessionCreates atomic.Int32

	mu   sync.Mutex
	runs []map[string]any
}

func (f *fakeLangSmith) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "test-key", r.Header.Get("x-api-key"))

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sessions":
		f.sessionReads.Add(1)
		if f.projectExists {
			_, _ = w.Write([]byte(`[{"id": "p-1", "name": "` + r.URL.Query().Get("name") + `"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions":
		f.sessionCreates.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "p-1"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs":
		var run map[string]any
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&run))
		f.mu.Lock()
		f.runs = append(f.runs, run)
		f.mu.Unlock()
		if f.runStatus != 0 {
			w.WriteHeader(f.runStatus)
			_, _ = w.Write([]byte(`{"detail": "ingest unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newUploader(t *testing.T, fake *fakeLangSmith, opts ...func(*Options)) *Uploader {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(append([]func(*Options){
		WithAPIKey("test-key"),
		WithEndpoint(srv.URL + "/"),
		WithHTTPClient(srv.Client()),
	}, opts...)...)
}

var record = Record{
	TestCaseID:        "java-articles",
	Question:          "How many articles are there for JAVA?",
	Reference:         "23",
	Answer:            "There are 23 articles.",
	RetrievedContexts: []string{"a", "b"},
	Scores: map[string]api.Score{
		"faithfulness":   {Name: "faithfulness", Score: 0.75},
		"context_recall": {Name: "context_recall", Error: errors.New("scoring backend timeout")},
	},
}

func TestUpload_CreatesProjectOnceAndRun(t *testing.T) {
	fake := &fakeLangSmith{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newUploader(t, fake, WithProject("rag-tests"), WithClock(func() time.Time { return fixed }))

	first := u.Upload(context.Background(), record)
	second := u.Upload(context.Background(), record)

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.True(t, first.OK())
	assert.NotEqual(t, first.RunID, second.RunID)
	_, err := uuid.Parse(first.RunID)
	assert.NoError(t, err)

	assert.EqualValues(t, 1, fake.sessionReads.Load())
	assert.EqualValues(t, 1, fake.sessionCreates.Load())
	require.Len(t, fake.runs, 2)

	run := fake.runs[0]
	assert.Equal(t, first.RunID, run["id"])
	assert.Equal(t, RunName, run["name"])
	assert.Equal(t, "chain", run["run_type"])
	assert.Equal(t, "rag-tests", run["session_name"])
	assert.Equal(t, "2025-03-01T12:00:00Z", run["start_time"])

	assert.Equal(t, map[string]any{
		"question":           "How many articles are there for JAVA?",
		"reference":          "23",
		"retrieved_contexts": []any{"a", "b"},
	}, run["inputs"])
	assert.Equal(t, map[string]any{
		"answer": "There are 23 articles.",
		"evaluation_results": map[string]any{
			"faithfulness":   0.75,
			"context_recall": map[string]any{"error": "scoring backend timeout"},
		},
	}, run["outputs"])
	assert.Equal(t, map[string]any{
		"metadata": map[string]any{
			"evaluation_metrics": []any{"context_recall", "faithfulness"},
			"test_case_id":       "java-articles",
			"test_data_id":       "java-articles",
		},
	}, run["extra"])
}

func TestUpload_ExistingProjectIsNotCreated(t *testing.T) {
	fake := &fakeLangSmith{projectExists: true}
	u := newUploader(t, fake)

	result := u.Upload(context.Background(), record)

	require.NoError(t, result.Err)
	assert.Zero(t, fake.sessionCreates.Load())
	assert.Equal(t, DefaultProject, u.Project())
}

func TestUpload_ConcurrentCallsAreSafe(t *testing.T) {
	fake := &fakeLangSmith{projectExists: true}
	u := newUploader(t, fake)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = u.Upload(context.Background(), record)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Len(t, fake.runs, 8)
}

func TestUpload_RunFailure(t *testing.T) {
	fake := &fakeLangSmith{projectExists: true, runStatus: http.StatusServiceUnavailable}
	u := newUploader(t, fake)

	result := u.Upload(context.Background(), record)

	assert.ErrorIs(t, result.Err, ErrUpload)
	assert.Contains(t, result.Err.Error(), "ingest unavailable")
	assert.Empty(t, result.RunID)
	assert.False(t, result.OK())
}

func TestUpload_ProjectLookupFailureIsRetried(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	fake := &fakeLangSmith{projectExists: true}
	fake.t = t
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fake.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	u := New(WithAPIKey("test-key"), WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))

	assert.ErrorIs(t, u.Upload(context.Background(), record).Err, ErrUpload)

	fail.Store(false)
	assert.NoError(t, u.Upload(context.Background(), record).Err)
}

func TestUpload_SkippedWithoutAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	u := New(WithEndpoint(srv.URL))
	result := u.Upload(context.Background(), record)

	assert.True(t, result.Skipped)
	assert.NoError(t, result.Err)
	assert.False(t, u.Enabled())
}

func TestUpload_Unreachable(t *testing.T) {
	u := New(WithAPIKey("test-key"), WithEndpoint("http://127.0.0.1:1"))
	assert.ErrorIs(t, u.Upload(context.Background(), record).Err, ErrUpload)
}

func TestBuildRun_Defaults(t *testing.T) {
	run := BuildRun(Record{Question: "q"}, "p", time.Unix(0, 0))

	assert.Equal(t, []string{}, run.Inputs["retrieved_contexts"])
	meta := run.Extra["metadata"].(map[string]any)
	assert.Equal(t, "unknown", meta["test_case_id"])
	assert.Equal(t, []string{}, meta["evaluation_metrics"])

	_, err := json.Marshal(run)
	assert.NoError(t, err)
}
