// Package qaclient talks to the remote question-answering service under evaluation.
package qaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/datar-psa/rageval/api"
)

// DefaultEndpoint is the RAG service the test suites were written against
const DefaultEndpoint = "https://rahulshettyacademy.com/rag-llm/ask"

var (
	// ErrUpstream is returned when the QA service cannot be reached or answers with a non-2xx status
	ErrUpstream = errors.New("QA service request failed")
	// ErrMalformedResponse is returned when the QA service body is not valid JSON
	ErrMalformedResponse = errors.New("malformed QA service response")
)

// Client posts questions to the QA service
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures Client creation
type Options struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithEndpoint overrides the QA endpoint URL
func WithEndpoint(endpoint string) func(*Options) {
	return func(opts *Options) {
		opts.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client, e.g. a hypert client in tests
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

// New creates a QA client using functional options.
func New(opts ...func(*Options)) *Client {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.endpoint == "" {
		options.endpoint = DefaultEndpoint
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if options.logger == nil {
		options.logger = slog.Default().With("component", "qaclient")
	}
	return &Client{
		endpoint:   options.endpoint,
		httpClient: options.httpClient,
		logger:     options.logger,
	}
}

type askRequest struct {
	Question    string           `json:"question"`
	ChatHistory api.Conversation `json:"chat_history"`
}

// Ask sends a question with its prior turns and returns the service's answer.
// Absent answer or retrieved_docs fields decode to their zero values.
func (c *Client) Ask(ctx context.Context, question string, history api.Conversation) (*api.AnswerResponse, error) {
	if history == nil {
		history = api.Conversation{}
	}
	body, err := json.Marshal(askRequest{Question: question, ChatHistory: history})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	c.logger.Debug("QA service replied", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, truncate(data, 200))
	}

	var out api.AnswerResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
