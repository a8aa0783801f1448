package testutils

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	language "cloud.google.com/go/language/apiv1"
	"github.com/areknoster/hypert"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/datar-psa/rageval/gemini"
	"github.com/datar-psa/rageval/openai"
	"github.com/datar-psa/rageval/qaclient"
)

// ShouldUpdate returns true if tests should update cached HTTP responses
// Set UPDATE_TESTS=true environment variable to update cached responses
func ShouldUpdate() bool {
	return os.Getenv("UPDATE_TESTS") == "true"
}

// SkipUnlessIntegration skips tests that replay recorded traffic unless
// RAGEVAL_INTEGRATION is set, and always in short mode
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("RAGEVAL_INTEGRATION") == "" && !ShouldUpdate() {
		t.Skip("Skipping integration test: set RAGEVAL_INTEGRATION=1 to replay recorded requests")
	}
}

// HypertClientConfig configures hypert client creation
type HypertClientConfig struct {
	TestDataDir string
	SubDir      string // Optional subdirectory for organizing test data
}

// NewHypertClient creates a new hypert client for caching HTTP requests
// Requests are matched on path, query and method so that request bodies
// carrying API keys or timestamps do not break replay.
func NewHypertClient(t *testing.T, config HypertClientConfig) *http.Client {
	testDataDir := config.TestDataDir
	if config.SubDir != "" {
		testDataDir = filepath.Join(testDataDir, config.SubDir)
	}

	namingScheme, err := hypert.NewContentHashNamingScheme(testDataDir)
	if err != nil {
		t.Fatalf("failed to create naming scheme: %v", err)
	}

	return hypert.TestClient(t, ShouldUpdate(),
		hypert.WithNamingScheme(namingScheme),
		hypert.WithRequestValidator(hypert.ComposedRequestValidator(
			hypert.PathValidator(),
			hypert.QueryParamsValidator(),
			hypert.MethodValidator(),
		)),
	)
}

// quotaProjectTransport wraps an http.RoundTripper to add quota project header
type quotaProjectTransport struct {
	base      http.RoundTripper
	projectID string
}

func (t *quotaProjectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Goog-User-Project", t.projectID)
	return t.base.RoundTrip(req)
}

// NewGoogleHypertClient is NewHypertClient with Google default credentials in record mode.
// When projectID is set it is sent as the quota project, which the Natural Language API requires.
func NewGoogleHypertClient(t *testing.T, config HypertClientConfig, projectID string) *http.Client {
	hypertClient := NewHypertClient(t, config)
	if !ShouldUpdate() {
		return hypertClient
	}

	ctx := context.Background()
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		t.Fatalf("failed to get default credentials: %v", err)
	}
	oauth2Client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, hypertClient), creds.TokenSource)
	if projectID == "" {
		return oauth2Client
	}
	return &http.Client{
		Transport: &quotaProjectTransport{
			base:      oauth2Client.Transport,
			projectID: projectID,
		},
		Timeout: oauth2Client.Timeout,
	}
}

// NewQAClient creates a QA service client that replays recorded answers
func NewQAClient(t *testing.T, subDir string) *qaclient.Client {
	return qaclient.New(qaclient.WithHTTPClient(NewHypertClient(t, HypertClientConfig{
		TestDataDir: "testdata",
		SubDir:      subDir,
	})))
}

// NewOpenAIChatModel creates an OpenAI chat model whose traffic is recorded by hypert
func NewOpenAIChatModel(t *testing.T, subDir string) *openai.ChatModel {
	cfg := goopenai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	cfg.HTTPClient = NewHypertClient(t, HypertClientConfig{TestDataDir: "testdata", SubDir: subDir})
	return openai.NewChatModel(goopenai.NewClientWithConfig(cfg), openai.DefaultChatModel)
}

// NewOpenAIEmbedder creates an OpenAI embedder whose traffic is recorded by hypert
func NewOpenAIEmbedder(t *testing.T, subDir string) *openai.Embedder {
	cfg := goopenai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	cfg.HTTPClient = NewHypertClient(t, HypertClientConfig{TestDataDir: "testdata", SubDir: subDir})
	return openai.NewEmbedder(goopenai.NewClientWithConfig(cfg), openai.DefaultEmbeddingModel)
}

// GeminiTestConfig configures Gemini client creation for tests
type GeminiTestConfig struct {
	Project  string
	Location string
	SubDir   string // Subdirectory for hypert test data
}

// DefaultGeminiTestConfig returns a default configuration for Gemini testing
func DefaultGeminiTestConfig(subDir string) GeminiTestConfig {
	return GeminiTestConfig{
		Project:  os.Getenv("GOOGLE_PROJECT_ID"),
		Location: os.Getenv("GOOGLE_REGION"),
		SubDir:   subDir,
	}
}

// NewGeminiClient creates a new Gemini client for testing with hypert caching
func NewGeminiClient(t *testing.T, config GeminiTestConfig) *genai.Client {
	ctx := context.Background()

	httpClient := NewGoogleHypertClient(t, HypertClientConfig{
		TestDataDir: "testdata",
		SubDir:      config.SubDir,
	}, "")

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:    genai.BackendVertexAI,
		Project:    config.Project,
		Location:   config.Location,
		HTTPClient: httpClient,
	})
	if err != nil {
		t.Fatalf("failed to create genai client: %v", err)
	}

	return genaiClient
}

// NewGeminiChatModel creates a new Gemini chat model for testing
func NewGeminiChatModel(t *testing.T, config GeminiTestConfig, modelName string) *gemini.ChatModel {
	return gemini.NewChatModel(NewGeminiClient(t, config), modelName)
}

// NewModerationProvider creates a Natural Language moderation provider whose traffic is recorded by hypert
func NewModerationProvider(t *testing.T, subDir string) *gemini.ModerationProvider {
	httpClient := NewGoogleHypertClient(t, HypertClientConfig{
		TestDataDir: "testdata",
		SubDir:      subDir,
	}, os.Getenv("GOOGLE_PROJECT_ID"))

	client, err := language.NewRESTClient(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("failed to create language client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return gemini.NewModerationProvider(client)
}
