// Package rageval evaluates retrieval-augmented question answering services.
//
// The facade types in this package build scorers without passing providers around:
// an LLMJudge holds the judge model, embedder and moderation provider; Embedding and
// Heuristic cover the scorers that need no LLM.
package rageval

import (
	"errors"
	"fmt"
	"strings"

	language "cloud.google.com/go/language/apiv1"
	"google.golang.org/genai"

	"github.com/datar-psa/rageval/api"
	"github.com/datar-psa/rageval/embedding"
	"github.com/datar-psa/rageval/gemini"
	"github.com/datar-psa/rageval/heuristic"
	"github.com/datar-psa/rageval/metrics"
	"github.com/datar-psa/rageval/openai"
	"github.com/datar-psa/rageval/prompt"
)

type Score = api.Score
type ScoreInputs = api.ScoreInputs
type Scorer = api.Scorer

// ErrUnknownMetric is returned by LLMJudge.Metric for names it cannot build
var ErrUnknownMetric = errors.New("unknown metric")

// LLMJudge wraps an LLM generator and exposes convenient constructors for LLM-as-a-judge scorers.
type LLMJudge struct {
	llm        api.LLMGenerator
	embedder   api.Embedder
	moderation api.ModerationProvider
}

// LLMJudgeOptions configures LLMJudge creation
type LLMJudgeOptions struct {
	llm        api.LLMGenerator
	embedder   api.Embedder
	moderation api.ModerationProvider
}

// WithLLMGenerator sets the LLM generator for the judge
func WithLLMGenerator(llm api.LLMGenerator) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.llm = llm
	}
}

// WithChatModel sets the judge model; prompts are normalized before they reach it
func WithChatModel(model api.ChatModel) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.llm = prompt.NewGenerator(model)
	}
}

// WithJudgeEmbedder sets the embedder used by ResponseRelevancy
func WithJudgeEmbedder(embedder api.Embedder) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.embedder = embedder
	}
}

// WithModerationProvider sets the moderation provider for the judge
func WithModerationProvider(provider api.ModerationProvider) func(*LLMJudgeOptions) {
	return func(opts *LLMJudgeOptions) {
		opts.moderation = provider
	}
}

// NewLLMJudge creates a new Judge wrapper using functional options.
func NewLLMJudge(opts ...func(*LLMJudgeOptions)) *LLMJudge {
	options := &LLMJudgeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &LLMJudge{
		llm:        options.llm,
		embedder:   options.embedder,
		moderation: options.moderation,
	}
}

// OpenAIOptions configures OpenAI LLMJudge creation
type OpenAIOptions struct {
	apiKey         string
	baseURL        string
	chatModel      string
	embeddingModel string
}

// WithAPIKey sets the OpenAI API key
func WithAPIKey(key string) func(*OpenAIOptions) {
	return func(opts *OpenAIOptions) {
		opts.apiKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint
func WithBaseURL(url string) func(*OpenAIOptions) {
	return func(opts *OpenAIOptions) {
		opts.baseURL = url
	}
}

// WithOpenAIChatModel sets the judge model (default gpt-4o-mini)
func WithOpenAIChatModel(model string) func(*OpenAIOptions) {
	return func(opts *OpenAIOptions) {
		opts.chatModel = model
	}
}

// WithOpenAIEmbeddingModel sets the embedding model (default text-embedding-3-small)
func WithOpenAIEmbeddingModel(model string) func(*OpenAIOptions) {
	return func(opts *OpenAIOptions) {
		opts.embeddingModel = model
	}
}

// NewOpenAILLMJudge creates a Judge backed by OpenAI chat and embedding models at temperature 0.
func NewOpenAILLMJudge(opts ...func(*OpenAIOptions)) *LLMJudge {
	options := &OpenAIOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return NewLLMJudge(
		WithChatModel(openai.NewChatModelFromKey(options.apiKey, options.baseURL, options.chatModel)),
		WithJudgeEmbedder(openai.NewEmbedderFromKey(options.apiKey, options.baseURL, options.embeddingModel)),
	)
}

// GeminiOptions configures Gemini LLMJudge creation
type GeminiOptions struct {
	genaiClient    *genai.Client
	modelName      string
	embeddingModel string
	langClient     *language.Client
}

// WithGenaiClient sets the Gemini client for the judge
func WithGenaiClient(client *genai.Client) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.genaiClient = client
	}
}

// WithModelName sets the model name for the judge
func WithModelName(modelName string) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.modelName = modelName
	}
}

// WithEmbeddingModelName sets the Gemini embedding model, e.g. "text-embedding-005"
func WithEmbeddingModelName(modelName string) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.embeddingModel = modelName
	}
}

// WithLanguageClient sets the Google Cloud Language client for moderation
func WithLanguageClient(langClient *language.Client) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.langClient = langClient
	}
}

// NewGeminiLLMJudge creates a Judge using Gemini client and model name.
// Example model: "publishers/google/models/gemini-2.5-flash".
func NewGeminiLLMJudge(opts ...func(*GeminiOptions)) *LLMJudge {
	options := &GeminiOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var llmOptions []func(*LLMJudgeOptions)

	// Only add LLM generator if genaiClient is provided
	if options.genaiClient != nil && options.modelName != "" {
		llmOptions = append(llmOptions, WithChatModel(gemini.NewChatModel(options.genaiClient, options.modelName)))
	}
	if options.genaiClient != nil && options.embeddingModel != "" {
		llmOptions = append(llmOptions, WithJudgeEmbedder(gemini.NewEmbedder(options.genaiClient, options.embeddingModel)))
	}

	// Only add moderation provider if langClient is provided
	if options.langClient != nil {
		llmOptions = append(llmOptions, WithModerationProvider(gemini.NewModerationProvider(options.langClient)))
	}

	return NewLLMJudge(llmOptions...)
}

type ResponseRelevancyOptions = metrics.ResponseRelevancyOptions

// ResponseRelevancy returns a scorer that checks how well the answer addresses the question.
func (j *LLMJudge) ResponseRelevancy(opts ResponseRelevancyOptions) api.Scorer {
	return metrics.ResponseRelevancy(j.llm, j.embedder, opts)
}

type FactualCorrectnessOptions = metrics.FactualCorrectnessOptions

// FactualCorrectness returns a scorer that compares answer claims with the reference.
func (j *LLMJudge) FactualCorrectness(opts FactualCorrectnessOptions) api.Scorer {
	return metrics.FactualCorrectness(j.llm, opts)
}

// ContextPrecision returns a scorer that ranks the usefulness of the retrieved contexts.
func (j *LLMJudge) ContextPrecision() api.Scorer {
	return metrics.ContextPrecision(j.llm)
}

// ContextRecall returns a scorer that checks how much of the reference the contexts cover.
func (j *LLMJudge) ContextRecall() api.Scorer {
	return metrics.ContextRecall(j.llm)
}

// Faithfulness returns a scorer that checks the answer is grounded in the contexts.
func (j *LLMJudge) Faithfulness() api.Scorer {
	return metrics.Faithfulness(j.llm)
}

type TopicAdherenceOptions = metrics.TopicAdherenceOptions

// TopicAdherence returns a conversation scorer that checks the AI stays on the reference topics.
func (j *LLMJudge) TopicAdherence(opts TopicAdherenceOptions) api.Scorer {
	return metrics.TopicAdherence(j.llm, opts)
}

type ModerationOptions = metrics.ModerationOptions

// Moderation returns a scorer that evaluates content safety using a moderation provider.
func (j *LLMJudge) Moderation(opts ModerationOptions) api.Scorer {
	return metrics.Moderation(j.moderation, opts)
}

// Metric builds a scorer from its result name. A mode may be given in the
// result-name form, e.g. "factual_correctness(mode=precision)".
// conversation reports whether the scorer expects a multi-turn sample.
func (j *LLMJudge) Metric(name string) (scorer api.Scorer, conversation bool, err error) {
	base, mode := parseMetricName(name)
	switch mode {
	case "", metrics.ModePrecision, metrics.ModeRecall, metrics.ModeF1:
	default:
		return nil, false, fmt.Errorf("%w: %q has unknown mode %q", ErrUnknownMetric, name, mode)
	}
	switch base {
	case "answer_relevancy", "response_relevancy":
		return j.ResponseRelevancy(ResponseRelevancyOptions{}), false, nil
	case "factual_correctness":
		return j.FactualCorrectness(FactualCorrectnessOptions{Mode: mode}), false, nil
	case "llm_context_precision_without_reference", "context_precision":
		return j.ContextPrecision(), false, nil
	case "context_recall":
		return j.ContextRecall(), false, nil
	case "faithfulness":
		return j.Faithfulness(), false, nil
	case "topic_adherence":
		return j.TopicAdherence(TopicAdherenceOptions{Mode: mode}), true, nil
	case "moderation":
		return j.Moderation(ModerationOptions{}), false, nil
	case "exact_match":
		return heuristic.ExactMatch(heuristic.ExactMatchOptions{}), false, nil
	case "embedding_similarity":
		return embedding.EmbeddingSimilarity(j.embedder, embedding.EmbeddingSimilarityOptions{}), false, nil
	}
	return nil, false, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// Metrics builds the named scorers, split into single-turn and conversation scorers.
func (j *LLMJudge) Metrics(names []string) (single, conversation []api.Scorer, err error) {
	for _, name := range names {
		s, conv, err := j.Metric(name)
		if err != nil {
			return nil, nil, err
		}
		if conv {
			conversation = append(conversation, s)
		} else {
			single = append(single, s)
		}
	}
	return single, conversation, nil
}

func parseMetricName(name string) (string, metrics.Mode) {
	name = strings.TrimSpace(name)
	base, rest, ok := strings.Cut(name, "(")
	if !ok {
		return name, ""
	}
	rest = strings.TrimSuffix(rest, ")")
	if v, ok := strings.CutPrefix(rest, "mode="); ok {
		return base, metrics.Mode(v)
	}
	return base, ""
}

// Embedding wraps an embedder and exposes convenient constructors for embedding-based scorers.
type Embedding struct{ embedder api.Embedder }

// EmbeddingOptions configures Embedding creation
type EmbeddingOptions struct {
	embedder api.Embedder
}

// WithEmbedder sets the embedder for the embedding scorer
func WithEmbedder(embedder api.Embedder) func(*EmbeddingOptions) {
	return func(opts *EmbeddingOptions) {
		opts.embedder = embedder
	}
}

// NewEmbedding creates a new Embedding wrapper using functional options.
func NewEmbedding(opts ...func(*EmbeddingOptions)) *Embedding {
	options := &EmbeddingOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &Embedding{embedder: options.embedder}
}

// NewGeminiEmbedding creates an Embedding using Gemini client and model name.
// Example model: "text-embedding-005".
func NewGeminiEmbedding(opts ...func(*GeminiOptions)) *Embedding {
	options := &GeminiOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var embeddingOptions []func(*EmbeddingOptions)

	// Only add embedder if genaiClient and modelName are provided
	if options.genaiClient != nil && options.modelName != "" {
		embeddingOptions = append(embeddingOptions, WithEmbedder(gemini.NewEmbedder(options.genaiClient, options.modelName)))
	}

	return NewEmbedding(embeddingOptions...)
}

type EmbeddingSimilarityOptions = embedding.EmbeddingSimilarityOptions

// Similarity returns a scorer that measures semantic similarity using embeddings.
func (e *Embedding) Similarity(opts EmbeddingSimilarityOptions) api.Scorer {
	return embedding.EmbeddingSimilarity(e.embedder, opts)
}

// Heuristic exposes convenient constructors for heuristic scorers.
type Heuristic struct{}

// NewHeuristic creates a new Heuristic.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type ExactMatchOptions = heuristic.ExactMatchOptions

// ExactMatch returns a scorer that checks if the output exactly matches the expected value.
func (h *Heuristic) ExactMatch(opts ExactMatchOptions) api.Scorer {
	return heuristic.ExactMatch(opts)
}
