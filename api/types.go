package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Role tags the author of a message in a conversation
type Role string

const (
	// RoleHuman marks a message written by the user
	RoleHuman Role = "human"
	// RoleAI marks a message written by the model
	RoleAI Role = "ai"
)

// Message is a role-tagged piece of conversation content.
// Fields are unexported so a Message cannot change after construction.
type Message struct {
	role    Role
	content string
}

// NewMessage creates a message with the given role and content
func NewMessage(role Role, content string) Message {
	return Message{role: role, content: content}
}

// Human creates a human message
func Human(content string) Message { return NewMessage(RoleHuman, content) }

// AI creates an AI message
func AI(content string) Message { return NewMessage(RoleAI, content) }

// Role returns the author of the message
func (m Message) Role() Role { return m.role }

// Content returns the text of the message
func (m Message) Content() string { return m.content }

// String renders the message as "role: content"
func (m Message) String() string { return fmt.Sprintf("%s: %s", m.role, m.content) }

type messageJSON struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MarshalJSON encodes the message as {"role": ..., "content": ...}
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{Role: m.role, Content: m.content})
}

// UnmarshalJSON decodes {"role": ..., "content": ...}
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.role = raw.Role
	m.content = raw.Content
	return nil
}

// Conversation is an ordered sequence of messages; insertion order is conversation order.
// An empty conversation is valid.
type Conversation []Message

// PromptBatch is the canonical prompt shape: an ordered batch of conversations
type PromptBatch []Conversation

// PromptInput is the closed set of prompt representations accepted by the normalizer.
// Variants: Text, StringPrompt, Message, Sequence, Conversation, PromptBatch, Other.
type PromptInput interface {
	promptInput()
}

// Text is raw prompt text
type Text string

// StringPrompt is a structured prompt value carrying text
type StringPrompt struct {
	Text string
}

// Sequence is a loosely typed list of prompt elements. When its first element is
// itself a sequence, it is read as a batch of conversations.
type Sequence []PromptInput

// Other wraps any value outside the known variants; it is stringified on normalization
type Other struct {
	Value any
}

func (Text) promptInput()         {}
func (StringPrompt) promptInput() {}
func (Message) promptInput()      {}
func (Sequence) promptInput()     {}
func (Conversation) promptInput() {}
func (PromptBatch) promptInput()  {}
func (Other) promptInput()        {}

// String returns the wrapped text
func (p StringPrompt) String() string { return p.Text }

// String renders the wrapped value with fmt
func (o Other) String() string { return fmt.Sprint(o.Value) }

// TestCase is a single evaluation case loaded from the test data files
type TestCase struct {
	ID             string   `json:"id,omitempty"`
	Question       string   `json:"question"`
	Reference      string   `json:"reference,omitempty"`
	ExpectedTopics []string `json:"expected_topics,omitempty"`
}

// UnmarshalJSON accepts any JSON value as the id. Strings are kept as is,
// numbers keep their literal text and null means no id.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	type plain TestCase
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*tc = TestCase(raw.plain)
	tc.ID = ""

	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		tc.ID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err == nil {
		tc.ID = n.String()
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw.ID); err != nil {
		return err
	}
	tc.ID = compact.String()
	return nil
}

// Document is a supporting document returned by the QA service.
// Only Content is consumed; the rest of the payload is kept as Metadata.
type Document struct {
	Content  string
	Metadata map[string]any

	hasContent bool
}

// NewDocument creates a document carrying page content
func NewDocument(content string) Document {
	return Document{Content: content, hasContent: true}
}

// HasContent reports whether the document carried a page_content field
func (d Document) HasContent() bool { return d.hasContent }

// UnmarshalJSON reads page_content and keeps every other field as metadata
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document{}
	if v, ok := raw["page_content"]; ok {
		delete(raw, "page_content")
		d.hasContent = true
		if s, ok := v.(string); ok {
			d.Content = s
		} else if v != nil {
			d.Content = fmt.Sprint(v)
		}
	}
	if len(raw) > 0 {
		d.Metadata = raw
	}
	return nil
}

// MarshalJSON writes the document back in the QA service shape
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		out[k] = v
	}
	if d.hasContent {
		out["page_content"] = d.Content
	}
	return json.Marshal(out)
}

// AnswerResponse is the QA service reply: an answer and ranked supporting documents
type AnswerResponse struct {
	Answer        string     `json:"answer"`
	RetrievedDocs []Document `json:"retrieved_docs"`
}

// SingleTurnSample is one question/answer/contexts unit of evaluation
type SingleTurnSample struct {
	UserInput         string   `json:"user_input"`
	Reference         string   `json:"reference,omitempty"`
	Response          string   `json:"response"`
	RetrievedContexts []string `json:"retrieved_contexts"`
}

// Inputs converts the sample into scorer inputs
func (s SingleTurnSample) Inputs() ScoreInputs {
	return ScoreInputs{
		Input:    s.UserInput,
		Output:   s.Response,
		Expected: s.Reference,
		Contexts: s.RetrievedContexts,
	}
}

// MultiTurnSample is a conversation evaluated against reference topics
type MultiTurnSample struct {
	Turns           Conversation `json:"turns"`
	ReferenceTopics []string     `json:"reference_topics"`
}

// Inputs converts the sample into scorer inputs. The last human and AI turns
// are exposed as Input and Output for scorers that only look at one exchange.
func (s MultiTurnSample) Inputs() ScoreInputs {
	in := ScoreInputs{Turns: s.Turns, Topics: s.ReferenceTopics}
	seenAI := false
	for i := len(s.Turns) - 1; i >= 0; i-- {
		m := s.Turns[i]
		switch m.Role() {
		case RoleAI:
			if !seenAI {
				in.Output = m.Content()
				seenAI = true
			}
		case RoleHuman:
			in.Input = m.Content()
			return in
		}
	}
	return in
}

// Score represents the result of an evaluation
type Score struct {
	// Name identifies the scorer that produced this result
	Name string
	// Score is the metric value; its range is defined by the scorer
	Score float64
	// Metadata contains additional information about the scoring process
	Metadata map[string]any
	// Error contains any error that occurred during scoring
	Error error
}

// ScoreInputs carries inputs for scoring across different scorers.
//
// Fields usage conventions:
// - Output:   the actual output produced by the model (required for most scorers)
// - Expected: the reference/expected output (optional depending on scorer)
// - Input:    the original question given to the model (optional)
// - Contexts: the retrieved contexts the answer was grounded on
// - Turns:    the full conversation for multi-turn scorers
// - Topics:   the reference topics for multi-turn scorers
type ScoreInputs struct {
	Output   string
	Expected string
	Input    string
	Contexts []string
	Turns    Conversation
	Topics   []string
}

// Scorer evaluates the quality of an output
type Scorer interface {
	// Name is the key under which the scorer's result is reported
	Name() string
	// Score evaluates the output and returns a score
	// in: container for output/expected/input depending on scorer needs
	Score(ctx context.Context, in ScoreInputs) Score
}

// ChatModel is the provider-level LLM capability: one completion per conversation.
// Implementations are provided in the openai and gemini subpackages.
type ChatModel interface {
	// Complete returns the model's reply to the conversation
	Complete(ctx context.Context, conv Conversation) (string, error)
	// CompleteJSON returns the model's reply constrained to the given JSON schema
	CompleteJSON(ctx context.Context, conv Conversation, schema map[string]any) (map[string]any, error)
}

// LLMGenerator is what scorers call: it accepts any prompt shape.
// prompt.Generator adapts a ChatModel to this interface.
type LLMGenerator interface {
	// Generate returns one completion per conversation of the normalized prompt, in batch order
	Generate(ctx context.Context, prompt PromptInput) ([]string, error)

	// StructuredGenerate generates structured data based on the provided prompt and JSON schema
	// schema must be a valid JSON schema (map[string]any)
	// Returns the generated data as a map[string]any or an error
	StructuredGenerate(ctx context.Context, prompt PromptInput, schema map[string]any) (map[string]any, error)
}

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModerationCategories contains all supported moderation category names
// These are developer-friendly names that map to Google Cloud Natural Language API categories
var ModerationCategories = []string{
	"Toxic",
	"Derogatory",
	"Violent",
	"Sexual",
	"Insult",
	"Profanity",
	"DeathHarmTragedy",
	"FirearmsWeapons",
	"PublicSafety",
	"Health",
	"ReligionBelief",
	"IllicitDrugs",
	"WarConflict",
	"Finance",
	"Politics",
	"Legal",
}

// ModerationCategory represents a safety category with confidence score
type ModerationCategory struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ModerationResult represents the result of content moderation
type ModerationResult struct {
	Categories []ModerationCategory `json:"categories"`
}

// ModerationProvider is an interface for content moderation
// A Google Cloud Natural Language implementation is provided in the gemini subpackage
type ModerationProvider interface {
	// Moderate analyzes content for safety and returns moderation results
	Moderate(ctx context.Context, content string) (*ModerationResult, error)
}
