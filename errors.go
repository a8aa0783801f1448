package rageval

import "github.com/datar-psa/rageval/api"

var (
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = api.ErrNoExpectedValue
	// ErrNoContexts is returned when a scorer needs retrieved contexts but none were provided
	ErrNoContexts = api.ErrNoContexts
	// ErrNoTurns is returned when a multi-turn scorer gets no conversation
	ErrNoTurns = api.ErrNoTurns
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = api.ErrLLMGenerationFailed
)
