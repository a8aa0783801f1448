package api

import "errors"

var (
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = errors.New("expected value is required for this scorer")
	// ErrNoContexts is returned when a scorer needs retrieved contexts but none were provided
	ErrNoContexts = errors.New("retrieved contexts are required for this scorer")
	// ErrNoTurns is returned when a multi-turn scorer gets an empty conversation
	ErrNoTurns = errors.New("conversation turns are required for this scorer")
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = errors.New("LLM generation failed")
)
