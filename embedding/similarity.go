// Package embedding provides vector similarity helpers and an embedding-based scorer.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/datar-psa/rageval/api"
)

// EmbeddingSimilarityOptions configures the EmbeddingSimilarity scorer
type EmbeddingSimilarityOptions struct {
	// Raw reports the cosine similarity in [-1,1] instead of mapping it to [0,1]
	Raw bool
}

// EmbeddingSimilarity returns a scorer that measures semantic similarity between
// the response and the reference using cosine similarity of their embeddings
func EmbeddingSimilarity(embedder api.Embedder, opts EmbeddingSimilarityOptions) api.Scorer {
	return &embeddingSimilarityScorer{opts: opts, embedder: embedder}
}

type embeddingSimilarityScorer struct {
	opts     EmbeddingSimilarityOptions
	embedder api.Embedder
}

func (s *embeddingSimilarityScorer) Name() string { return "embedding_similarity" }

func (s *embeddingSimilarityScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     s.Name(),
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		result.Error = api.ErrNoExpectedValue
		return result
	}

	if s.embedder == nil {
		result.Error = fmt.Errorf("embedder is required")
		return result
	}

	outputEmbed, err := s.embedder.Embed(ctx, in.Output)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed output: %w", err)
		return result
	}

	expectedEmbed, err := s.embedder.Embed(ctx, in.Expected)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed expected: %w", err)
		return result
	}

	similarity := CosineSimilarity(outputEmbed, expectedEmbed)

	result.Score = similarity
	if !s.opts.Raw {
		result.Score = Normalize(similarity)
	}
	result.Metadata["cosine_similarity"] = similarity
	result.Metadata["embedding_dim"] = len(outputEmbed)

	return result
}

// Normalize maps a cosine similarity from [-1,1] to [0,1]
func Normalize(similarity float64) float64 {
	return math.Max(0, math.Min(1, (similarity+1.0)/2.0))
}

// CosineSimilarity computes the cosine similarity between two vectors
// Returns a value between -1 and 1; mismatched or zero vectors give 0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
