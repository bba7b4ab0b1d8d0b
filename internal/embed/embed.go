// Package embed defines the embedding capability used by the retrieval
// pipeline and implements it on top of Genkit embedders.
//
// The two production variants, a local Ollama model and the hosted Google AI
// API, are both registered as Genkit embedders in internal/app. Which one
// backs a Provider is decided exactly once at construction, and callers never
// learn which is active.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

var (
	// ErrEmptyInput indicates an empty text was submitted for embedding.
	// Returned before any provider call is made.
	ErrEmptyInput = errors.New("embedding input is empty")
)

// Provider turns text into fixed-length vectors. Implementations must return
// vectors of one stable dimensionality for the lifetime of the corpus.
type Provider interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts preserving order: result i corresponds to
	// input i. An error aborts the whole batch; no partial results.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Genkit is a Provider backed by a Genkit ai.Embedder.
//
// Upstream embedding APIs cap the number of inputs per call, so batches are
// transparently chunked at maxBatch and reassembled in input order.
type Genkit struct {
	embedder ai.Embedder
	maxBatch int
	logger   *slog.Logger
}

// DefaultMaxBatch is the per-call input ceiling used when none is configured.
const DefaultMaxBatch = 32

// NewGenkit creates a Provider over an already-registered Genkit embedder.
func NewGenkit(embedder ai.Embedder, maxBatch int, logger *slog.Logger) (*Genkit, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if maxBatch < 1 {
		maxBatch = DefaultMaxBatch
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Genkit{embedder: embedder, maxBatch: maxBatch, logger: logger}, nil
}

// Embed embeds a single text.
func (g *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("provider returned no embedding")
	}

	return resp.Embeddings[0].Embedding, nil
}

// EmbedBatch embeds texts in input order, chunking at the configured per-call
// ceiling. Inputs are validated up front so an empty text aborts the batch
// before any provider call.
func (g *Genkit) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("input %d: %w", i, ErrEmptyInput)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.maxBatch {
		end := min(start+g.maxBatch, len(texts))
		chunk := texts[start:end]

		docs := make([]*ai.Document, len(chunk))
		for i, text := range chunk {
			docs[i] = ai.DocumentFromText(text, nil)
		}

		resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(docs) {
			return nil, fmt.Errorf("provider returned %d embeddings for %d inputs",
				len(resp.Embeddings), len(docs))
		}

		for i, emb := range resp.Embeddings {
			if len(emb.Embedding) == 0 {
				return nil, fmt.Errorf("provider returned empty embedding for input %d", start+i)
			}
			out = append(out, emb.Embedding)
		}
	}

	g.logger.Debug("embedded batch", "inputs", len(texts), "chunk_size", g.maxBatch)
	return out, nil
}
