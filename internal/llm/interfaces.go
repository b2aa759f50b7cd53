// Package llm holds the language-model and embedding capabilities consumed by
// the memory subsystem, the prompt builders for its three model-driven steps
// (search plan, write plan, summarization), and the tolerant parser for
// model-authored command plans.
package llm

import "context"

// TextGenerator maps a structured prompt to a text completion. Provider
// selection, retry and backoff live behind this interface.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// EmbeddingGenerator maps text to a fixed-length numeric vector.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}
