package driven

import "context"

// Generator produces text from a prompt.
type Generator interface {
	// Generate returns the completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryRewriter reformulates a query using retrieved context.
type QueryRewriter interface {
	// RewriteQuery returns a refined query given the original and the texts
	// of the top selected passages.
	RewriteQuery(ctx context.Context, query string, passages []string) (string, error)
}

// LLMService provides language model operations.
//
// Implementations may include:
//   - OpenAI (GPT-4o) or any OpenAI-compatible server
//   - Ollama (local models)
//   - Anthropic (Claude)
type LLMService interface {
	Generator
	QueryRewriter

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
