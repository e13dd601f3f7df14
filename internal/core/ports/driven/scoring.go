package driven

import "context"

// Scorer rates how relevant a passage is to a query.
type Scorer interface {
	// Score returns a relevance score in [0,1].
	Score(ctx context.Context, query, passage string) (float64, error)
}

// ScoringService is a Scorer backed by a remote cross-encoder.
type ScoringService interface {
	Scorer

	// ModelName returns the name of the scoring model, if known.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
