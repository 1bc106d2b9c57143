package intentboost

import "context"

// EmbeddingReader loads the precomputed embedding of an intent.
// Intents without an embedding return domain.ErrNotFound.
type EmbeddingReader interface {
	IntentEmbedding(ctx context.Context, intentID int64) ([]float32, error)
}
