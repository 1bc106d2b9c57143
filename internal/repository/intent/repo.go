// Package intent reads intent embeddings for semantic intent boosting.
package intent

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/hybridrank/internal/domain"
)

const fieldEmbedding = "embedding"

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo reads intent hashes at {prefix}intent:{id}.
type Repo struct {
	store  store
	prefix string
}

// New creates an intent repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// IntentEmbedding returns the stored embedding of an intent.
// Missing intents and intents without an embedding yield domain.ErrNotFound.
func (r *Repo) IntentEmbedding(ctx context.Context, intentID int64) ([]float32, error) {
	h, err := r.store.HGetAll(ctx, r.prefix+"intent:"+strconv.FormatInt(intentID, 10))
	if err != nil {
		return nil, fmt.Errorf("get intent %d: %w", intentID, err)
	}

	blob := h[fieldEmbedding]
	if blob == "" {
		return nil, fmt.Errorf("intent %d embedding: %w", intentID, domain.ErrNotFound)
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("intent %d: embedding blob of %d bytes", intentID, len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(blob[i*4 : i*4+4])))
	}
	return vec, nil
}
