package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery signals a malformed retrieval request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankerUnavailable signals that the reranker could not score a batch.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
	// ErrIndexUnavailable signals that a vector or keyword index could not be queried.
	// It is the only retrieval failure surfaced to callers.
	ErrIndexUnavailable = errors.New("index unavailable")
)
