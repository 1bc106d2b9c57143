package db

import "github.com/kailas-cloud/hybridrank/internal/domain/search/filter"

// DefaultVectorField is searched when KNNQuery.VectorField is empty.
const DefaultVectorField = "primary"

// KNNQuery asks for the K nearest items to Vector among those matching Filters.
type KNNQuery struct {
	IndexName   string
	VectorField string
	Filters     filter.Expression
	Vector      []float32
	K           int
	// ReturnFields limits the reply; empty returns every stored field including vectors.
	ReturnFields []string
}

// ListQuery pages through items matching Filters, optionally sorted.
type ListQuery struct {
	IndexName    string
	Filters      filter.Expression
	SortBy       string
	Descending   bool
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult holds one page of entries and the total match count.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one matched hash. Score is set for KNN queries only.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
