package db

import (
	"errors"
	"fmt"
)

// DistanceMetric is the vector distance used by an index.
type DistanceMetric string

// Distances supported by FT.CREATE.
const (
	DistanceCosine DistanceMetric = "COSINE"
	DistanceIP     DistanceMetric = "IP"
	DistanceL2     DistanceMetric = "L2"
)

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

// Field types.
const (
	IndexFieldNumeric IndexFieldType = iota
	IndexFieldTag
	IndexFieldVector
)

// IndexField describes one attribute of a hash-backed FT index.
type IndexField struct {
	Name     string
	Type     IndexFieldType
	Sortable bool

	// TagSeparator splits multi-valued tags; empty means single-valued.
	TagSeparator string

	// HNSW vector options. Vectors are always FLOAT32.
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition is an FT.CREATE ... ON HASH definition.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Field returns the named field, if defined.
func (idx *IndexDefinition) Field(name string) (IndexField, bool) {
	for _, f := range idx.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexField{}, false
}

// Validate checks the definition before it reaches the server.
// Prefixes are mandatory: an unprefixed hash index would cover every key in the database.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !validName(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Prefixes) == 0 {
		return fmt.Errorf("index %s: at least one key prefix is required", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return fmt.Errorf("index %s: at least one field is required", idx.Name)
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("index %s: field %d has no name", idx.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("index %s: duplicate field %s", idx.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		if err := f.validate(); err != nil {
			return fmt.Errorf("index %s: field %s: %w", idx.Name, f.Name, err)
		}
	}
	return nil
}

func (f *IndexField) validate() error {
	switch f.Type {
	case IndexFieldNumeric:
		return nil
	case IndexFieldTag:
		if len(f.TagSeparator) > 1 {
			return fmt.Errorf("tag separator must be a single character, got %q", f.TagSeparator)
		}
		return nil
	case IndexFieldVector:
		if f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
		if f.VectorM < 0 || f.VectorEFConstruct < 0 {
			return errors.New("HNSW parameters must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("unknown field type %d", f.Type)
	}
}

// validName reports whether s matches [a-zA-Z0-9_:-]+.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}
