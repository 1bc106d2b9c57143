package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/hybridrank/internal/db"
)

// CreateIndex issues FT.CREATE for def. An existing index yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err //nolint:wrapcheck // validation errors are self-describing
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(createArgs(def)...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if serverErrorContains(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Target: def.Name, Err: err}
	}
	return nil
}

// IndexExists probes FT.INFO; an "unknown index" reply means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	err := s.do(ctx, cmd).Error()
	switch {
	case err == nil:
		return true, nil
	case serverErrorContains(err, "unknown index name"), serverErrorContains(err, "no such index"):
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexInfo, Target: name, Err: err}
	}
}

// createArgs renders a validated definition as FT.CREATE arguments.
func createArgs(def *db.IndexDefinition) []string {
	args := []string{def.Name, "ON", "HASH", "PREFIX", strconv.Itoa(len(def.Prefixes))}
	args = append(args, def.Prefixes...)
	args = append(args, "SCHEMA")
	for i := range def.Fields {
		args = append(args, fieldArgs(&def.Fields[i])...)
	}
	return args
}

func fieldArgs(f *db.IndexField) []string {
	switch f.Type {
	case db.IndexFieldVector:
		return append([]string{f.Name}, vectorArgs(f)...)
	case db.IndexFieldTag:
		out := []string{f.Name, "TAG"}
		if f.TagSeparator != "" {
			out = append(out, "SEPARATOR", f.TagSeparator)
		}
		return sortable(out, f)
	default:
		return sortable([]string{f.Name, "NUMERIC"}, f)
	}
}

func sortable(args []string, f *db.IndexField) []string {
	if f.Sortable {
		return append(args, "SORTABLE")
	}
	return args
}

// vectorArgs renders VECTOR HNSW {nargs} TYPE FLOAT32 DIM d DISTANCE_METRIC m [M x] [EF_CONSTRUCTION y].
func vectorArgs(f *db.IndexField) []string {
	distance := f.VectorDistance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(distance),
	}
	if f.VectorM > 0 {
		attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
	}
	if f.VectorEFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
	}

	return append([]string{"VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...)
}
