package item

import (
	"strconv"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

// HNSW parameters for both vector fields.
const (
	hnswM           = 16
	hnswEFConstruct = 200
)

// IndexName returns the FT index name for a content kind.
func IndexName(prefix string, kind content.Kind) string {
	return prefix + string(kind) + ":idx"
}

// KeyPrefix returns the hash key prefix of a content kind.
func KeyPrefix(prefix string, kind content.Kind) string {
	return prefix + "item:" + string(kind) + ":"
}

// Key returns the hash key of one item.
func Key(prefix string, kind content.Kind, id int64) string {
	return KeyPrefix(prefix, kind) + strconv.FormatInt(id, 10)
}

// IndexDefinition builds the schema shared by knowledge and procedure indexes.
func IndexDefinition(prefix string, kind content.Kind, dims int) (*db.IndexDefinition, error) {
	return db.NewIndex(IndexName(prefix, kind)).
		Prefix(KeyPrefix(prefix, kind)).
		Tag(content.FieldScope).
		Tag(content.FieldTenant).
		TagList(content.FieldBusinessTypes, listSeparator).
		TagList(content.FieldRoles, listSeparator).
		Tag(content.FieldHasKeywords).
		Tag(content.FieldActive).
		Tag(content.FieldGroup).
		Numeric(content.FieldPriority, true).
		VectorHNSW(content.FieldPrimary, dims, db.DistanceCosine, hnswM, hnswEFConstruct).
		VectorHNSW(content.FieldFallback, dims, db.DistanceCosine, hnswM, hnswEFConstruct).
		Build()
}
