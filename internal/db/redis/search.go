package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/filter"
)

// scoreAlias names the KNN distance in FT.SEARCH replies.
const scoreAlias = "__vector_score"

// SearchKNN runs a pre-filtered KNN query over one vector attribute.
// Entry scores are cosine similarities clamped to [0,1].
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("knn: index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("knn: vector is required")
	case q.K <= 0:
		return nil, errors.New("knn: k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = db.DefaultVectorField
	}

	knn := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", q.K, field, scoreAlias)
	pre := "*"
	if f := buildFilter(q.Filters); f != "" {
		pre = "(" + f + ")"
	}

	args := []string{q.IndexName, pre + "=>" + knn}
	if len(q.ReturnFields) > 0 {
		args = appendReturn(args, append(append([]string(nil), q.ReturnFields...), scoreAlias))
	}
	args = append(args,
		"SORTBY", scoreAlias, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorBlob(q.Vector),
		"DIALECT", "2",
	)

	entries, total, err := s.search(ctx, q.IndexName, args)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		distance, ok := entries[i].Fields[scoreAlias]
		if !ok {
			continue
		}
		delete(entries[i].Fields, scoreAlias)
		if d, err := strconv.ParseFloat(distance, 64); err == nil {
			entries[i].Score = min(1, max(0, 1-d))
		}
	}
	return &db.SearchResult{Total: total, Entries: entries}, nil
}

// SearchList returns filtered entries, optionally sorted by a SORTABLE attribute.
func (s *Store) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("list: index name is required")
	}
	if q.Limit <= 0 {
		return nil, errors.New("list: limit must be positive")
	}

	expr := buildFilter(q.Filters)
	if expr == "" {
		expr = "*"
	}

	args := []string{q.IndexName, expr}
	if len(q.ReturnFields) > 0 {
		args = appendReturn(args, q.ReturnFields)
	}
	if q.SortBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.SortBy, dir)
	}
	args = append(args, "LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit), "DIALECT", "2")

	entries, total, err := s.search(ctx, q.IndexName, args)
	if err != nil {
		return nil, err
	}
	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func appendReturn(args, fields []string) []string {
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

func (s *Store) search(ctx context.Context, index string, args []string) ([]db.SearchEntry, int, error) {
	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, 0, &db.Error{Op: db.OpSearch, Target: index, Err: err}
	}
	return parseReply(raw)
}

// parseReply decodes the RESP2 layout [total, key1, [f1, v1, ...], key2, ...].
// Malformed pairs are skipped.
func parseReply(raw []rueidis.RedisMessage) ([]db.SearchEntry, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("search reply: total: %w", err)
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: key, Fields: fieldMap(pairs)})
	}
	return entries, int(total), nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, nerr := pairs[j].ToString()
		value, verr := pairs[j+1].ToString()
		if nerr == nil && verr == nil {
			m[name] = value
		}
	}
	return m
}

// buildFilter renders an expression as FT.SEARCH tag clauses joined by AND.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	var b strings.Builder
	write := func(prefix string, cond filter.Condition) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(prefix)
		b.WriteByte('@')
		b.WriteString(cond.Key())
		b.WriteString(":{")
		for i, v := range cond.Values() {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(escapeTag(v))
		}
		b.WriteByte('}')
	}
	for _, cond := range expr.Must() {
		write("", cond)
	}
	for _, cond := range expr.MustNot() {
		write("-", cond)
	}
	return b.String()
}

// escapeTag backslash-escapes every rune the query parser treats as syntax:
// anything that is not a letter, digit or underscore.
func escapeTag(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// vectorBlob encodes v as little-endian FLOAT32, the layout of hash vector fields.
func vectorBlob(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}
