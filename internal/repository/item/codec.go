package item

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

const listSeparator = ","

// metaFields are returned by vector and keyword queries; vectors are left out.
var metaFields = []string{
	content.FieldID, content.FieldScope, content.FieldTenant,
	content.FieldBusinessTypes, content.FieldRoles, content.FieldKeywords,
	content.FieldIntents, content.FieldGroup, content.FieldActive,
	content.FieldPriority, content.FieldTitle, content.FieldContent,
}

// decode rebuilds an item from hash fields. Vectors are decoded when present.
func decode(kind content.Kind, fields map[string]string) (*content.Item, error) {
	id, err := strconv.ParseInt(fields[content.FieldID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("item id %q: %w", fields[content.FieldID], err)
	}

	scope, err := content.ParseScope(fields[content.FieldScope])
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}

	it := &content.Item{
		ID:            id,
		Kind:          kind,
		Scope:         scope,
		BusinessTypes: parseTagList(fields[content.FieldBusinessTypes]),
		UserRoles:     parseTagList(fields[content.FieldRoles]),
		Active:        fields[content.FieldActive] == content.TagTrue,
		Title:         fields[content.FieldTitle],
		Content:       fields[content.FieldContent],
	}

	if t := fields[content.FieldTenant]; t != "" && t != content.TagGlobal {
		if it.TenantID, err = strconv.ParseInt(t, 10, 64); err != nil {
			return nil, fmt.Errorf("item %d tenant %q: %w", id, t, err)
		}
	}
	if g := fields[content.FieldGroup]; g != "" {
		if it.GroupID, err = strconv.ParseInt(g, 10, 64); err != nil {
			return nil, fmt.Errorf("item %d group %q: %w", id, g, err)
		}
	}
	if p := fields[content.FieldPriority]; p != "" {
		if it.Priority, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("item %d priority %q: %w", id, p, err)
		}
	}
	if kw := fields[content.FieldKeywords]; kw != "" {
		if err := json.Unmarshal([]byte(kw), &it.Keywords); err != nil {
			return nil, fmt.Errorf("item %d keywords: %w", id, err)
		}
	}
	if it.IntentIDs, err = parseIntList(fields[content.FieldIntents]); err != nil {
		return nil, fmt.Errorf("item %d intents: %w", id, err)
	}
	if it.Primary, err = parseVector(fields[content.FieldPrimary]); err != nil {
		return nil, fmt.Errorf("item %d primary: %w", id, err)
	}
	if it.Fallback, err = parseVector(fields[content.FieldFallback]); err != nil {
		return nil, fmt.Errorf("item %d fallback: %w", id, err)
	}

	return it, nil
}

func parseTagList(s string) []string {
	if s == "" || s == content.TagAny {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, listSeparator) {
		if v = strings.TrimSpace(v); v != "" && v != content.TagAny {
			out = append(out, v)
		}
	}
	return out
}

func parseIntList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, listSeparator)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes", len(s))
	}
	v := make([]float32, len(s)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return v, nil
}
