package qdrantindex

import (
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kailas-cloud/hybridrank/internal/domain/content"
)

// decodePayload rebuilds an item from point payload. Tag fields use the same
// sentinels as the Redis index so one audience filter serves both backends.
func decodePayload(kind content.Kind, p map[string]*qdrant.Value) (*content.Item, error) {
	id, err := intValue(p[content.FieldID])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}

	scope, err := content.ParseScope(stringValue(p[content.FieldScope]))
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}

	it := &content.Item{
		ID:            id,
		Kind:          kind,
		Scope:         scope,
		BusinessTypes: tagValues(p[content.FieldBusinessTypes]),
		UserRoles:     tagValues(p[content.FieldRoles]),
		Keywords:      tagValues(p[content.FieldKeywords]),
		Active:        stringValue(p[content.FieldActive]) == content.TagTrue,
		Title:         stringValue(p[content.FieldTitle]),
		Content:       stringValue(p[content.FieldContent]),
	}

	if t := stringValue(p[content.FieldTenant]); t != "" && t != content.TagGlobal {
		if it.TenantID, err = strconv.ParseInt(t, 10, 64); err != nil {
			return nil, fmt.Errorf("item %d tenant %q: %w", id, t, err)
		}
	}
	if v, ok := p[content.FieldGroup]; ok {
		if it.GroupID, err = intValue(v); err != nil {
			return nil, fmt.Errorf("item %d group: %w", id, err)
		}
	}
	if v, ok := p[content.FieldPriority]; ok {
		prio, err := intValue(v)
		if err != nil {
			return nil, fmt.Errorf("item %d priority: %w", id, err)
		}
		it.Priority = int(prio)
	}
	for _, v := range p[content.FieldIntents].GetListValue().GetValues() {
		intentID, err := intValue(v)
		if err != nil {
			return nil, fmt.Errorf("item %d intents: %w", id, err)
		}
		it.IntentIDs = append(it.IntentIDs, intentID)
	}

	return it, nil
}

func stringValue(v *qdrant.Value) string {
	if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
		return s.StringValue
	}
	return ""
}

// tagValues reads a string list, dropping the TagAny sentinel.
func tagValues(v *qdrant.Value) []string {
	var out []string
	for _, e := range v.GetListValue().GetValues() {
		if s := stringValue(e); s != "" && s != content.TagAny {
			out = append(out, s)
		}
	}
	return out
}

// intValue accepts integer, whole double and numeric string payloads.
func intValue(v *qdrant.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue, nil
	case *qdrant.Value_DoubleValue:
		if k.DoubleValue != float64(int64(k.DoubleValue)) {
			return 0, fmt.Errorf("non-integer %v", k.DoubleValue)
		}
		return int64(k.DoubleValue), nil
	case *qdrant.Value_StringValue:
		return strconv.ParseInt(k.StringValue, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected payload value %T", k)
	}
}
