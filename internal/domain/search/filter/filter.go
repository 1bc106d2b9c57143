// Package filter describes tag pre-filters pushed down to the indexes.
package filter

import (
	"fmt"
	"slices"
)

// MaxConditions is the maximum number of conditions per filter group.
const MaxConditions = 16

// Expression is a conjunction of tag conditions with optional negations.
type Expression struct {
	must    []Condition
	mustNot []Condition
}

// NewExpression validates and creates an Expression.
func NewExpression(must, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditions)
	}
	if len(mustNot) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditions)
	}
	return Expression{must: must, mustNot: mustNot}, nil
}

// Must returns the conditions every hit satisfies.
func (e Expression) Must() []Condition { return e.must }

// MustNot returns the conditions no hit satisfies.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.mustNot) == 0
}

// And returns a copy of e with c appended to the must group.
func (e Expression) And(c Condition) Expression {
	return Expression{must: append(slices.Clone(e.must), c), mustNot: e.mustNot}
}

// Condition matches a tag field against one or more values (logical OR).
type Condition struct {
	key    string
	values []string
}

// NewMatchAny creates a condition satisfied when the field holds any of values.
func NewMatchAny(key string, values ...string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	for _, v := range values {
		if v == "" {
			return Condition{}, fmt.Errorf("empty match value for key %q", key)
		}
	}
	return Condition{key: key, values: slices.Clone(values)}, nil
}

// MustMatchAny is NewMatchAny for values built by the caller; it panics on invalid input.
func MustMatchAny(key string, values ...string) Condition {
	c, err := NewMatchAny(key, values...)
	if err != nil {
		panic(err)
	}
	return c
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Values returns the accepted values.
func (c Condition) Values() []string { return c.values }

// Accepts reports whether any of fieldValues satisfies the condition.
func (c Condition) Accepts(fieldValues []string) bool {
	for _, v := range fieldValues {
		if slices.Contains(c.values, v) {
			return true
		}
	}
	return false
}
