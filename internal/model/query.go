package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Op is a comparison operator usable in a query filter.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Predicate compares one document field against a value.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Order sorts query results on a single field.
type Order struct {
	Field      string
	Descending bool
}

// Query is the portable query shape both backends understand.
// A zero Limit means no limit.
type Query struct {
	Filters []Predicate
	Sort    *Order
	Limit   int
}

// Validate rejects unknown operators.
func (q Query) Validate() error {
	for _, p := range q.Filters {
		switch p.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("unsupported operator %q on field %q", p.Op, p.Field)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// Apply evaluates q against docs in process: filter, then stable sort, then
// limit. Used by backends without a native query engine.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	if q.Sort != nil {
		field, desc := q.Sort.Field, q.Sort.Descending
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].Value(field)
			b, _ := out[j].Value(field)
			c, err := Compare(a, b)
			if err != nil {
				return false
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Matches reports whether d satisfies every filter. A missing field or an
// incomparable value never matches, except under OpNe.
func (q Query) Matches(d Document) bool {
	for _, p := range q.Filters {
		v, ok := d.Value(p.Field)
		if !ok || v == nil {
			if p.Op == OpNe {
				continue
			}
			return false
		}
		c, err := Compare(v, p.Value)
		if err != nil {
			if p.Op == OpNe {
				continue
			}
			return false
		}
		if !p.Op.holds(c) {
			return false
		}
	}
	return true
}

func (o Op) holds(c int) bool {
	switch o {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// Compare orders two loosely typed values. Times compare as times, numbers
// as float64, booleans false<true, everything else as strings.
func Compare(a, b any) (int, error) {
	switch a.(type) {
	case time.Time:
		return compareTimes(a, b)
	}
	switch b.(type) {
	case time.Time:
		return compareTimes(a, b)
	}
	if isNumber(a) || isNumber(b) {
		x, err := cast.ToFloat64E(a)
		if err != nil {
			return 0, err
		}
		y, err := cast.ToFloat64E(b)
		if err != nil {
			return 0, err
		}
		return cmp(x < y, x > y), nil
	}
	if ab, ok := a.(bool); ok {
		bb, err := cast.ToBoolE(b)
		if err != nil {
			return 0, err
		}
		return cmp(!ab && bb, ab && !bb), nil
	}
	x, err := cast.ToStringE(a)
	if err != nil {
		return 0, err
	}
	y, err := cast.ToStringE(b)
	if err != nil {
		return 0, err
	}
	return strings.Compare(x, y), nil
}

func compareTimes(a, b any) (int, error) {
	x, err := cast.ToTimeE(a)
	if err != nil {
		return 0, err
	}
	y, err := cast.ToTimeE(b)
	if err != nil {
		return 0, err
	}
	return x.Compare(y), nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
