// Package query implements the list pipeline shared by all list routes:
// substring filtering, stable field-based sorting and offset-bounded pagination.
package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Accessor returns the value of one named field of an entity.
type Accessor[E any] func(entity E) any

// Schema describes the fields of one entity kind that can be used by the pipeline.
type Schema[E any] struct {
	// Fields maps a field name to its accessor. Unknown names sort as equal.
	Fields map[string]Accessor[E]
	// Searchable lists the string fields matched by the free-text query.
	Searchable []func(entity E) string
}

// Result is a page of entities together with the number of entities that matched before pagination.
type Result[E any] struct {
	Items []E
	Total int
}

// Apply filters, sorts and paginates the entities according to params.
// The passed slice is not modified.
func Apply[E any](entities []E, params Params, schema Schema[E]) Result[E] {
	filtered := Filter(entities, params.Q, schema)
	Sort(filtered, params.Sort, params.Order, schema)
	page, total := Paginate(filtered, params.Start, params.End)
	return Result[E]{Items: page, Total: total}
}

// Filter returns a new slice with the entities that contain q in at least one searchable field.
// Matching is case-insensitive. An empty q keeps all entities.
func Filter[E any](entities []E, q string, schema Schema[E]) []E {
	if q == "" {
		return slices.Clone(entities)
	}

	fold := cases.Fold()
	needle := fold.String(q)
	result := make([]E, 0, len(entities))
	for _, entity := range entities {
		for _, field := range schema.Searchable {
			if strings.Contains(fold.String(field(entity)), needle) {
				result = append(result, entity)
				break
			}
		}
	}
	return result
}

// Sort sorts the entities in place by the named field.
// The sort is stable in both directions: entities with equal keys keep their relative order.
func Sort[E any](entities []E, field string, order Order, schema Schema[E]) {
	if field == "" {
		return
	}
	accessor, ok := schema.Fields[field]
	if !ok {
		return
	}

	slices.SortStableFunc(entities, func(a, b E) int {
		result := Compare(accessor(a), accessor(b))
		if order == Descending {
			return -result
		}
		return result
	})
}

// Paginate returns the sub-slice [start, end) clamped to the bounds of the entities and the number of entities.
// Negative bounds are treated as zero. A start behind end yields an empty page.
func Paginate[E any](entities []E, start, end int) ([]E, int) {
	total := len(entities)
	start = min(max(start, 0), total)
	end = min(max(end, start), total)
	return entities[start:end], total
}

// Compare compares two field values. It handles strings, integers, floats, booleans, times and string slices.
// Values of different or unknown types fall back to comparing their string representation,
// nil is smaller than everything else.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return cmp.Compare(va, vb)
		}
	case int:
		if vb, ok := b.(int); ok {
			return cmp.Compare(va, vb)
		}
	case int64:
		if vb, ok := b.(int64); ok {
			return cmp.Compare(va, vb)
		}
	case float64:
		if vb, ok := b.(float64); ok {
			return cmp.Compare(va, vb)
		}
	case bool:
		if vb, ok := b.(bool); ok {
			return compareBools(va, vb)
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb)
		}
	case []string:
		if vb, ok := b.([]string); ok {
			return slices.Compare(va, vb)
		}
	}

	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
