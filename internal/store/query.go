package store

import (
	"sort"
	"strings"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// Accessors expose family-specific fields to the query engine. Nil funcs
// disable the corresponding predicate for that family.
type Accessors[T any] struct {
	// Text is the designated text field for substring filtering
	// (pattern name, contract endpoint, constraint name).
	Text func(T) string
	// Confidence returns the entity's confidence score.
	Confidence func(T) float64
	// Method returns the contract method; nil for other families.
	Method func(T) string
	// Mismatches returns the contract mismatch count; nil elsewhere.
	Mismatches func(T) int
	// Compare orders two entities by a named sort field. It returns a
	// negative, zero, or positive value, and zero for unknown fields.
	Compare func(a, b T, field string) int
}

// Filter holds conjunctive predicates: every supplied predicate must match.
type Filter struct {
	IDs           []string
	Statuses      []drift.Status
	Categories    []drift.Category
	Methods       []string
	Text          string
	MinConfidence float64
	MinMismatches int
	HasMismatches bool
}

// Sort names a sortable field and a direction.
type Sort struct {
	Field string
	Desc  bool
}

// Page is offset+limit pagination over the filtered, sorted result.
type Page struct {
	Offset int
	Limit  int
}

// Query combines filtering, sorting, and pagination.
type Query struct {
	Filter Filter
	Sort   Sort
	Page   Page
}

// Result is one page of query output. Total counts all matches before
// pagination; HasMore reports whether later pages exist.
type Result[T any] struct {
	Items   []T
	Total   int
	HasMore bool
}

// Query filters, sorts, and paginates the store's entities, returning
// copies.
func (s *Store[T]) Query(q Query) Result[T] {
	items := s.All()
	acc := s.opts.Accessors

	filtered := items[:0]
	for _, ent := range items {
		if matches(ent, q.Filter, acc) {
			filtered = append(filtered, ent)
		}
	}

	if q.Sort.Field != "" && acc.Compare != nil {
		sort.SliceStable(filtered, func(i, j int) bool {
			c := acc.Compare(filtered[i], filtered[j], q.Sort.Field)
			if q.Sort.Desc {
				return c > 0
			}
			return c < 0
		})
	} else {
		filtered = sortByKey(filtered)
	}

	total := len(filtered)
	offset, limit := q.Page.Offset, q.Page.Limit
	if offset > total {
		offset = total
	}
	end := total
	hasMore := false
	if limit > 0 {
		hasMore = offset+limit < total
		if offset+limit < end {
			end = offset + limit
		}
	}
	return Result[T]{
		Items:   filtered[offset:end],
		Total:   total,
		HasMore: hasMore,
	}
}

func matches[T drift.Record[T]](ent T, f Filter, acc Accessors[T]) bool {
	status, category := ent.Partition()
	if len(f.IDs) > 0 && !containsString(f.IDs, ent.Key()) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, status) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, category) {
		return false
	}
	if len(f.Methods) > 0 {
		if acc.Method == nil || !containsString(f.Methods, acc.Method(ent)) {
			return false
		}
	}
	if f.Text != "" {
		if acc.Text == nil || !strings.Contains(strings.ToLower(acc.Text(ent)), strings.ToLower(f.Text)) {
			return false
		}
	}
	if f.MinConfidence > 0 {
		if acc.Confidence == nil || acc.Confidence(ent) < f.MinConfidence {
			return false
		}
	}
	if f.MinMismatches > 0 {
		if acc.Mismatches == nil || acc.Mismatches(ent) < f.MinMismatches {
			return false
		}
	}
	if f.HasMismatches {
		if acc.Mismatches == nil || acc.Mismatches(ent) == 0 {
			return false
		}
	}
	return true
}

// sortByKey orders entities by id so output is deterministic.
func sortByKey[T drift.Record[T]](items []T) []T {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key() < items[j].Key()
	})
	return items
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsStatus(list []drift.Status, v drift.Status) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsCategory(list []drift.Category, v drift.Category) bool {
	for _, c := range list {
		if c == v {
			return true
		}
	}
	return false
}
