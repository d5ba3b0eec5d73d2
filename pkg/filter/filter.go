// Package filter implements the row filters of the dataset store: value
// predicate filters and explicit row-set filters. Filters carry a stable
// generated ID, an enabled flag, and an inverted flag; the store combines
// them by AND after applying each filter's own inversion.
package filter

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/predicate"
	"github.com/facet-org/facet/pkg/schema"
)

// Filter kind tags, stable across serialization.
const (
	KindPredicate = "predicate"
	KindSet       = "set"
)

// ColumnLookup is the minimal read surface a filter evaluates against.
type ColumnLookup interface {
	// Data returns the column data for a key, or false if the column does
	// not exist.
	Data(key string) (coldata.Data, bool)
}

// Filter is a predicate over rows. Apply reports the raw verdict without
// inversion; the caller owns the inverted/enabled combination semantics.
type Filter interface {
	// ID returns the stable identity of the filter.
	ID() string

	// Kind returns the filter kind tag.
	Kind() string

	// Enabled reports whether the filter participates in combination.
	Enabled() bool

	// SetEnabled toggles participation.
	SetEnabled(enabled bool)

	// Inverted reports whether the filter's verdict is negated during
	// combination.
	Inverted() bool

	// SetInverted toggles inversion.
	SetInverted(inverted bool)

	// Apply evaluates the filter for one row. A filter referencing a
	// column that no longer exists fails closed: it returns false for
	// every row.
	Apply(row int, data ColumnLookup) bool
}

type common struct {
	id       string
	enabled  bool
	inverted bool
}

func (c *common) ID() string                { return c.id }
func (c *common) Enabled() bool             { return c.enabled }
func (c *common) SetEnabled(enabled bool)   { c.enabled = enabled }
func (c *common) Inverted() bool            { return c.inverted }
func (c *common) SetInverted(inverted bool) { c.inverted = inverted }

func newCommon() common {
	return common{id: uuid.NewString(), enabled: true}
}

// PredicateFilter matches rows whose value in one column satisfies a
// predicate against a reference value.
type PredicateFilter struct {
	common
	column        string
	kind          schema.Kind
	predicateName string
	reference     any
	compare       func(value, reference any) bool
	warning       error
}

// NewPredicateFilter builds a filter over the given column. A nil reference
// defaults to the kind's canonical null value, turning the filter into a
// presence test. For string-like columns the reference is compiled once as
// a regular expression; an invalid pattern is not fatal. The filter
// degrades to literal containment and Warning reports the compile error.
func NewPredicateFilter(column schema.Column, predicateName string, reference any) (*PredicateFilter, error) {
	kind := column.Kind()
	p, ok := predicate.Lookup(kind, predicateName)
	if !ok {
		return nil, fmt.Errorf("predicate %q is not applicable to %s column %q", predicateName, kind, column.Key)
	}

	if reference == nil {
		reference = kind.NullValue()
	}

	f := &PredicateFilter{
		common:        newCommon(),
		column:        column.Key,
		kind:          kind,
		predicateName: predicateName,
		reference:     reference,
		compare:       p.Compare,
	}

	if ref, ok := reference.(string); ok && (kind == schema.KindString || kind == schema.KindCategory) {
		matcher, warn := predicate.CompileMatcher(ref)
		f.warning = warn
		negate := predicateName == "unequal"
		f.compare = func(value, _ any) bool {
			s, ok := value.(string)
			if !ok {
				return value == nil && negate
			}
			if negate {
				return !matcher(s)
			}
			return matcher(s)
		}
	}

	return f, nil
}

// Kind implements Filter.
func (f *PredicateFilter) Kind() string { return KindPredicate }

// Column returns the key of the filtered column.
func (f *PredicateFilter) Column() string { return f.column }

// Predicate returns the name of the applied predicate.
func (f *PredicateFilter) Predicate() string { return f.predicateName }

// Reference returns the reference value rows are compared against.
func (f *PredicateFilter) Reference() any { return f.reference }

// Warning returns the non-fatal construction warning, if any. Currently the
// only source is an invalid regular expression in the reference value.
func (f *PredicateFilter) Warning() error { return f.warning }

// Apply implements Filter.
func (f *PredicateFilter) Apply(row int, data ColumnLookup) bool {
	d, ok := data.Data(f.column)
	if !ok || row < 0 || row >= d.Len() {
		return false
	}
	return f.compare(d.Value(row), f.reference)
}

// SetFilter matches an explicit set of row indices.
type SetFilter struct {
	common
	name string
	rows map[int]struct{}
}

// NewSetFilter builds a filter over an explicit list of row indices.
func NewSetFilter(rows []int, name string) *SetFilter {
	set := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		set[row] = struct{}{}
	}
	return &SetFilter{common: newCommon(), name: name, rows: set}
}

// SetFilterFromMask builds a set filter from a boolean mask over all rows,
// freezing the mask into a durable named filter.
func SetFilterFromMask(mask []bool, name string) *SetFilter {
	var rows []int
	for row, in := range mask {
		if in {
			rows = append(rows, row)
		}
	}
	return NewSetFilter(rows, name)
}

// Kind implements Filter.
func (f *SetFilter) Kind() string { return KindSet }

// Name returns the display name of the filter.
func (f *SetFilter) Name() string { return f.name }

// Rows returns the sorted member row indices.
func (f *SetFilter) Rows() []int {
	rows := make([]int, 0, len(f.rows))
	for row := range f.rows {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	return rows
}

// Apply implements Filter.
func (f *SetFilter) Apply(row int, _ ColumnLookup) bool {
	_, ok := f.rows[row]
	return ok
}
