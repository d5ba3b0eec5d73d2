package filter

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/facet-org/facet/pkg/schema"
)

// Spec is the serialized form of a filter. Predicate filters round-trip
// column, predicate, and reference; set filters round-trip their row set and
// name. Both carry id, enabled, and inverted.
type Spec struct {
	ID        string `json:"id,omitempty"`
	Kind      string `json:"kind"`
	Column    string `json:"column,omitempty"`
	Predicate string `json:"predicate,omitempty"`
	Reference any    `json:"reference,omitempty"`
	Rows      []int  `json:"rows,omitempty"`
	Name      string `json:"name,omitempty"`
	Enabled   bool   `json:"enabled"`
	Inverted  bool   `json:"inverted"`
}

// NewSpec returns a Spec with decoding defaults: a filter is enabled unless
// the payload says otherwise. Decode payloads into this value, not into a
// zero Spec.
func NewSpec() Spec {
	return Spec{Enabled: true}
}

// ColumnResolver resolves a column key against the current schema.
type ColumnResolver func(key string) (schema.Column, bool)

// ToSpec captures a filter as its serialized form.
func ToSpec(f Filter) (Spec, error) {
	switch t := f.(type) {
	case *PredicateFilter:
		return Spec{
			ID:        t.ID(),
			Kind:      KindPredicate,
			Column:    t.Column(),
			Predicate: t.Predicate(),
			Reference: t.Reference(),
			Enabled:   t.Enabled(),
			Inverted:  t.Inverted(),
		}, nil
	case *SetFilter:
		return Spec{
			ID:       t.ID(),
			Kind:     KindSet,
			Rows:     t.Rows(),
			Name:     t.Name(),
			Enabled:  t.Enabled(),
			Inverted: t.Inverted(),
		}, nil
	default:
		return Spec{}, fmt.Errorf("unsupported filter type %T", f)
	}
}

// FromSpec reconstructs a filter from its serialized form. Predicate filters
// resolve their column through the resolver and recompile string matchers;
// a degraded regular expression surfaces through Warning on the rebuilt
// filter, exactly as at first construction.
func FromSpec(s Spec, resolve ColumnResolver) (Filter, error) {
	switch s.Kind {
	case KindPredicate:
		if resolve == nil {
			return nil, fmt.Errorf("predicate filter spec requires a column resolver")
		}
		col, ok := resolve(s.Column)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", s.Column)
		}
		f, err := NewPredicateFilter(col, s.Predicate, s.Reference)
		if err != nil {
			return nil, err
		}
		if s.ID != "" {
			f.id = s.ID
		}
		f.enabled = s.Enabled
		f.inverted = s.Inverted
		return f, nil

	case KindSet:
		f := NewSetFilter(s.Rows, s.Name)
		if s.ID != "" {
			f.id = s.ID
		}
		f.enabled = s.Enabled
		f.inverted = s.Inverted
		return f, nil

	default:
		return nil, fmt.Errorf("unknown filter kind %q", s.Kind)
	}
}

// Encode serializes a filter to JSON.
func Encode(f Filter) ([]byte, error) {
	spec, err := ToSpec(f)
	if err != nil {
		return nil, err
	}
	return json.Marshal(spec)
}

// Decode deserializes a filter from JSON.
func Decode(data []byte, resolve ColumnResolver) (Filter, error) {
	spec := NewSpec()
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode filter spec: %w", err)
	}
	return FromSpec(spec, resolve)
}
