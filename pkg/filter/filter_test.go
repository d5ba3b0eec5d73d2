package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/schema"
)

type fakeLookup map[string]coldata.Data

func (l fakeLookup) Data(key string) (coldata.Data, bool) {
	d, ok := l[key]
	return d, ok
}

func floatColumn(key string) schema.Column {
	return schema.Column{Key: key, Name: key, Type: schema.DType{Kind: schema.KindFloat}}
}

func stringColumn(key string) schema.Column {
	return schema.Column{Key: key, Name: key, Type: schema.DType{Kind: schema.KindString}}
}

func TestPredicateFilterNumeric(t *testing.T) {
	data := fakeLookup{
		"age": coldata.NewFloatData([]float64{10, 20, 30, 40, math.NaN()}),
	}

	f, err := NewPredicateFilter(floatColumn("age"), "greater", 25.0)
	require.NoError(t, err)
	assert.NoError(t, f.Warning())

	got := make([]bool, 5)
	for row := range got {
		got[row] = f.Apply(row, data)
	}
	assert.Equal(t, []bool{false, false, true, true, false}, got)

	// Equality against NaN is a missing-value test.
	f, err = NewPredicateFilter(floatColumn("age"), "equal", math.NaN())
	require.NoError(t, err)
	for row := 0; row < 4; row++ {
		assert.False(t, f.Apply(row, data), "row %d", row)
	}
	assert.True(t, f.Apply(4, data))
}

func TestPredicateFilterNilReference(t *testing.T) {
	data := fakeLookup{
		"age": coldata.NewFloatData([]float64{1, math.NaN()}),
	}

	// A nil reference defaults to the kind's null value; for floats that is
	// NaN, making the filter a missing-value test.
	f, err := NewPredicateFilter(floatColumn("age"), "equal", nil)
	require.NoError(t, err)
	assert.False(t, f.Apply(0, data))
	assert.True(t, f.Apply(1, data))
}

func TestPredicateFilterFailsClosed(t *testing.T) {
	data := fakeLookup{
		"age": coldata.NewFloatData([]float64{10, 20}),
	}

	f, err := NewPredicateFilter(floatColumn("gone"), "equal", 10.0)
	require.NoError(t, err)
	assert.False(t, f.Apply(0, data))
	assert.False(t, f.Apply(1, data))

	f, err = NewPredicateFilter(floatColumn("age"), "equal", 10.0)
	require.NoError(t, err)
	assert.False(t, f.Apply(-1, data))
	assert.False(t, f.Apply(2, data))
}

func TestPredicateFilterUnknownPredicate(t *testing.T) {
	_, err := NewPredicateFilter(floatColumn("age"), "matches", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not applicable")

	_, err = NewPredicateFilter(
		schema.Column{Key: "w", Type: schema.DType{Kind: schema.KindWindow}}, "equal", nil,
	)
	assert.Error(t, err)
}

func TestPredicateFilterStringRegex(t *testing.T) {
	data := fakeLookup{
		"name": coldata.NewStringData([]string{"cat", "dog", "catalog"}, []bool{true, true, true}),
	}

	f, err := NewPredicateFilter(stringColumn("name"), "equal", "cat|dog")
	require.NoError(t, err)
	assert.NoError(t, f.Warning())
	assert.True(t, f.Apply(0, data))
	assert.True(t, f.Apply(1, data))
	assert.False(t, f.Apply(2, data))

	f, err = NewPredicateFilter(stringColumn("name"), "unequal", "cat")
	require.NoError(t, err)
	assert.False(t, f.Apply(0, data))
	assert.True(t, f.Apply(1, data))
	assert.True(t, f.Apply(2, data))
}

func TestPredicateFilterDegradedRegex(t *testing.T) {
	data := fakeLookup{
		"name": coldata.NewStringData([]string{"a[bad", "clean"}, nil),
	}

	f, err := NewPredicateFilter(stringColumn("name"), "equal", "[bad")
	require.NoError(t, err)
	require.Error(t, f.Warning())

	// Degraded matching is literal containment.
	assert.True(t, f.Apply(0, data))
	assert.False(t, f.Apply(1, data))
}

func TestPredicateFilterMissingStringValue(t *testing.T) {
	data := fakeLookup{
		"name": coldata.NewStringData([]string{"cat", ""}, []bool{true, false}),
	}

	f, err := NewPredicateFilter(stringColumn("name"), "equal", "cat")
	require.NoError(t, err)
	assert.True(t, f.Apply(0, data))
	assert.False(t, f.Apply(1, data))

	f, err = NewPredicateFilter(stringColumn("name"), "unequal", "cat")
	require.NoError(t, err)
	assert.True(t, f.Apply(1, data))
}

func TestPredicateFilterCategoryLabels(t *testing.T) {
	m := schema.NewCategoryMap([]string{"car", "truck"})
	data := fakeLookup{
		"vehicle": coldata.NewCategoryData([]int32{0, 1, -1}, m),
	}
	col := schema.Column{Key: "vehicle", Type: schema.DType{Kind: schema.KindCategory, Categories: m}}

	f, err := NewPredicateFilter(col, "equal", "car")
	require.NoError(t, err)
	assert.True(t, f.Apply(0, data))
	assert.False(t, f.Apply(1, data))
	assert.False(t, f.Apply(2, data))
}

func TestSetFilterMembership(t *testing.T) {
	f := NewSetFilter([]int{3, 1, 3}, "picks")
	assert.Equal(t, "picks", f.Name())
	assert.Equal(t, []int{1, 3}, f.Rows())

	assert.True(t, f.Apply(1, nil))
	assert.True(t, f.Apply(3, nil))
	assert.False(t, f.Apply(0, nil))
	assert.False(t, f.Apply(99, nil))
}

func TestSetFilterFromMaskRoundTrip(t *testing.T) {
	mask := []bool{true, false, true, false, false}
	f := SetFilterFromMask(mask, "frozen")

	for row, want := range mask {
		assert.Equal(t, want, f.Apply(row, nil), "row %d", row)
	}
	assert.Equal(t, []int{0, 2}, f.Rows())
}

func TestFilterFlagsAndIdentity(t *testing.T) {
	a := NewSetFilter(nil, "a")
	b := NewSetFilter(nil, "b")

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	assert.True(t, a.Enabled())
	assert.False(t, a.Inverted())
	a.SetEnabled(false)
	a.SetInverted(true)
	assert.False(t, a.Enabled())
	assert.True(t, a.Inverted())
}

func TestSpecRoundTripPredicate(t *testing.T) {
	f, err := NewPredicateFilter(floatColumn("age"), "lesserOrEqual", 25.0)
	require.NoError(t, err)
	f.SetInverted(true)

	raw, err := Encode(f)
	require.NoError(t, err)

	resolve := func(key string) (schema.Column, bool) {
		if key == "age" {
			return floatColumn("age"), true
		}
		return schema.Column{}, false
	}
	restored, err := Decode(raw, resolve)
	require.NoError(t, err)

	pf, ok := restored.(*PredicateFilter)
	require.True(t, ok)
	assert.Equal(t, f.ID(), pf.ID())
	assert.Equal(t, "age", pf.Column())
	assert.Equal(t, "lesserOrEqual", pf.Predicate())
	assert.Equal(t, 25.0, pf.Reference())
	assert.True(t, pf.Enabled())
	assert.True(t, pf.Inverted())

	data := fakeLookup{"age": coldata.NewFloatData([]float64{10, 30})}
	assert.Equal(t, f.Apply(0, data), pf.Apply(0, data))
	assert.Equal(t, f.Apply(1, data), pf.Apply(1, data))
}

func TestSpecRoundTripSet(t *testing.T) {
	f := NewSetFilter([]int{0, 2, 5}, "frozen selection")
	f.SetEnabled(false)

	raw, err := Encode(f)
	require.NoError(t, err)

	restored, err := Decode(raw, nil)
	require.NoError(t, err)

	sf, ok := restored.(*SetFilter)
	require.True(t, ok)
	assert.Equal(t, f.ID(), sf.ID())
	assert.Equal(t, []int{0, 2, 5}, sf.Rows())
	assert.Equal(t, "frozen selection", sf.Name())
	assert.False(t, sf.Enabled())
}

func TestDecodeDefaultsToEnabled(t *testing.T) {
	raw := []byte(`{"kind":"set","rows":[1],"name":"n"}`)
	f, err := Decode(raw, nil)
	require.NoError(t, err)
	assert.True(t, f.Enabled())
	assert.False(t, f.Inverted())
	assert.NotEmpty(t, f.ID())
}

func TestFromSpecErrors(t *testing.T) {
	_, err := FromSpec(Spec{Kind: "bogus"}, nil)
	assert.Error(t, err)

	_, err = FromSpec(Spec{Kind: KindPredicate, Column: "gone", Predicate: "equal"}, func(string) (schema.Column, bool) {
		return schema.Column{}, false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")

	_, err = FromSpec(Spec{Kind: KindPredicate, Column: "x", Predicate: "equal"}, nil)
	assert.Error(t, err)
}
