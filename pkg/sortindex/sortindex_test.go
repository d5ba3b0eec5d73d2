package sortindex

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

func fullIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestZeroKeysPreservesOrder(t *testing.T) {
	data := fakeLookup{"age": coldata.NewFloatData([]float64{3, 1, 2})}

	m := Build(data, 3, []int{2, 0, 1}, nil)
	assert.Equal(t, []int{2, 0, 1}, m.Order())

	m = Identity(3, fullIndices(3))
	assert.Equal(t, []int{0, 1, 2}, m.Order())
}

func TestAscendingRanksMissingLast(t *testing.T) {
	data := fakeLookup{"age": coldata.NewFloatData([]float64{10, 20, 30, 40, math.NaN()})}

	m := Build(data, 5, fullIndices(5), []Key{{Column: "age"}})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, m.Order())
}

func TestDescendingIsExactMirror(t *testing.T) {
	data := fakeLookup{"age": coldata.NewFloatData([]float64{10, 20, 30, 40, math.NaN()})}

	asc := Build(data, 5, fullIndices(5), []Key{{Column: "age", Direction: Ascending}})
	desc := Build(data, 5, fullIndices(5), []Key{{Column: "age", Direction: Descending}})

	want := asc.Order()
	for i, j := 0, len(want)-1; i < j; i, j = i+1, j-1 {
		want[i], want[j] = want[j], want[i]
	}
	assert.Equal(t, want, desc.Order())
	assert.Equal(t, []int{4, 3, 2, 1, 0}, desc.Order())
}

func TestRankOrderPresentUnresolvedMissing(t *testing.T) {
	g := coldata.NewGenericData(schema.KindString, 3)
	g.SetValue(0, nil) // resolved, no value
	g.SetValue(2, "hello")
	data := fakeLookup{"text": g}

	m := Build(data, 3, fullIndices(3), []Key{{Column: "text"}})
	assert.Equal(t, []int{2, 1, 0}, m.Order())
}

func TestMultiKeyWithStability(t *testing.T) {
	data := fakeLookup{
		"group": coldata.NewStringData([]string{"b", "a", "a", "b", "a"}, nil),
		"score": coldata.NewFloatData([]float64{1, 2, 2, 0, 1}),
	}

	m := Build(data, 5, fullIndices(5), []Key{{Column: "group"}, {Column: "score"}})
	// Group a: scores 1(row4), 2(row1), 2(row2); the tie keeps original order.
	// Group b: scores 0(row3), 1(row0).
	assert.Equal(t, []int{4, 1, 2, 3, 0}, m.Order())
}

func TestUnknownSortColumnIgnored(t *testing.T) {
	data := fakeLookup{"age": coldata.NewFloatData([]float64{2, 1})}

	m := Build(data, 2, fullIndices(2), []Key{{Column: "gone"}})
	assert.Equal(t, []int{0, 1}, m.Order())

	// A bad key ahead of a good one must not disturb the good one.
	m = Build(data, 2, fullIndices(2), []Key{{Column: "gone"}, {Column: "age"}})
	assert.Equal(t, []int{1, 0}, m.Order())
}

func TestArrayValuesCompareLexicographically(t *testing.T) {
	g := coldata.NewGenericData(schema.KindArray, 4)
	g.SetValue(0, []float64{1, 3})
	g.SetValue(1, []float64{1, 2})
	g.SetValue(2, []float64{1})
	g.SetValue(3, []float64{0, 9})
	data := fakeLookup{"pos": g}

	m := Build(data, 4, fullIndices(4), []Key{{Column: "pos"}})
	assert.Equal(t, []int{3, 2, 1, 0}, m.Order())
}

func TestBijectionOverSubset(t *testing.T) {
	data := fakeLookup{"age": coldata.NewFloatData([]float64{5, 4, 3, 2, 1, 0})}

	indices := []int{1, 3, 5}
	m := Build(data, 6, indices, []Key{{Column: "age"}})
	require.Equal(t, 3, m.Len())
	assert.Equal(t, []int{5, 3, 1}, m.Order())

	for pos := 0; pos < m.Len(); pos++ {
		row, ok := m.OriginalIndex(pos)
		require.True(t, ok)
		back, ok := m.SortedIndex(row)
		require.True(t, ok)
		assert.Equal(t, pos, back)
	}

	// Rows outside the view have no display position.
	_, ok := m.SortedIndex(0)
	assert.False(t, ok)
	_, ok = m.SortedIndex(2)
	assert.False(t, ok)

	_, ok = m.OriginalIndex(-1)
	assert.False(t, ok)
	_, ok = m.OriginalIndex(3)
	assert.False(t, ok)
	_, ok = m.SortedIndex(99)
	assert.False(t, ok)
}

func TestBoolAndTimeOrdering(t *testing.T) {
	data := fakeLookup{
		"flag": coldata.NewBoolData([]bool{true, false, true}, nil),
		"when": coldata.NewTimeData([]int64{300, 100, 200}, nil),
	}

	m := Build(data, 3, fullIndices(3), []Key{{Column: "flag"}})
	assert.Equal(t, []int{1, 0, 2}, m.Order())

	m = Build(data, 3, fullIndices(3), []Key{{Column: "when"}})
	assert.Equal(t, []int{1, 2, 0}, m.Order())
}

func TestOrderReturnsCopy(t *testing.T) {
	m := Identity(2, []int{0, 1})
	order := m.Order()
	order[0] = 99
	row, _ := m.OriginalIndex(0)
	assert.Equal(t, 0, row)
}

func TestParseKeys(t *testing.T) {
	keys, err := ParseKeys("age:desc, name, score:asc")
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Column: "age", Direction: Descending},
		{Column: "name"},
		{Column: "score"},
	}, keys)

	keys, err = ParseKeys("")
	require.NoError(t, err)
	assert.Nil(t, keys)

	_, err = ParseKeys("age:sideways")
	assert.Error(t, err)
}
