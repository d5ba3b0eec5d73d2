package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/filter"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/store"
)

func newValidStore(t *testing.T) *store.Store {
	t.Helper()

	categories := schema.NewCategoryMap([]string{"cat", "dog"})
	columns := []schema.Column{
		{Key: "age", Name: "age", Type: schema.DType{Kind: schema.KindFloat}},
		{Key: "pet", Name: "pet", Type: schema.DType{Kind: schema.KindCategory, Categories: categories}},
	}
	data := map[string]coldata.Data{
		"age": coldata.NewFloatData([]float64{30, 10, 20, 40}),
		"pet": coldata.NewCategoryData([]int32{0, 1, -1, 0}, categories),
	}
	s, err := store.New(columns, data, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ageCol, _ := s.Column("age")
	f, err := filter.NewPredicateFilter(ageCol, "greater", 15.0)
	require.NoError(t, err)
	require.NoError(t, s.AddFilter(f))
	require.NoError(t, s.SelectRows([]int{0, 2}))
	require.NoError(t, s.HighlightRowAt(1, false))

	return s
}

func checkByName(t *testing.T, rep Report, name string) CheckResult {
	t.Helper()
	for _, res := range rep.Checks {
		if res.Name == name {
			return res
		}
	}
	t.Fatalf("no check named %q in report", name)
	return CheckResult{}
}

func TestValidatePassesOnConsistentStore(t *testing.T) {
	v := NewValidator(newValidStore(t), nil)

	rep, err := v.Validate(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Passed)
	require.Len(t, rep.Checks, 6)
	for _, res := range rep.Checks {
		assert.True(t, res.Passed, "check %s failed: %s", res.Name, res.Detail)
	}
}

func TestValidateFlagsCategoryCodeOutsideMap(t *testing.T) {
	categories := schema.NewCategoryMap([]string{"cat", "dog"})
	columns := []schema.Column{
		{Key: "pet", Name: "pet", Type: schema.DType{Kind: schema.KindCategory, Categories: categories}},
	}
	data := map[string]coldata.Data{
		"pet": coldata.NewCategoryData([]int32{0, 5}, categories),
	}
	s, err := store.New(columns, data, store.Options{})
	require.NoError(t, err)
	defer s.Close()

	rep, err := NewValidator(s, nil).Validate(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.Passed)
	res := checkByName(t, rep, "category-codes")
	assert.False(t, res.Passed)
	assert.Contains(t, res.Detail, "row 1")
}

func TestValidateHonorsContext(t *testing.T) {
	v := NewValidator(newValidStore(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Validate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckViewRejectsCorruptIndices(t *testing.T) {
	v := NewValidator(newValidStore(t), nil)

	res := v.checkView("filtered-view", []bool{true, false, true, false}, []int{0, 2}, 2)
	assert.True(t, res.Passed)

	res = v.checkView("filtered-view", []bool{true, false, true, false}, []int{2, 0}, 2)
	assert.False(t, res.Passed)

	res = v.checkView("filtered-view", []bool{true, false, true, false}, []int{0, 1}, 2)
	assert.False(t, res.Passed)

	res = v.checkView("filtered-view", []bool{true, false}, []int{0}, 1)
	assert.False(t, res.Passed)
}
