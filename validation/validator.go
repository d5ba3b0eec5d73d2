// Package validation checks the internal consistency of a dataset store:
// column lengths, view masks and indices, category codes, and sort mappings.
package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/sortindex"
	"github.com/facet-org/facet/pkg/store"
)

// CheckResult is the outcome of one consistency check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the combined outcome of a validation run.
type Report struct {
	Checks   []CheckResult `json:"checks"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
}

// Validator runs consistency checks against a dataset store.
type Validator struct {
	Store  *store.Store
	Logger *zap.Logger
}

// NewValidator constructs a Validator. A nil logger disables logging.
func NewValidator(s *store.Store, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{Store: s, Logger: logger}
}

// Validate runs every check concurrently and returns the combined report.
// The report lists failed checks with a human-readable detail; the error is
// only non-nil when the context ends before the checks do.
func (v *Validator) Validate(ctx context.Context) (Report, error) {
	start := time.Now()
	v.Logger.Info("starting dataset validation",
		zap.Int("rows", v.Store.Length()),
		zap.Int("columns", len(v.Store.Columns())))

	checks := []func(context.Context) CheckResult{
		v.checkColumnLengths,
		v.checkFilteredView,
		v.checkSelectedView,
		v.checkHighlightMask,
		v.checkCategoryCodes,
		v.checkSortMappings,
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	wg.Add(len(checks))
	for i, check := range checks {
		go func(i int, check func(context.Context) CheckResult) {
			defer wg.Done()
			results[i] = check(ctx)
		}(i, check)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rep := Report{Checks: results, Passed: true, Duration: time.Since(start)}
	for _, res := range results {
		if !res.Passed {
			rep.Passed = false
			v.Logger.Warn("validation check failed",
				zap.String("check", res.Name),
				zap.String("detail", res.Detail))
		}
	}
	v.Logger.Info("dataset validation complete",
		zap.Bool("passed", rep.Passed),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}

func pass(name string) CheckResult {
	return CheckResult{Name: name, Passed: true}
}

func fail(name, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf(format, args...)}
}

// checkColumnLengths verifies that every column holds exactly one value slot
// per dataset row.
func (v *Validator) checkColumnLengths(_ context.Context) CheckResult {
	const name = "column-lengths"
	length := v.Store.Length()
	for _, col := range v.Store.Columns() {
		d, ok := v.Store.Data(col.Key)
		if !ok {
			return fail(name, "column %q has no data", col.Key)
		}
		if d.Len() != length {
			return fail(name, "column %q holds %d rows, dataset has %d", col.Key, d.Len(), length)
		}
	}
	return pass(name)
}

func (v *Validator) checkFilteredView(_ context.Context) CheckResult {
	return v.checkView("filtered-view", v.Store.FilteredMask(), v.Store.Indices(store.ViewFiltered), v.Store.FilteredCount())
}

func (v *Validator) checkSelectedView(_ context.Context) CheckResult {
	return v.checkView("selected-view", v.Store.SelectedMask(), v.Store.Indices(store.ViewSelected), v.Store.SelectedCount())
}

// checkView verifies that a view's index list agrees with its mask: same
// cardinality, strictly increasing, and every listed row masked in.
func (v *Validator) checkView(name string, mask []bool, indices []int, count int) CheckResult {
	length := v.Store.Length()
	if len(mask) != length {
		return fail(name, "mask holds %d rows, dataset has %d", len(mask), length)
	}

	masked := 0
	for _, on := range mask {
		if on {
			masked++
		}
	}
	if len(indices) != masked || count != masked {
		return fail(name, "mask admits %d rows but the view lists %d and counts %d", masked, len(indices), count)
	}

	prev := -1
	for _, row := range indices {
		if row < 0 || row >= length {
			return fail(name, "row %d is out of range", row)
		}
		if row <= prev {
			return fail(name, "row indices are not strictly increasing at row %d", row)
		}
		if !mask[row] {
			return fail(name, "row %d is listed but masked out", row)
		}
		prev = row
	}
	return pass(name)
}

func (v *Validator) checkHighlightMask(_ context.Context) CheckResult {
	const name = "highlight-mask"
	if got, want := len(v.Store.HighlightedMask()), v.Store.Length(); got != want {
		return fail(name, "mask holds %d rows, dataset has %d", got, want)
	}
	return pass(name)
}

// checkCategoryCodes verifies that every present category code resolves to a
// label, both in the data's own map and in the column's declared one.
func (v *Validator) checkCategoryCodes(ctx context.Context) CheckResult {
	const name = "category-codes"
	for _, col := range v.Store.Columns() {
		if col.Kind() != schema.KindCategory {
			continue
		}
		select {
		case <-ctx.Done():
			return fail(name, "%v", ctx.Err())
		default:
		}

		d, ok := v.Store.Data(col.Key)
		if !ok {
			continue
		}
		cd, ok := d.(*coldata.CategoryData)
		if !ok {
			return fail(name, "category column %q is backed by %T", col.Key, d)
		}
		declared := col.Type.Categories
		for row := 0; row < cd.Len(); row++ {
			code, ok := cd.Code(row)
			if !ok {
				continue
			}
			if _, ok := cd.Label(row); !ok {
				return fail(name, "column %q row %d has code %d outside its category map", col.Key, row, code)
			}
			if declared != nil {
				if _, ok := declared.Label(int(code)); !ok {
					return fail(name, "column %q row %d has code %d outside the declared categories", col.Key, row, code)
				}
			}
		}
	}
	return pass(name)
}

// checkSortMappings sorts every view by all scalar columns at once and
// verifies the resulting mapping is a bijection over the view's rows.
func (v *Validator) checkSortMappings(ctx context.Context) CheckResult {
	const name = "sort-bijection"
	var keys []sortindex.Key
	for _, col := range v.Store.Columns() {
		if col.Kind().IsScalar() {
			keys = append(keys, sortindex.Key{Column: col.Key, Direction: sortindex.Ascending})
		}
	}

	for _, view := range []store.View{store.ViewFull, store.ViewFiltered, store.ViewSelected} {
		select {
		case <-ctx.Done():
			return fail(name, "%v", ctx.Err())
		default:
		}

		mapping, err := v.Store.Sorting(view, keys)
		if err != nil {
			return fail(name, "sorting the %s view: %v", view, err)
		}
		rows := v.Store.Indices(view)
		if mapping.Len() != len(rows) {
			return fail(name, "%s view sorts %d rows, view has %d", view, mapping.Len(), len(rows))
		}

		seen := make(map[int]bool, mapping.Len())
		for pos := 0; pos < mapping.Len(); pos++ {
			row, ok := mapping.OriginalIndex(pos)
			if !ok {
				return fail(name, "%s view position %d resolves to no row", view, pos)
			}
			if seen[row] {
				return fail(name, "row %d appears twice in the %s view order", row, view)
			}
			seen[row] = true
			back, ok := mapping.SortedIndex(row)
			if !ok || back != pos {
				return fail(name, "row %d round-trips to position %d, want %d", row, back, pos)
			}
		}
		for _, row := range rows {
			if !seen[row] {
				return fail(name, "row %d of the %s view is missing from the sort order", row, view)
			}
		}
	}
	return pass(name)
}
