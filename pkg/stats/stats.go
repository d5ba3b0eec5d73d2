// Package stats computes summary statistics over dataset columns and scores
// columns by how much variation they carry.
package stats

import (
	"math"

	"github.com/facet-org/facet/pkg/coldata"
	"github.com/facet-org/facet/pkg/schema"
)

// -----------------------------
// Column Statistics
// -----------------------------

// ColumnStats summarizes the distribution of a numeric or datetime column.
// Datetime values are measured in epoch microseconds. When no values are
// present, Count is zero and the numeric fields stay zero.
type ColumnStats struct {
	Count     int     `json:"count"`
	NullCount int     `json:"null_count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
}

// Dataset is the read surface statistics are computed from.
type Dataset interface {
	Columns() []schema.Column
	Data(key string) (coldata.Data, bool)
	Length() int
}

// Describe computes statistics for every numeric and datetime column of the
// dataset. Missing values and NaN are skipped; other column kinds are left
// out of the result.
func Describe(ds Dataset) map[string]ColumnStats {
	out := make(map[string]ColumnStats)
	for _, col := range ds.Columns() {
		if !measurable(col.Kind()) {
			continue
		}
		d, ok := ds.Data(col.Key)
		if !ok {
			continue
		}
		out[col.Key] = DescribeColumn(d)
	}
	return out
}

// DescribeColumn computes statistics for a single column using Welford's
// online algorithm, so large columns need only one pass. StdDev is the
// population standard deviation.
func DescribeColumn(d coldata.Data) ColumnStats {
	var st ColumnStats
	min := math.Inf(1)
	max := math.Inf(-1)
	var mean, m2 float64

	for row := 0; row < d.Len(); row++ {
		v := coldata.NumericValue(d, row)
		if math.IsNaN(v) {
			st.NullCount++
			continue
		}
		st.Count++
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		delta := v - mean
		mean += delta / float64(st.Count)
		m2 += delta * (v - mean)
	}

	if st.Count == 0 {
		return st
	}
	st.Min = min
	st.Max = max
	st.Mean = mean
	st.StdDev = math.Sqrt(m2 / float64(st.Count))
	return st
}

func measurable(k schema.Kind) bool {
	return k.IsNumeric() || k == schema.KindDateTime
}

// -----------------------------
// Interestingness Scoring
// -----------------------------

// Scorer rates how much attention a column deserves given its statistics.
// Higher scores rank earlier in reports.
type Scorer interface {
	Score(col schema.Column, stats ColumnStats) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(col schema.Column, stats ColumnStats) float64

// Score implements Scorer.
func (f ScorerFunc) Score(col schema.Column, stats ColumnStats) float64 {
	return f(col, stats)
}

// ZScoreScorer scores a column by the z-score of its most extreme value.
// Columns with far outliers rank above columns whose values cluster near
// the mean. Constant and empty columns score zero.
type ZScoreScorer struct{}

// Score implements Scorer.
func (ZScoreScorer) Score(_ schema.Column, st ColumnStats) float64 {
	if st.Count == 0 || st.StdDev == 0 {
		return 0
	}
	spread := math.Max(st.Max-st.Mean, st.Mean-st.Min)
	return spread / st.StdDev
}

// DefaultScorer is the scorer used when none is configured.
var DefaultScorer Scorer = ZScoreScorer{}
