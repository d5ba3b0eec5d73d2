// Package sortindex derives the display order of a dataset view: a stable
// multi-key sort over the view's row indices, exposed as an O(1) bijection
// between original row index and display position.
package sortindex

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/facet-org/facet/pkg/coldata"
)

// Direction orders a sort key ascending or descending.
type Direction int

const (
	// Ascending orders small values first; rows without a value sink to
	// the end.
	Ascending Direction = iota

	// Descending is the exact mirror of Ascending.
	Descending
)

// Key is one column of a multi-key sort.
type Key struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// ParseKeys parses a sort expression of the form "col:asc,other:desc" into
// keys. A bare column name sorts ascending. An empty expression means no
// sort.
func ParseKeys(expr string) ([]Key, error) {
	if expr == "" {
		return nil, nil
	}
	var keys []Key
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		column, dir, found := strings.Cut(part, ":")
		key := Key{Column: column}
		if found {
			switch dir {
			case "asc":
			case "desc":
				key.Direction = Descending
			default:
				return nil, fmt.Errorf("unknown sort direction %q", dir)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ColumnLookup is the read surface the sort evaluates against.
type ColumnLookup interface {
	Data(key string) (coldata.Data, bool)
}

// Mapping is the bijection between display positions and original row
// indices for one sorted view.
type Mapping struct {
	forward []int
	inverse []int
}

// Build sorts the given view indices by the sort keys and returns the
// resulting mapping. length is the full dataset length and sizes the inverse
// lookup. Keys referencing unknown columns are ignored. With no effective
// keys the indices keep their given order.
//
// The per-key order ranks rows with a present value first, then rows whose
// value is still unresolved, then rows with no value; present values order
// by type (numbers, strings, booleans, timestamps, and element-wise for
// numeric arrays). Ties fall through to the next key, and full ties keep
// their original relative order.
func Build(data ColumnLookup, length int, indices []int, keys []Key) *Mapping {
	forward := append([]int(nil), indices...)

	type boundKey struct {
		data coldata.Data
		desc bool
	}
	bound := make([]boundKey, 0, len(keys))
	for _, key := range keys {
		d, ok := data.Data(key.Column)
		if !ok {
			continue
		}
		bound = append(bound, boundKey{data: d, desc: key.Direction == Descending})
	}

	if len(bound) > 0 {
		sort.SliceStable(forward, func(i, j int) bool {
			a, b := forward[i], forward[j]
			for _, k := range bound {
				c := compareRows(k.data, a, b)
				if k.desc {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}

	inverse := make([]int, length)
	for i := range inverse {
		inverse[i] = -1
	}
	for pos, row := range forward {
		if row >= 0 && row < length {
			inverse[row] = pos
		}
	}
	return &Mapping{forward: forward, inverse: inverse}
}

// Identity returns the mapping of an unsorted view.
func Identity(length int, indices []int) *Mapping {
	return Build(nil, length, indices, nil)
}

// Len returns the number of display positions in the view.
func (m *Mapping) Len() int {
	return len(m.forward)
}

// OriginalIndex returns the original row shown at a display position.
func (m *Mapping) OriginalIndex(pos int) (int, bool) {
	if pos < 0 || pos >= len(m.forward) {
		return 0, false
	}
	return m.forward[pos], true
}

// SortedIndex returns the display position of an original row; rows outside
// the view report false.
func (m *Mapping) SortedIndex(row int) (int, bool) {
	if row < 0 || row >= len(m.inverse) || m.inverse[row] < 0 {
		return 0, false
	}
	return m.inverse[row], true
}

// Order returns a copy of the display order as original row indices.
func (m *Mapping) Order() []int {
	return append([]int(nil), m.forward...)
}

const (
	rankMissing    = 0
	rankUnresolved = 1
	rankPresent    = 2
)

func rank(d coldata.Data, row int) int {
	if row < 0 || row >= d.Len() {
		return rankMissing
	}
	switch d.State(row) {
	case coldata.Present:
		return rankPresent
	case coldata.Unresolved:
		return rankUnresolved
	default:
		return rankMissing
	}
}

func compareRows(d coldata.Data, a, b int) int {
	ra, rb := rank(d, a), rank(d, b)
	if ra != rb {
		// Higher rank sorts first: values, then unresolved, then nothing.
		if ra > rb {
			return -1
		}
		return 1
	}
	if ra != rankPresent {
		return 0
	}
	return compareValues(d.Value(a), d.Value(b))
}

func compareValues(a, b any) int {
	if as, ok := anySlice(a); ok {
		bs, ok := anySlice(b)
		if !ok {
			return 0
		}
		for i := 0; i < len(as) && i < len(bs); i++ {
			if c := compareValues(as[i], bs[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(as), len(bs))
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 0
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case time.Time:
		return float64(x.UnixMicro()), true
	default:
		return 0, false
	}
}

func anySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []float32:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
