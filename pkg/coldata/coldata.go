// Package coldata provides the typed in-memory arrays that back dataset
// columns. Every column of a dataset stores its values in one Data
// implementation whose length equals the dataset length; rows distinguish
// between a present value, a missing value, and a lazily-fetched value that
// has not been resolved yet.
package coldata

import (
	"math"
	"time"

	"github.com/facet-org/facet/pkg/schema"
)

// State describes what a column knows about one row's value.
type State uint8

const (
	// Missing means the row has no value.
	Missing State = iota

	// Unresolved means the value is fetched lazily and has not arrived yet.
	Unresolved

	// Present means the value is available in memory.
	Present
)

// Data is read-only access to one column's values. Implementations are
// written only during dataset load or refresh; afterwards they are safe for
// concurrent readers.
type Data interface {
	// Len returns the number of rows.
	Len() int

	// Kind returns the data kind stored in this column.
	Kind() schema.Kind

	// State reports what is known about the row's value.
	State(row int) State

	// Value returns the row's value. Missing and unresolved rows yield nil,
	// except for float columns where NaN encodes a missing value.
	Value(row int) any
}

// FloatData stores float64 values. NaN encodes a missing value.
type FloatData struct {
	Values []float64
}

// NewFloatData wraps a float64 slice as column data.
func NewFloatData(values []float64) *FloatData {
	return &FloatData{Values: values}
}

func (d *FloatData) Len() int          { return len(d.Values) }
func (d *FloatData) Kind() schema.Kind { return schema.KindFloat }
func (d *FloatData) Value(row int) any { return d.Values[row] }

func (d *FloatData) State(row int) State {
	if math.IsNaN(d.Values[row]) {
		return Missing
	}
	return Present
}

// IntData stores int64 values with an optional validity mask. A nil Valid
// slice means every row is valid.
type IntData struct {
	Values []int64
	Valid  []bool
}

// NewIntData wraps int64 values and a validity mask as column data.
func NewIntData(values []int64, valid []bool) *IntData {
	return &IntData{Values: values, Valid: valid}
}

func (d *IntData) Len() int          { return len(d.Values) }
func (d *IntData) Kind() schema.Kind { return schema.KindInt }

func (d *IntData) State(row int) State {
	if d.Valid != nil && !d.Valid[row] {
		return Missing
	}
	return Present
}

func (d *IntData) Value(row int) any {
	if d.State(row) != Present {
		return nil
	}
	return d.Values[row]
}

// BoolData stores boolean values with an optional validity mask.
type BoolData struct {
	Values []bool
	Valid  []bool
}

// NewBoolData wraps boolean values and a validity mask as column data.
func NewBoolData(values, valid []bool) *BoolData {
	return &BoolData{Values: values, Valid: valid}
}

func (d *BoolData) Len() int          { return len(d.Values) }
func (d *BoolData) Kind() schema.Kind { return schema.KindBool }

func (d *BoolData) State(row int) State {
	if d.Valid != nil && !d.Valid[row] {
		return Missing
	}
	return Present
}

func (d *BoolData) Value(row int) any {
	if d.State(row) != Present {
		return nil
	}
	return d.Values[row]
}

// StringData stores eagerly materialized text values with an optional
// validity mask.
type StringData struct {
	Values []string
	Valid  []bool
}

// NewStringData wraps string values and a validity mask as column data.
func NewStringData(values []string, valid []bool) *StringData {
	return &StringData{Values: values, Valid: valid}
}

func (d *StringData) Len() int          { return len(d.Values) }
func (d *StringData) Kind() schema.Kind { return schema.KindString }

func (d *StringData) State(row int) State {
	if d.Valid != nil && !d.Valid[row] {
		return Missing
	}
	return Present
}

func (d *StringData) Value(row int) any {
	if d.State(row) != Present {
		return nil
	}
	return d.Values[row]
}

// CategoryData stores category codes alongside the code-to-label map.
// Negative codes encode missing values. Values present as labels; codes stay
// an internal storage detail reachable through Code.
type CategoryData struct {
	Codes []int32
	Map   *schema.CategoryMap
}

// NewCategoryData wraps category codes and their label map as column data.
func NewCategoryData(codes []int32, m *schema.CategoryMap) *CategoryData {
	return &CategoryData{Codes: codes, Map: m}
}

func (d *CategoryData) Len() int          { return len(d.Codes) }
func (d *CategoryData) Kind() schema.Kind { return schema.KindCategory }

func (d *CategoryData) State(row int) State {
	if d.Codes[row] < 0 {
		return Missing
	}
	return Present
}

func (d *CategoryData) Value(row int) any {
	label, ok := d.Label(row)
	if !ok {
		return nil
	}
	return label
}

// Code returns the raw category code for a row; missing rows report false.
func (d *CategoryData) Code(row int) (int32, bool) {
	code := d.Codes[row]
	if code < 0 {
		return 0, false
	}
	return code, true
}

// Label resolves the row's code through the category map.
func (d *CategoryData) Label(row int) (string, bool) {
	code, ok := d.Code(row)
	if !ok {
		return "", false
	}
	return d.Map.Label(int(code))
}

// TimeData stores timestamps as microsecond epochs with an optional validity
// mask. Values present as UTC time.Time.
type TimeData struct {
	Epochs []int64
	Valid  []bool
}

// NewTimeData wraps microsecond epochs and a validity mask as column data.
func NewTimeData(epochs []int64, valid []bool) *TimeData {
	return &TimeData{Epochs: epochs, Valid: valid}
}

func (d *TimeData) Len() int          { return len(d.Epochs) }
func (d *TimeData) Kind() schema.Kind { return schema.KindDateTime }

func (d *TimeData) State(row int) State {
	if d.Valid != nil && !d.Valid[row] {
		return Missing
	}
	return Present
}

func (d *TimeData) Value(row int) any {
	if d.State(row) != Present {
		return nil
	}
	return time.UnixMicro(d.Epochs[row]).UTC()
}

// Epoch returns the raw microsecond epoch for a row; missing rows report
// false.
func (d *TimeData) Epoch(row int) (int64, bool) {
	if d.State(row) != Present {
		return 0, false
	}
	return d.Epochs[row], true
}

// GenericData stores values for lazily-fetched columns. A row starts
// unresolved; once a value (or an explicit nil for "no value") arrives it is
// marked resolved.
type GenericData struct {
	kind     schema.Kind
	values   []any
	resolved []bool
}

// NewGenericData creates all-unresolved column data of the given kind and
// length.
func NewGenericData(kind schema.Kind, length int) *GenericData {
	return &GenericData{
		kind:     kind,
		values:   make([]any, length),
		resolved: make([]bool, length),
	}
}

func (d *GenericData) Len() int          { return len(d.values) }
func (d *GenericData) Kind() schema.Kind { return d.kind }

func (d *GenericData) State(row int) State {
	if !d.resolved[row] {
		return Unresolved
	}
	if d.values[row] == nil {
		return Missing
	}
	return Present
}

func (d *GenericData) Value(row int) any {
	if !d.resolved[row] {
		return nil
	}
	return d.values[row]
}

// SetValue records a resolved value for a row. A nil value marks the row as
// resolved-but-missing.
func (d *GenericData) SetValue(row int, value any) {
	d.values[row] = value
	d.resolved[row] = true
}

// NumericValue returns a row's value as a float64 for numeric ordering and
// statistics, with NaN standing in for missing, unresolved, and non-numeric
// values.
func NumericValue(d Data, row int) float64 {
	if d.State(row) != Present {
		return math.NaN()
	}
	switch v := d.Value(row).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case time.Time:
		return float64(v.UnixMicro())
	default:
		return math.NaN()
	}
}
