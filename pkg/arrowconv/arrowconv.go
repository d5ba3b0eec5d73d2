// Package arrowconv extracts Go values from Arrow arrays. All accessors
// take an index local to the given array and report nulls through their
// second return value.
package arrowconv

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Float64At reads a numeric cell as float64. It accepts every integer and
// floating point width.
func Float64At(arr arrow.Array, i int) (float64, bool) {
	if arr == nil || arr.IsNull(i) {
		return 0, false
	}
	switch arr := arr.(type) {
	case *array.Int8:
		return float64(arr.Value(i)), true
	case *array.Int16:
		return float64(arr.Value(i)), true
	case *array.Int32:
		return float64(arr.Value(i)), true
	case *array.Int64:
		return float64(arr.Value(i)), true
	case *array.Uint8:
		return float64(arr.Value(i)), true
	case *array.Uint16:
		return float64(arr.Value(i)), true
	case *array.Uint32:
		return float64(arr.Value(i)), true
	case *array.Uint64:
		return float64(arr.Value(i)), true
	case *array.Float16:
		return float64(arr.Value(i).Float32()), true
	case *array.Float32:
		return float64(arr.Value(i)), true
	case *array.Float64:
		return arr.Value(i), true
	default:
		return 0, false
	}
}

// Int64At reads an integer cell as int64.
func Int64At(arr arrow.Array, i int) (int64, bool) {
	if arr == nil || arr.IsNull(i) {
		return 0, false
	}
	switch arr := arr.(type) {
	case *array.Int8:
		return int64(arr.Value(i)), true
	case *array.Int16:
		return int64(arr.Value(i)), true
	case *array.Int32:
		return int64(arr.Value(i)), true
	case *array.Int64:
		return arr.Value(i), true
	case *array.Uint8:
		return int64(arr.Value(i)), true
	case *array.Uint16:
		return int64(arr.Value(i)), true
	case *array.Uint32:
		return int64(arr.Value(i)), true
	case *array.Uint64:
		return int64(arr.Value(i)), true
	default:
		return 0, false
	}
}

// BoolAt reads a boolean cell.
func BoolAt(arr arrow.Array, i int) (bool, bool) {
	if arr == nil || arr.IsNull(i) {
		return false, false
	}
	b, ok := arr.(*array.Boolean)
	if !ok {
		return false, false
	}
	return b.Value(i), true
}

// StringAt reads a string cell. Dictionary-encoded strings resolve to their
// label.
func StringAt(arr arrow.Array, i int) (string, bool) {
	if arr == nil || arr.IsNull(i) {
		return "", false
	}
	switch arr := arr.(type) {
	case *array.String:
		return arr.Value(i), true
	case *array.LargeString:
		return arr.Value(i), true
	case *array.Dictionary:
		values, ok := arr.Dictionary().(array.StringLike)
		if !ok {
			return "", false
		}
		return values.Value(arr.GetValueIndex(i)), true
	default:
		return "", false
	}
}

// BytesAt reads a binary cell. The returned slice aliases the array buffer
// and must be copied before the array is released.
func BytesAt(arr arrow.Array, i int) ([]byte, bool) {
	if arr == nil || arr.IsNull(i) {
		return nil, false
	}
	switch arr := arr.(type) {
	case *array.Binary:
		return arr.Value(i), true
	case *array.LargeBinary:
		return arr.Value(i), true
	default:
		return nil, false
	}
}

// TimeAt reads a temporal cell as UTC time.
func TimeAt(arr arrow.Array, i int) (time.Time, bool) {
	if arr == nil || arr.IsNull(i) {
		return time.Time{}, false
	}
	switch arr := arr.(type) {
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(i).ToTime(unit).UTC(), true
	case *array.Date32:
		return arr.Value(i).ToTime().UTC(), true
	case *array.Date64:
		return arr.Value(i).ToTime().UTC(), true
	default:
		return time.Time{}, false
	}
}

// TimestampMicrosAt reads a temporal cell as microseconds since the Unix
// epoch.
func TimestampMicrosAt(arr arrow.Array, i int) (int64, bool) {
	t, ok := TimeAt(arr, i)
	if !ok {
		return 0, false
	}
	return t.UnixMicro(), true
}

// FloatsAt reads a list cell of any numeric element type as []float64.
func FloatsAt(arr arrow.Array, i int) ([]float64, bool) {
	if arr == nil || arr.IsNull(i) {
		return nil, false
	}
	list, ok := arr.(array.ListLike)
	if !ok {
		return nil, false
	}
	start, end := list.ValueOffsets(i)
	values := list.ListValues()
	out := make([]float64, 0, end-start)
	for j := start; j < end; j++ {
		v, ok := Float64At(values, int(j))
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// ValueAt reads any supported cell as a plain Go value: numerics keep their
// width family, strings and booleans map directly, temporals become
// time.Time, binary becomes a copied []byte, and lists become []any. Nulls
// and unsupported types come back as nil.
func ValueAt(arr arrow.Array, i int) any {
	if arr == nil || arr.IsNull(i) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Float16, *array.Float32, *array.Float64:
		v, _ := Float64At(arr, i)
		return v
	case *array.Int8, *array.Int16, *array.Int32, *array.Int64,
		*array.Uint8, *array.Uint16, *array.Uint32, *array.Uint64:
		v, _ := Int64At(arr, i)
		return v
	case *array.String:
		return arr.Value(i)
	case *array.LargeString:
		return arr.Value(i)
	case *array.Binary:
		return append([]byte(nil), arr.Value(i)...)
	case *array.LargeBinary:
		return append([]byte(nil), arr.Value(i)...)
	case *array.Timestamp, *array.Date32, *array.Date64:
		t, _ := TimeAt(arr, i)
		return t
	case *array.Dictionary:
		s, ok := StringAt(arr, i)
		if !ok {
			return nil
		}
		return s
	case array.ListLike:
		start, end := arr.ValueOffsets(i)
		values := arr.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, ValueAt(values, int(j)))
		}
		return out
	default:
		return nil
	}
}
