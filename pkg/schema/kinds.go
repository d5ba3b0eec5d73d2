// Package schema defines the column model for Facet datasets: the closed set
// of column data kinds, their capability tables, and the mapping from Apache
// Arrow schemas into columns.
package schema

import "math"

// Kind identifies the data kind of a column. The string values are stable
// wire names shared with the UI and the compute service.
type Kind string

const (
	// KindUnknown marks columns whose type could not be classified.
	KindUnknown Kind = "unknown"

	// KindInt is a signed integer column.
	KindInt Kind = "int"

	// KindFloat is a floating point column. NaN encodes a missing value.
	KindFloat Kind = "float"

	// KindBool is a boolean column.
	KindBool Kind = "bool"

	// KindString is a text column.
	KindString Kind = "str"

	// KindArray is a variable-length numeric array column.
	KindArray Kind = "array"

	// KindDateTime is a timestamp column.
	KindDateTime Kind = "datetime"

	// KindCategory is a categorical column backed by a code-to-label map.
	KindCategory Kind = "Category"

	// KindWindow is a pair of floats describing a sub-range of a sequence.
	KindWindow Kind = "Window"

	// KindEmbedding is a fixed-length numeric vector column.
	KindEmbedding Kind = "Embedding"

	// KindSequence1D is a sampled one-dimensional signal column.
	KindSequence1D Kind = "Sequence1D"

	// KindMesh is a 3D mesh column.
	KindMesh Kind = "Mesh"

	// KindImage is an image column.
	KindImage Kind = "Image"

	// KindVideo is a video column.
	KindVideo Kind = "Video"

	// KindAudio is an audio column.
	KindAudio Kind = "Audio"

	// KindBoundingBox is a 2D bounding box column.
	KindBoundingBox Kind = "BoundingBox"
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	KindUnknown, KindInt, KindFloat, KindBool, KindString, KindArray,
	KindDateTime, KindCategory, KindWindow, KindEmbedding, KindSequence1D,
	KindMesh, KindImage, KindVideo, KindAudio, KindBoundingBox,
}

var numericKinds = map[Kind]bool{
	KindInt:   true,
	KindFloat: true,
}

var scalarKinds = map[Kind]bool{
	KindInt:      true,
	KindFloat:    true,
	KindBool:     true,
	KindString:   true,
	KindCategory: true,
	KindDateTime: true,
}

var lazyKinds = map[Kind]bool{
	KindString:     true,
	KindArray:      true,
	KindEmbedding:  true,
	KindSequence1D: true,
	KindMesh:       true,
	KindImage:      true,
	KindVideo:      true,
	KindAudio:      true,
}

var binaryKinds = map[Kind]bool{
	KindSequence1D: true,
	KindMesh:       true,
	KindImage:      true,
	KindVideo:      true,
	KindAudio:      true,
}

// IsNumeric reports whether values of this kind order as numbers.
func (k Kind) IsNumeric() bool {
	return numericKinds[k]
}

// IsScalar reports whether values of this kind are single scalar values
// rather than arrays, references, or composites.
func (k Kind) IsScalar() bool {
	return scalarKinds[k]
}

// Lazy reports whether column values of this kind are fetched on demand
// instead of being held in memory.
func (k Kind) Lazy() bool {
	return lazyKinds[k]
}

// Binary reports whether cell values of this kind travel as raw bytes.
func (k Kind) Binary() bool {
	return binaryKinds[k]
}

// NullValue returns the canonical empty value for the kind. It is used when
// constructing filters against columns with no current reference value.
func (k Kind) NullValue() any {
	switch k {
	case KindInt:
		return int64(0)
	case KindFloat:
		return math.NaN()
	case KindBool:
		return false
	case KindString:
		return ""
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// CategoryMap is a bidirectional mapping between category codes and labels.
// Codes are dense indices into the label list.
type CategoryMap struct {
	labels []string
	codes  map[string]int
}

// NewCategoryMap builds a CategoryMap from an ordered label list. The code of
// a label is its position in the list.
func NewCategoryMap(labels []string) *CategoryMap {
	m := &CategoryMap{
		labels: append([]string(nil), labels...),
		codes:  make(map[string]int, len(labels)),
	}
	for i, label := range m.labels {
		if _, ok := m.codes[label]; !ok {
			m.codes[label] = i
		}
	}
	return m
}

// Label returns the label for a code.
func (m *CategoryMap) Label(code int) (string, bool) {
	if m == nil || code < 0 || code >= len(m.labels) {
		return "", false
	}
	return m.labels[code], true
}

// Code returns the code for a label.
func (m *CategoryMap) Code(label string) (int, bool) {
	if m == nil {
		return 0, false
	}
	code, ok := m.codes[label]
	return code, ok
}

// Labels returns a copy of the ordered label list.
func (m *CategoryMap) Labels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.labels...)
}

// Len returns the number of categories.
func (m *CategoryMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}

// DType is the full type of a column: the kind plus any kind-specific
// attributes.
type DType struct {
	// Kind is the data kind tag.
	Kind Kind

	// Categories maps codes to labels for KindCategory columns.
	Categories *CategoryMap

	// Inner is the element type for KindArray and KindSequence1D columns.
	Inner *DType

	// Length is the fixed vector length for KindEmbedding columns.
	Length int
}
