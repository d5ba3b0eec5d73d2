package schema

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Arrow field metadata keys understood by the column mapper. They let a
// dataset author annotate fields whose Arrow type alone does not determine
// the Facet kind (media blobs, windows, bounding boxes).
const (
	// MetadataKind overrides or refines the inferred kind. Recognized
	// values: image, audio, video, mesh, sequence, window, bbox.
	MetadataKind = "facet.kind"

	// MetadataDescription carries the column description.
	MetadataDescription = "facet.description"

	// MetadataTags carries comma-separated column tags.
	MetadataTags = "facet.tags"

	// MetadataHidden marks the column as hidden by default ("true").
	MetadataHidden = "facet.hidden"

	// MetadataEditable marks the column as editable ("true").
	MetadataEditable = "facet.editable"

	// MetadataInternal marks the column as internal bookkeeping ("true").
	MetadataInternal = "facet.internal"
)

// Column describes one attribute of every row in a dataset. Columns are
// immutable value objects: they are created at load or refresh time and
// replaced wholesale when the schema changes.
type Column struct {
	// Key is the stable identity of the column, unique within a dataset.
	Key string

	// Name is the display name.
	Name string

	// Type is the full data type of the column.
	Type DType

	// Order is the display ordering hint.
	Order int

	// Index is the position of the column in the source schema.
	Index int

	// Editable reports whether cell values of the column may be edited.
	Editable bool

	// Optional reports whether values may be absent.
	Optional bool

	// Hidden reports whether the column is hidden by default.
	Hidden bool

	// Internal reports whether the column is internal bookkeeping rather
	// than dataset content.
	Internal bool

	// Description is a human-readable description of the column.
	Description string

	// Tags are free-form labels attached to the column.
	Tags []string
}

// Kind returns the column's data kind.
func (c Column) Kind() Kind {
	return c.Type.Kind
}

// Lazy reports whether the column's values are fetched on demand.
func (c Column) Lazy() bool {
	return c.Type.Kind.Lazy()
}

// Binary reports whether the column's cell values travel as raw bytes.
func (c Column) Binary() bool {
	return c.Type.Kind.Binary()
}

// ColumnsFromArrow maps an Arrow schema into the Facet column model. Field
// order determines both Index and the initial display Order. Nullable fields
// become Optional columns; the facet.* metadata keys populate the remaining
// attributes.
func ColumnsFromArrow(s *arrow.Schema) []Column {
	if s == nil {
		return nil
	}
	columns := make([]Column, 0, s.NumFields())
	for i, field := range s.Fields() {
		col := Column{
			Key:         field.Name,
			Name:        field.Name,
			Type:        dtypeFromArrow(field),
			Order:       i,
			Index:       i,
			Optional:    field.Nullable,
			Editable:    metadataFlag(field.Metadata, MetadataEditable),
			Hidden:      metadataFlag(field.Metadata, MetadataHidden),
			Internal:    metadataFlag(field.Metadata, MetadataInternal),
			Description: metadataValue(field.Metadata, MetadataDescription),
		}
		if tags := metadataValue(field.Metadata, MetadataTags); tags != "" {
			for _, tag := range strings.Split(tags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					col.Tags = append(col.Tags, tag)
				}
			}
		}
		columns = append(columns, col)
	}
	return columns
}

func dtypeFromArrow(field arrow.Field) DType {
	hint := metadataValue(field.Metadata, MetadataKind)

	switch field.Type.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return DType{Kind: KindInt}

	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return DType{Kind: KindFloat}

	case arrow.BOOL:
		return DType{Kind: KindBool}

	case arrow.STRING, arrow.LARGE_STRING:
		if k, ok := mediaKind(hint); ok {
			return DType{Kind: k}
		}
		return DType{Kind: KindString}

	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return DType{Kind: KindDateTime}

	case arrow.DICTIONARY:
		dict, ok := field.Type.(*arrow.DictionaryType)
		if ok && isStringArrowType(dict.ValueType) {
			// The label list lives in the data, not the schema; the
			// loader fills Categories from the dictionary values.
			return DType{Kind: KindCategory}
		}
		return DType{Kind: KindUnknown}

	case arrow.FIXED_SIZE_LIST:
		fsl, ok := field.Type.(*arrow.FixedSizeListType)
		if !ok || !isNumericArrowType(fsl.Elem()) {
			return DType{Kind: KindUnknown}
		}
		switch hint {
		case "window":
			if fsl.Len() == 2 {
				return DType{Kind: KindWindow}
			}
		case "bbox":
			return DType{Kind: KindBoundingBox}
		}
		return DType{Kind: KindEmbedding, Length: int(fsl.Len())}

	case arrow.LIST, arrow.LARGE_LIST:
		elem := listElem(field.Type)
		inner := dtypeFromArrow(arrow.Field{Type: elem})
		if hint == "sequence" {
			return DType{Kind: KindSequence1D, Inner: &inner}
		}
		if isNumericArrowType(elem) {
			return DType{Kind: KindArray, Inner: &inner}
		}
		return DType{Kind: KindSequence1D, Inner: &inner}

	case arrow.BINARY, arrow.LARGE_BINARY:
		if k, ok := mediaKind(hint); ok {
			return DType{Kind: k}
		}
		if hint == "sequence" {
			return DType{Kind: KindSequence1D}
		}
		return DType{Kind: KindUnknown}

	default:
		return DType{Kind: KindUnknown}
	}
}

func mediaKind(hint string) (Kind, bool) {
	switch hint {
	case "image":
		return KindImage, true
	case "audio":
		return KindAudio, true
	case "video":
		return KindVideo, true
	case "mesh":
		return KindMesh, true
	default:
		return KindUnknown, false
	}
}

func listElem(dt arrow.DataType) arrow.DataType {
	switch t := dt.(type) {
	case *arrow.ListType:
		return t.Elem()
	case *arrow.LargeListType:
		return t.Elem()
	default:
		return nil
	}
}

func isNumericArrowType(dt arrow.DataType) bool {
	if dt == nil {
		return false
	}
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

func isStringArrowType(dt arrow.DataType) bool {
	if dt == nil {
		return false
	}
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return true
	}
	return false
}

func metadataValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

func metadataFlag(md arrow.Metadata, key string) bool {
	return metadataValue(md, key) == "true"
}

// ArrowSchemaFromColumns maps columns back onto an Arrow schema. Kinds that
// are not fully determined by an Arrow type carry a facet.kind metadata
// hint, so a written dataset reads back with the same column kinds.
func ArrowSchemaFromColumns(columns []Column) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, arrowFieldFromColumn(col))
	}
	return arrow.NewSchema(fields, nil)
}

func arrowFieldFromColumn(col Column) arrow.Field {
	field := arrow.Field{Name: col.Key, Nullable: true}

	switch col.Kind() {
	case KindInt:
		field.Type = arrow.PrimitiveTypes.Int64
	case KindFloat:
		field.Type = arrow.PrimitiveTypes.Float64
	case KindBool:
		field.Type = arrow.FixedWidthTypes.Boolean
	case KindString:
		field.Type = arrow.BinaryTypes.String
	case KindDateTime:
		field.Type = arrow.FixedWidthTypes.Timestamp_us
	case KindCategory:
		field.Type = &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int32,
			ValueType: arrow.BinaryTypes.String,
		}
	case KindWindow:
		field.Type = arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Float64)
		field.Metadata = kindMetadata("window")
	case KindBoundingBox:
		field.Type = arrow.FixedSizeListOf(4, arrow.PrimitiveTypes.Float64)
		field.Metadata = kindMetadata("bbox")
	case KindEmbedding:
		if col.Type.Length > 0 {
			field.Type = arrow.FixedSizeListOf(int32(col.Type.Length), arrow.PrimitiveTypes.Float64)
		} else {
			field.Type = arrow.ListOf(arrow.PrimitiveTypes.Float64)
		}
	case KindArray:
		field.Type = arrow.ListOf(arrow.PrimitiveTypes.Float64)
	case KindSequence1D:
		field.Type = arrow.ListOf(arrow.PrimitiveTypes.Float64)
		field.Metadata = kindMetadata("sequence")
	case KindImage:
		field.Type = arrow.BinaryTypes.Binary
		field.Metadata = kindMetadata("image")
	case KindAudio:
		field.Type = arrow.BinaryTypes.Binary
		field.Metadata = kindMetadata("audio")
	case KindVideo:
		field.Type = arrow.BinaryTypes.Binary
		field.Metadata = kindMetadata("video")
	case KindMesh:
		field.Type = arrow.BinaryTypes.Binary
		field.Metadata = kindMetadata("mesh")
	default:
		field.Type = arrow.BinaryTypes.String
	}
	return field
}

func kindMetadata(hint string) arrow.Metadata {
	return arrow.NewMetadata([]string{MetadataKind}, []string{hint})
}
