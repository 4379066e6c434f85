package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// AvroColumnsKey is the OCF metadata key holding the original column names
// as a JSON array, since avro field names cannot contain spaces.
const AvroColumnsKey = "iobench.columns"

const avroRecordName = "Partition"

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

type avroField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

// AvroSchema maps an arrow schema onto an avro record schema.
type AvroSchema struct {
	JSON    string
	Names   []string
	Columns []string
	Types   []string
	Arrow   *arrow.Schema
}

func MakeAvroSchema(s *arrow.Schema) (*AvroSchema, error) {
	result := &AvroSchema{Arrow: s}
	record := avroRecord{Type: "record", Name: avroRecordName}
	used := make(map[string]struct{}, len(s.Fields()))
	for _, f := range s.Fields() {
		typ, err := avroType(f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", f.Name)
		}
		name := uniqueName(AvroName(f.Name), used)

		var fieldType interface{} = typ
		if f.Nullable {
			fieldType = []string{"null", typ}
		}
		record.Fields = append(record.Fields, avroField{Name: name, Type: fieldType})
		result.Names = append(result.Names, name)
		result.Columns = append(result.Columns, f.Name)
		result.Types = append(result.Types, typ)
	}

	js, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling avro schema")
	}
	result.JSON = string(js)
	return result, nil
}

// ParseAvroSchema reads the record schema of an OCF file. columns holds the
// original column names from AvroColumnsKey and may be empty.
func ParseAvroSchema(schemaJSON string, columns []string) (*AvroSchema, error) {
	var record struct {
		Fields []struct {
			Name string          `json:"name"`
			Type json.RawMessage `json:"type"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &record); err != nil {
		return nil, errors.Wrap(err, "parsing avro schema")
	}
	if len(columns) != len(record.Fields) {
		columns = nil
	}

	result := &AvroSchema{JSON: schemaJSON}
	fields := make([]arrow.Field, 0, len(record.Fields))
	for i, f := range record.Fields {
		typ, nullable, err := parseAvroType(f.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f.Name)
		}
		dt, err := arrowTypeOfAvro(typ)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f.Name)
		}
		column := f.Name
		if columns != nil {
			column = columns[i]
		}
		result.Names = append(result.Names, f.Name)
		result.Columns = append(result.Columns, column)
		result.Types = append(result.Types, typ)
		fields = append(fields, arrow.Field{Name: column, Type: dt, Nullable: nullable})
	}
	result.Arrow = arrow.NewSchema(fields, nil)
	return result, nil
}

// ColumnsMetadata encodes the original column names for AvroColumnsKey.
func (s *AvroSchema) ColumnsMetadata() []byte {
	js, _ := json.Marshal(s.Columns)
	return js
}

func ParseColumnsMetadata(b []byte) []string {
	var columns []string
	if err := json.Unmarshal(b, &columns); err != nil {
		return nil
	}
	return columns
}

// Datum converts row i of rec into a goavro native record.
func (s *AvroSchema) Datum(rec arrow.Record, i int) map[string]interface{} {
	datum := make(map[string]interface{}, len(s.Names))
	for col, name := range s.Names {
		arr := rec.Column(col)
		if arr.IsNull(i) {
			datum[name] = nil
			continue
		}
		value := nativeValue(arr, i)
		if s.Arrow.Field(col).Nullable {
			value = goavro.Union(s.Types[col], value)
		}
		datum[name] = value
	}
	return datum
}

// AppendDatum appends a decoded avro record to builders, one per field.
func (s *AvroSchema) AppendDatum(builders []array.Builder, indices []int, datum interface{}) error {
	record, ok := datum.(map[string]interface{})
	if !ok {
		return errors.Errorf("unexpected avro datum %T", datum)
	}
	for pos, field := range indices {
		if err := AppendNative(builders[pos], record[s.Names[field]]); err != nil {
			return errors.Wrapf(err, "field %q", s.Names[field])
		}
	}
	return nil
}

// AppendNative appends a goavro native value to b.
func AppendNative(b array.Builder, v interface{}) error {
	if union, ok := v.(map[string]interface{}); ok {
		for _, inner := range union {
			v = inner
		}
	}
	if v == nil {
		b.AppendNull()
		return nil
	}

	var ok bool
	switch b := b.(type) {
	case *array.StringBuilder:
		var s string
		if s, ok = v.(string); ok {
			b.Append(s)
		}
	case *array.BinaryBuilder:
		var bs []byte
		if bs, ok = v.([]byte); ok {
			b.Append(bs)
		}
	case *array.Int64Builder:
		var n int64
		if n, ok = v.(int64); ok {
			b.Append(n)
		}
	case *array.Int32Builder:
		var n int32
		if n, ok = v.(int32); ok {
			b.Append(n)
		}
	case *array.Float64Builder:
		var f float64
		if f, ok = v.(float64); ok {
			b.Append(f)
		}
	case *array.Float32Builder:
		var f float32
		if f, ok = v.(float32); ok {
			b.Append(f)
		}
	case *array.BooleanBuilder:
		var x bool
		if x, ok = v.(bool); ok {
			b.Append(x)
		}
	default:
		return errors.Wrapf(ErrUnsupportedType, "builder %T", b)
	}
	if !ok {
		return errors.Errorf("value %v of type %T does not match %s", v, v, b.Type())
	}
	return nil
}

// AvroName turns a column name into a valid avro field name.
func AvroName(column string) string {
	var sb strings.Builder
	for i, r := range column {
		valid := r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))))
		if i == 0 && unicode.IsDigit(r) {
			sb.WriteRune('_')
			valid = true
		}
		if valid {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

func uniqueName(name string, used map[string]struct{}) string {
	candidate := name
	for n := 1; ; n++ {
		if _, ok := used[candidate]; !ok {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
}

func nativeValue(arr arrow.Array, i int) interface{} {
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	}
	return nil
}

func avroType(dt arrow.DataType) (string, error) {
	switch dt.ID() {
	case arrow.STRING:
		return "string", nil
	case arrow.BINARY:
		return "bytes", nil
	case arrow.INT64:
		return "long", nil
	case arrow.INT32:
		return "int", nil
	case arrow.FLOAT64:
		return "double", nil
	case arrow.FLOAT32:
		return "float", nil
	case arrow.BOOL:
		return "boolean", nil
	default:
		return "", errors.Wrapf(ErrUnsupportedType, "%s", dt)
	}
}

func arrowTypeOfAvro(typ string) (arrow.DataType, error) {
	switch typ {
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bytes":
		return arrow.BinaryTypes.Binary, nil
	case "long":
		return arrow.PrimitiveTypes.Int64, nil
	case "int":
		return arrow.PrimitiveTypes.Int32, nil
	case "double":
		return arrow.PrimitiveTypes.Float64, nil
	case "float":
		return arrow.PrimitiveTypes.Float32, nil
	case "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "avro %s", typ)
	}
}

func parseAvroType(raw json.RawMessage) (string, bool, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, false, nil
	}

	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err != nil {
		return "", false, errors.Wrapf(ErrUnsupportedType, "avro %s", raw)
	}
	var (
		typ      string
		nullable bool
	)
	for _, member := range union {
		var memberName string
		if err := json.Unmarshal(member, &memberName); err != nil {
			return "", false, errors.Wrapf(ErrUnsupportedType, "avro %s", raw)
		}
		if memberName == "null" {
			nullable = true
			continue
		}
		if typ != "" {
			return "", false, errors.Wrapf(ErrUnsupportedType, "avro %s", raw)
		}
		typ = memberName
	}
	return typ, nullable, nil
}
