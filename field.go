package spannerorm

import (
	"fmt"
	"reflect"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner"
)

// FieldType enumerates the Spanner column types a model field can map to
type FieldType int

const (
	TypeBool FieldType = iota + 1
	TypeInt64
	TypeFloat64
	TypeString
	TypeBytes
	TypeTimestamp
	TypeDate
	TypeStringArray
	TypeInt64Array
)

// String returns the GoogleSQL name of the type
func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt64:
		return "INT64"
	case TypeFloat64:
		return "FLOAT64"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDate:
		return "DATE"
	case TypeStringArray:
		return "ARRAY<STRING>"
	case TypeInt64Array:
		return "ARRAY<INT64>"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// DDL returns the column type clause used in CREATE TABLE statements
func (t FieldType) DDL() string {
	switch t {
	case TypeString:
		return "STRING(MAX)"
	case TypeBytes:
		return "BYTES(MAX)"
	case TypeStringArray:
		return "ARRAY<STRING(MAX)>"
	case TypeInt64Array:
		return "ARRAY<INT64>"
	default:
		return t.String()
	}
}

// Field describes one column of a registered model
type Field struct {
	// Name is the Spanner column name
	Name string
	// Type is the column type
	Type FieldType
	// Nullable reports whether the column accepts NULL
	Nullable bool
	// PrimaryKey marks the column as part of the primary key
	PrimaryKey bool
	// CommitTS marks a timestamp column that is written with the commit
	// timestamp on every insert and update
	CommitTS bool

	goType reflect.Type
	index  int
}

// Validate checks that v can be stored in the column. It is used for values
// that arrive through maps and conditions rather than typed struct fields.
func (f *Field) Validate(v interface{}) error {
	if v == nil {
		if !f.Nullable {
			return validationError("column %s does not accept NULL", f.Name)
		}
		return nil
	}
	ok, null := f.accepts(v)
	if !ok {
		return validationError("column %s of type %s cannot hold %T", f.Name, f.Type, v)
	}
	if null && !f.Nullable {
		return validationError("column %s does not accept NULL", f.Name)
	}
	return nil
}

// accepts reports whether the dynamic type of v matches the column type and
// whether v represents NULL
func (f *Field) accepts(v interface{}) (ok, null bool) {
	switch f.Type {
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return true, false
		case *bool:
			return true, x == nil
		case spanner.NullBool:
			return true, !x.Valid
		}
	case TypeInt64:
		switch x := v.(type) {
		case int64, int:
			return true, false
		case *int64:
			return true, x == nil
		case spanner.NullInt64:
			return true, !x.Valid
		}
	case TypeFloat64:
		switch x := v.(type) {
		case float64:
			return true, false
		case *float64:
			return true, x == nil
		case spanner.NullFloat64:
			return true, !x.Valid
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return true, false
		case *string:
			return true, x == nil
		case spanner.NullString:
			return true, !x.Valid
		}
	case TypeBytes:
		if x, isBytes := v.([]byte); isBytes {
			return true, x == nil
		}
	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return true, false
		case *time.Time:
			return true, x == nil
		case spanner.NullTime:
			return true, !x.Valid
		}
	case TypeDate:
		switch x := v.(type) {
		case civil.Date:
			return true, false
		case *civil.Date:
			return true, x == nil
		case spanner.NullDate:
			return true, !x.Valid
		}
	case TypeStringArray:
		if x, isSlice := v.([]string); isSlice {
			return true, x == nil
		}
	case TypeInt64Array:
		if x, isSlice := v.([]int64); isSlice {
			return true, x == nil
		}
	}
	return false, false
}

var (
	typeOfBool        = reflect.TypeOf(false)
	typeOfInt64       = reflect.TypeOf(int64(0))
	typeOfFloat64     = reflect.TypeOf(float64(0))
	typeOfString      = reflect.TypeOf("")
	typeOfBytes       = reflect.TypeOf([]byte(nil))
	typeOfTime        = reflect.TypeOf(time.Time{})
	typeOfDate        = reflect.TypeOf(civil.Date{})
	typeOfStringSlice = reflect.TypeOf([]string(nil))
	typeOfInt64Slice  = reflect.TypeOf([]int64(nil))
	typeOfNullBool    = reflect.TypeOf(spanner.NullBool{})
	typeOfNullInt64   = reflect.TypeOf(spanner.NullInt64{})
	typeOfNullFloat64 = reflect.TypeOf(spanner.NullFloat64{})
	typeOfNullString  = reflect.TypeOf(spanner.NullString{})
	typeOfNullTime    = reflect.TypeOf(spanner.NullTime{})
	typeOfNullDate    = reflect.TypeOf(spanner.NullDate{})
)

// fieldTypeFor derives the column type and nullability from a Go struct field
// type. Pointer and spanner.Null types map to nullable columns.
func fieldTypeFor(t reflect.Type) (FieldType, bool, error) {
	if t.Kind() == reflect.Ptr {
		ft, nullable, err := fieldTypeFor(t.Elem())
		if err != nil {
			return 0, false, err
		}
		if nullable {
			return 0, false, fmt.Errorf("unsupported field type %s", t)
		}
		return ft, true, nil
	}
	switch t {
	case typeOfBool:
		return TypeBool, false, nil
	case typeOfInt64:
		return TypeInt64, false, nil
	case typeOfFloat64:
		return TypeFloat64, false, nil
	case typeOfString:
		return TypeString, false, nil
	case typeOfBytes:
		return TypeBytes, false, nil
	case typeOfTime:
		return TypeTimestamp, false, nil
	case typeOfDate:
		return TypeDate, false, nil
	case typeOfStringSlice:
		return TypeStringArray, false, nil
	case typeOfInt64Slice:
		return TypeInt64Array, false, nil
	case typeOfNullBool:
		return TypeBool, true, nil
	case typeOfNullInt64:
		return TypeInt64, true, nil
	case typeOfNullFloat64:
		return TypeFloat64, true, nil
	case typeOfNullString:
		return TypeString, true, nil
	case typeOfNullTime:
		return TypeTimestamp, true, nil
	case typeOfNullDate:
		return TypeDate, true, nil
	}
	return 0, false, fmt.Errorf("unsupported field type %s", t)
}
