package spannerorm

import (
	"fmt"
	"reflect"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner"
)

// Key identifies a single row by its primary key columns
type Key map[string]interface{}

// decodeRow scans a result row into a model struct, fills any included
// relationships and marks the instance persisted with a snapshot of the
// loaded values.
func decodeRow(md *Metadata, reg *Registry, row *spanner.Row, dest reflect.Value) error {
	for i, name := range row.ColumnNames() {
		if f, ok := md.fields[name]; ok {
			fv := dest.Field(f.index)
			if err := row.Column(i, fv.Addr().Interface()); err != nil {
				return fmt.Errorf("failed to decode column %s of %s: %w", name, md.table, err)
			}
			continue
		}
		if rel, ok := md.relations[name]; ok {
			if err := decodeRelation(rel, reg, row, i, dest); err != nil {
				return err
			}
			continue
		}
		return validationError("result column %s does not map to table %s", name, md.table)
	}
	baseOf(md, dest).markPersisted(snapshot(md, dest))
	return nil
}

func decodeRelation(rel *Relationship, reg *Registry, row *spanner.Row, i int, dest reflect.Value) error {
	var rows []spanner.NullRow
	if err := row.Column(i, &rows); err != nil {
		return fmt.Errorf("failed to decode relationship %s: %w", rel.Field, err)
	}
	tmd, err := reg.metadataForType(rel.elemType)
	if err != nil {
		return err
	}
	fv := dest.Field(rel.fieldIndex)
	if rel.Single {
		if len(rows) > 1 {
			return validationError("relationship %s expects at most one row, got %d", rel.Field, len(rows))
		}
		if len(rows) == 0 {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		item := reflect.New(rel.elemType)
		if err := decodeRow(tmd, reg, &rows[0].Row, item.Elem()); err != nil {
			return err
		}
		fv.Set(item)
		return nil
	}
	out := reflect.MakeSlice(fv.Type(), 0, len(rows))
	for n := range rows {
		item := reflect.New(rel.elemType).Elem()
		if err := decodeRow(tmd, reg, &rows[n].Row, item); err != nil {
			return err
		}
		out = reflect.Append(out, item)
	}
	fv.Set(out)
	return nil
}

// baseOf returns the embedded Base of a model struct value
func baseOf(md *Metadata, v reflect.Value) *Base {
	return v.Field(md.baseIndex).Addr().Interface().(*Base)
}

// snapshot copies the current column values for change tracking
func snapshot(md *Metadata, v reflect.Value) map[string]interface{} {
	vals := make(map[string]interface{}, len(md.columns))
	for _, col := range md.columns {
		f := md.fields[col]
		vals[col] = copyValue(v.Field(f.index).Interface())
	}
	return vals
}

// copyValue clones slice and pointer values so later edits to the model do
// not alias the snapshot
func copyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		if x == nil {
			return v
		}
		out := make([]byte, len(x))
		copy(out, x)
		return out
	case []string:
		if x == nil {
			return v
		}
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []int64:
		if x == nil {
			return v
		}
		out := make([]int64, len(x))
		copy(out, x)
		return out
	case *bool:
		if x == nil {
			return v
		}
		c := *x
		return &c
	case *int64:
		if x == nil {
			return v
		}
		c := *x
		return &c
	case *float64:
		if x == nil {
			return v
		}
		c := *x
		return &c
	case *string:
		if x == nil {
			return v
		}
		c := *x
		return &c
	case *time.Time:
		if x == nil {
			return v
		}
		c := *x
		return &c
	case *civil.Date:
		if x == nil {
			return v
		}
		c := *x
		return &c
	}
	return v
}

// changedColumns lists columns whose current value differs from the loaded
// snapshot, in column order
func changedColumns(md *Metadata, v reflect.Value, loaded map[string]interface{}) []string {
	var out []string
	for _, col := range md.columns {
		f := md.fields[col]
		prev, ok := loaded[col]
		if !ok {
			out = append(out, col)
			continue
		}
		if !reflect.DeepEqual(v.Field(f.index).Interface(), prev) {
			out = append(out, col)
		}
	}
	return out
}

// writeValues validates and collects the values of cols in order. Columns
// marked commit_ts are written with the commit timestamp sentinel.
func writeValues(md *Metadata, v reflect.Value, cols []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		f, ok := md.fields[col]
		if !ok {
			return nil, validationError("table %s has no column %s", md.table, col)
		}
		if f.CommitTS {
			out = append(out, spanner.CommitTimestamp)
			continue
		}
		val := v.Field(f.index).Interface()
		if err := f.Validate(val); err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// primaryKey builds the positional key of a model instance. Primary key
// values must not be NULL.
func primaryKey(md *Metadata, v reflect.Value) (spanner.Key, error) {
	key := make(spanner.Key, 0, len(md.pks))
	for _, col := range md.pks {
		f := md.fields[col]
		val := v.Field(f.index).Interface()
		ok, null := f.accepts(val)
		if !ok || null {
			return nil, validationError("primary key column %s of %s has no value", col, md.table)
		}
		key = append(key, val)
	}
	return key, nil
}

// keyFromMap builds a positional key from a Key map. Every primary key column
// must be present and nothing else.
func keyFromMap(md *Metadata, k Key) (spanner.Key, error) {
	key := make(spanner.Key, 0, len(md.pks))
	for _, col := range md.pks {
		val, ok := k[col]
		if !ok {
			return nil, validationError("key for %s is missing primary key column %s", md.table, col)
		}
		f := md.fields[col]
		if err := f.Validate(val); err != nil {
			return nil, err
		}
		key = append(key, val)
	}
	if len(k) != len(md.pks) {
		for name := range k {
			if f, ok := md.fields[name]; !ok || !f.PrimaryKey {
				return nil, validationError("%s is not a primary key column of %s", name, md.table)
			}
		}
	}
	return key, nil
}

// pkUnchanged verifies that the primary key of a loaded instance still
// matches its snapshot
func pkUnchanged(md *Metadata, v reflect.Value, loaded map[string]interface{}) error {
	for _, col := range md.pks {
		f := md.fields[col]
		prev, ok := loaded[col]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(v.Field(f.index).Interface(), prev) {
			return validationError("primary key column %s of a loaded %s row cannot change", col, md.table)
		}
	}
	return nil
}
