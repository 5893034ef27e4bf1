package spannerorm

import (
	"reflect"
	"strings"
)

// TableNamer is the one interface every model must implement
type TableNamer interface {
	TableName() string
}

// Indexer is implemented by models that declare secondary indexes
type Indexer interface {
	Indexes() []Index
}

// Relater is implemented by models that declare relationships
type Relater interface {
	Relationships() []Relationship
}

// Interleaved is implemented by models whose table is interleaved in a
// parent table
type Interleaved interface {
	ParentTable() string
}

// Metadata holds the schema derived from a model's struct tags and optional
// interfaces
type Metadata struct {
	table     string
	parent    string
	typ       reflect.Type
	baseIndex int
	fields    map[string]*Field
	columns   []string
	pks       []string
	indexes   []Index
	relations map[string]*Relationship
	relNames  []string
}

// Table returns the Spanner table name
func (m *Metadata) Table() string { return m.table }

// Parent returns the interleave parent table name, empty if none
func (m *Metadata) Parent() string { return m.parent }

// Columns returns the column names in declaration order
func (m *Metadata) Columns() []string {
	out := make([]string, len(m.columns))
	copy(out, m.columns)
	return out
}

// PrimaryKeys returns the primary key column names in declaration order
func (m *Metadata) PrimaryKeys() []string {
	out := make([]string, len(m.pks))
	copy(out, m.pks)
	return out
}

// Field returns the field for a column name
func (m *Metadata) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Fields returns the fields in column order
func (m *Metadata) Fields() []*Field {
	out := make([]*Field, 0, len(m.columns))
	for _, col := range m.columns {
		out = append(out, m.fields[col])
	}
	return out
}

// Indexes returns the declared secondary indexes
func (m *Metadata) Indexes() []Index {
	out := make([]Index, len(m.indexes))
	copy(out, m.indexes)
	return out
}

// Relation returns the relationship declared for a field name
func (m *Metadata) Relation(field string) (*Relationship, bool) {
	r, ok := m.relations[field]
	return r, ok
}

// Relations returns the declared relationships in declaration order
func (m *Metadata) Relations() []*Relationship {
	out := make([]*Relationship, 0, len(m.relNames))
	for _, name := range m.relNames {
		out = append(out, m.relations[name])
	}
	return out
}

// New returns a pointer to a fresh zero value of the model
func (m *Metadata) New() interface{} {
	return reflect.New(m.typ).Interface()
}

var typeOfBase = reflect.TypeOf(Base{})

// buildMetadata derives metadata from a model's struct definition
func buildMetadata(model TableNamer) (*Metadata, error) {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, validationError("model %T is not a struct", model)
	}
	md := &Metadata{
		table:     model.TableName(),
		typ:       t,
		baseIndex: -1,
		fields:    make(map[string]*Field),
		relations: make(map[string]*Relationship),
	}
	if md.table == "" {
		return nil, validationError("model %s has an empty table name", t.Name())
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == typeOfBase {
			md.baseIndex = i
			continue
		}
		tag := sf.Tag.Get("spanner")
		if tag == "-" || strings.HasPrefix(tag, "-,") {
			continue
		}
		if !sf.IsExported() {
			if tag != "" {
				return nil, validationError("model %s field %s: spanner tag on unexported field", t.Name(), sf.Name)
			}
			continue
		}
		f, err := buildField(t.Name(), sf, i)
		if err != nil {
			return nil, err
		}
		if _, dup := md.fields[f.Name]; dup {
			return nil, validationError("model %s declares column %s twice", t.Name(), f.Name)
		}
		md.fields[f.Name] = f
		md.columns = append(md.columns, f.Name)
		if f.PrimaryKey {
			md.pks = append(md.pks, f.Name)
		}
	}

	if md.baseIndex < 0 {
		return nil, validationError("model %s must embed spannerorm.Base", t.Name())
	}
	if len(md.columns) == 0 {
		return nil, validationError("model %s declares no columns", t.Name())
	}
	if len(md.pks) == 0 {
		return nil, validationError("model %s declares no primary key", t.Name())
	}

	if iv, ok := model.(Interleaved); ok {
		md.parent = iv.ParentTable()
	}
	if ix, ok := model.(Indexer); ok {
		for _, idx := range ix.Indexes() {
			if err := md.addIndex(idx); err != nil {
				return nil, err
			}
		}
	}
	if rl, ok := model.(Relater); ok {
		for _, rel := range rl.Relationships() {
			if err := md.addRelationship(t, rel); err != nil {
				return nil, err
			}
		}
	}
	return md, nil
}

func buildField(model string, sf reflect.StructField, index int) (*Field, error) {
	name, opts := parseTag(sf.Tag.Get("spanner"))
	if name == "" {
		name = sf.Name
	}
	ft, nullable, err := fieldTypeFor(sf.Type)
	if err != nil {
		return nil, validationError("model %s field %s: %v", model, sf.Name, err)
	}
	f := &Field{
		Name:     name,
		Type:     ft,
		Nullable: nullable,
		goType:   sf.Type,
		index:    index,
	}
	for _, opt := range opts {
		switch opt {
		case "primary_key":
			f.PrimaryKey = true
		case "nullable":
			switch ft {
			case TypeBytes, TypeStringArray, TypeInt64Array:
				f.Nullable = true
			default:
				if !nullable {
					return nil, validationError(
						"model %s column %s: use a pointer or spanner.Null type for a nullable %s column",
						model, name, ft)
				}
			}
		case "commit_ts":
			if ft != TypeTimestamp {
				return nil, validationError("model %s column %s: commit_ts requires a TIMESTAMP column", model, name)
			}
			f.CommitTS = true
		default:
			return nil, validationError("model %s column %s: unknown tag option %q", model, name, opt)
		}
	}
	return f, nil
}

func (m *Metadata) addIndex(idx Index) error {
	if idx.Name == "" {
		return validationError("model %s declares an index without a name", m.typ.Name())
	}
	if len(idx.Columns) == 0 {
		return validationError("index %s has no columns", idx.Name)
	}
	for _, col := range append(append([]string{}, idx.Columns...), idx.Storing...) {
		if _, ok := m.fields[col]; !ok {
			return validationError("index %s references unknown column %s", idx.Name, col)
		}
	}
	for _, existing := range m.indexes {
		if existing.Name == idx.Name {
			return validationError("model %s declares index %s twice", m.typ.Name(), idx.Name)
		}
	}
	m.indexes = append(m.indexes, idx)
	return nil
}

func (m *Metadata) addRelationship(t reflect.Type, rel Relationship) error {
	if rel.Field == "" {
		return validationError("model %s declares a relationship without a field name", t.Name())
	}
	if rel.Target == nil {
		return validationError("relationship %s has no target model", rel.Field)
	}
	if len(rel.Constraints) == 0 {
		return validationError("relationship %s has no constraints", rel.Field)
	}
	sf, ok := t.FieldByName(rel.Field)
	if !ok || !sf.IsExported() {
		return validationError("model %s has no exported field %s for its relationship", t.Name(), rel.Field)
	}
	if sf.Tag.Get("spanner") != "-" {
		return validationError("relationship field %s must be tagged `spanner:\"-\"`", rel.Field)
	}

	tt := reflect.TypeOf(rel.Target)
	for tt.Kind() == reflect.Ptr {
		tt = tt.Elem()
	}
	if tt.Kind() != reflect.Struct {
		return validationError("relationship %s target %T is not a struct", rel.Field, rel.Target)
	}
	if rel.Single {
		if sf.Type.Kind() != reflect.Ptr || sf.Type.Elem() != tt {
			return validationError("relationship field %s must be *%s for a single relationship", rel.Field, tt.Name())
		}
	} else {
		if sf.Type.Kind() != reflect.Slice || sf.Type.Elem() != tt {
			return validationError("relationship field %s must be []%s", rel.Field, tt.Name())
		}
	}
	for origin := range rel.Constraints {
		if _, ok := m.fields[origin]; !ok {
			return validationError("relationship %s references unknown column %s", rel.Field, origin)
		}
	}
	if _, dup := m.relations[rel.Field]; dup {
		return validationError("model %s declares relationship %s twice", t.Name(), rel.Field)
	}

	stored := rel
	stored.fieldIndex = sf.Index[0]
	stored.targetTable = rel.Target.TableName()
	stored.elemType = tt
	m.relations[rel.Field] = &stored
	m.relNames = append(m.relNames, rel.Field)
	return nil
}

func parseTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	var opts []string
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			opts = append(opts, p)
		}
	}
	return name, opts
}
