package spannerorm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// querySegment buckets conditions by the query clause they affect
type querySegment int

const (
	segmentWhere querySegment = iota
	segmentOrder
	segmentLimit
	segmentInclude
)

// Condition narrows, orders, limits or augments a query. Conditions are built
// with the package constructors and are validated against the model's
// metadata before any SQL is generated.
type Condition interface {
	bind(md *Metadata, reg *Registry) error
	segment() querySegment
	appendSQL(sb *strings.Builder, qual string, p *params)
}

// params accumulates query parameters under names unique within a statement
type params struct {
	n int
	m map[string]interface{}
}

func newParams() *params {
	return &params{m: make(map[string]interface{})}
}

// add registers v under a name derived from column and returns its
// placeholder
func (p *params) add(column string, v interface{}) string {
	name := fmt.Sprintf("%s%d", strings.ToLower(column), p.n)
	p.n++
	p.m[name] = v
	return "@" + name
}

const (
	opEqual          = "="
	opNotEqual       = "!="
	opGreaterThan    = ">"
	opGreaterOrEqual = ">="
	opLessThan       = "<"
	opLessOrEqual    = "<="
	opLike           = "LIKE"
)

type comparison struct {
	column string
	op     string
	value  interface{}
}

// EqualTo matches rows whose column equals value. A nil value matches NULL.
func EqualTo(column string, value interface{}) Condition {
	return &comparison{column: column, op: opEqual, value: value}
}

// NotEqualTo matches rows whose column differs from value. A nil value
// matches rows where the column is not NULL.
func NotEqualTo(column string, value interface{}) Condition {
	return &comparison{column: column, op: opNotEqual, value: value}
}

// GreaterThan matches rows whose column is greater than value
func GreaterThan(column string, value interface{}) Condition {
	return &comparison{column: column, op: opGreaterThan, value: value}
}

// GreaterOrEqual matches rows whose column is greater than or equal to value
func GreaterOrEqual(column string, value interface{}) Condition {
	return &comparison{column: column, op: opGreaterOrEqual, value: value}
}

// LessThan matches rows whose column is less than value
func LessThan(column string, value interface{}) Condition {
	return &comparison{column: column, op: opLessThan, value: value}
}

// LessOrEqual matches rows whose column is less than or equal to value
func LessOrEqual(column string, value interface{}) Condition {
	return &comparison{column: column, op: opLessOrEqual, value: value}
}

// Like matches rows whose column matches the LIKE pattern
func Like(column string, pattern string) Condition {
	return &comparison{column: column, op: opLike, value: pattern}
}

func (c *comparison) segment() querySegment { return segmentWhere }

func (c *comparison) bind(md *Metadata, reg *Registry) error {
	f, ok := md.Field(c.column)
	if !ok {
		return validationError("table %s has no column %s", md.Table(), c.column)
	}
	if c.value == nil {
		if c.op != opEqual && c.op != opNotEqual {
			return validationError("column %s: NULL only works with EqualTo and NotEqualTo", c.column)
		}
		if !f.Nullable {
			return validationError("column %s does not accept NULL", c.column)
		}
		return nil
	}
	return f.Validate(c.value)
}

func (c *comparison) appendSQL(sb *strings.Builder, qual string, p *params) {
	if c.value == nil {
		if c.op == opEqual {
			fmt.Fprintf(sb, "%s.%s IS NULL", qual, c.column)
		} else {
			fmt.Fprintf(sb, "%s.%s IS NOT NULL", qual, c.column)
		}
		return
	}
	fmt.Fprintf(sb, "%s.%s %s %s", qual, c.column, c.op, p.add(c.column, c.value))
}

type inList struct {
	column string
	values interface{}
	negate bool
	param  interface{}
}

// InList matches rows whose column equals any element of values. values must
// be a non-empty slice of the column's Go type.
func InList(column string, values interface{}) Condition {
	return &inList{column: column, values: values}
}

// NotInList matches rows whose column equals no element of values
func NotInList(column string, values interface{}) Condition {
	return &inList{column: column, values: values, negate: true}
}

func (c *inList) segment() querySegment { return segmentWhere }

func (c *inList) bind(md *Metadata, reg *Registry) error {
	f, ok := md.Field(c.column)
	if !ok {
		return validationError("table %s has no column %s", md.Table(), c.column)
	}
	var canon reflect.Type
	switch f.Type {
	case TypeBool:
		canon = typeOfBool
	case TypeInt64:
		canon = typeOfInt64
	case TypeFloat64:
		canon = typeOfFloat64
	case TypeString:
		canon = typeOfString
	case TypeBytes:
		canon = typeOfBytes
	case TypeTimestamp:
		canon = typeOfTime
	case TypeDate:
		canon = typeOfDate
	default:
		return validationError("column %s: list conditions are not supported for %s columns", c.column, f.Type)
	}
	rv := reflect.ValueOf(c.values)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return validationError("column %s: list condition requires a slice, got %T", c.column, c.values)
	}
	if rv.Len() == 0 {
		return validationError("column %s: list condition requires at least one value", c.column)
	}
	out := reflect.MakeSlice(reflect.SliceOf(canon), 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev := rv.Index(i)
		if ev.Kind() == reflect.Interface {
			ev = ev.Elem()
		}
		if !ev.IsValid() {
			return validationError("column %s: NULL cannot appear in a value list", c.column)
		}
		val := ev.Interface()
		if f.Type == TypeInt64 {
			if x, isInt := val.(int); isInt {
				val = int64(x)
			}
		}
		if reflect.TypeOf(val) != canon {
			return validationError("column %s of type %s cannot hold %T in a value list", c.column, f.Type, val)
		}
		if f.Type == TypeBytes && val.([]byte) == nil {
			return validationError("column %s: NULL cannot appear in a value list", c.column)
		}
		out = reflect.Append(out, reflect.ValueOf(val))
	}
	c.param = out.Interface()
	return nil
}

func (c *inList) appendSQL(sb *strings.Builder, qual string, p *params) {
	if c.negate {
		fmt.Fprintf(sb, "%s.%s NOT IN UNNEST(%s)", qual, c.column, p.add(c.column, c.param))
		return
	}
	fmt.Fprintf(sb, "%s.%s IN UNNEST(%s)", qual, c.column, p.add(c.column, c.param))
}

// OrderTerm pairs a column with a sort direction
type OrderTerm struct {
	Column string
	Desc   bool
}

// Asc sorts ascending on column
func Asc(column string) OrderTerm {
	return OrderTerm{Column: column}
}

// Desc sorts descending on column
func Desc(column string) OrderTerm {
	return OrderTerm{Column: column, Desc: true}
}

type orderBy struct {
	terms []OrderTerm
}

// OrderBy sorts results by the given terms. A query accepts at most one
// OrderBy.
func OrderBy(terms ...OrderTerm) Condition {
	return &orderBy{terms: terms}
}

func (c *orderBy) segment() querySegment { return segmentOrder }

func (c *orderBy) bind(md *Metadata, reg *Registry) error {
	if len(c.terms) == 0 {
		return validationError("OrderBy requires at least one term")
	}
	for _, term := range c.terms {
		if _, ok := md.Field(term.Column); !ok {
			return validationError("table %s has no column %s", md.Table(), term.Column)
		}
	}
	return nil
}

func (c *orderBy) appendSQL(sb *strings.Builder, qual string, p *params) {
	for i, term := range c.terms {
		if i > 0 {
			sb.WriteString(", ")
		}
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(sb, "%s.%s %s", qual, term.Column, dir)
	}
}

type limit struct {
	count  int64
	offset int64
}

// Limit caps the number of returned rows. A query accepts at most one Limit.
func Limit(count int64) Condition {
	return &limit{count: count}
}

// LimitOffset caps the number of returned rows after skipping offset rows
func LimitOffset(count, offset int64) Condition {
	return &limit{count: count, offset: offset}
}

func (c *limit) segment() querySegment { return segmentLimit }

func (c *limit) bind(md *Metadata, reg *Registry) error {
	if c.count < 1 {
		return validationError("limit must be at least 1, got %d", c.count)
	}
	if c.offset < 0 {
		return validationError("offset cannot be negative, got %d", c.offset)
	}
	return nil
}

func (c *limit) appendSQL(sb *strings.Builder, qual string, p *params) {
	fmt.Fprintf(sb, "LIMIT %s", p.add("limit", c.count))
	if c.offset > 0 {
		fmt.Fprintf(sb, " OFFSET %s", p.add("offset", c.offset))
	}
}

type includes struct {
	field  string
	conds  []Condition
	rel    *Relationship
	target *Metadata
}

// Includes loads the named relationship's rows together with each result row.
// Extra conditions narrow the related rows and must be filter conditions
// against the target model.
func Includes(field string, conds ...Condition) Condition {
	return &includes{field: field, conds: conds}
}

func (c *includes) segment() querySegment { return segmentInclude }

func (c *includes) bind(md *Metadata, reg *Registry) error {
	rel, ok := md.Relation(c.field)
	if !ok {
		return validationError("model %s has no relationship %s", md.typ.Name(), c.field)
	}
	target, err := reg.metadataForType(rel.elemType)
	if err != nil {
		return err
	}
	for _, dst := range rel.Constraints {
		if _, ok := target.Field(dst); !ok {
			return validationError("relationship %s references unknown column %s on %s", c.field, dst, target.Table())
		}
	}
	for _, cond := range c.conds {
		if cond.segment() != segmentWhere {
			return validationError("relationship %s accepts only filter conditions", c.field)
		}
		if err := cond.bind(target, reg); err != nil {
			return err
		}
	}
	c.rel = rel
	c.target = target
	return nil
}

func (c *includes) appendSQL(sb *strings.Builder, qual string, p *params) {
	target := c.target.Table()
	sb.WriteString("ARRAY(SELECT AS STRUCT ")
	for i, col := range c.target.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s.%s", target, col)
	}
	fmt.Fprintf(sb, " FROM %s WHERE ", target)

	origins := make([]string, 0, len(c.rel.Constraints))
	for origin := range c.rel.Constraints {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	for i, origin := range origins {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(sb, "%s.%s = %s.%s", target, c.rel.Constraints[origin], qual, origin)
	}
	for _, cond := range c.conds {
		sb.WriteString(" AND ")
		cond.appendSQL(sb, target, p)
	}
	fmt.Fprintf(sb, ") AS %s", c.field)
}
