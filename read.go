package spannerorm

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"cloud.google.com/go/spanner"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

// ops implements the model operations over either a transaction or the
// client's one-shot reads and commits
type ops struct {
	reader spannerReader
	apply  func(ctx context.Context, ms []*spanner.Mutation) error
	reg    *Registry
	log    *zap.Logger
}

// instance pairs a model's metadata with its addressable struct value
type instance struct {
	md  *Metadata
	val reflect.Value
}

func (o ops) instanceOf(model interface{}) (instance, error) {
	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return instance{}, validationError("model must be a non-nil struct pointer, got %T", model)
	}
	md, err := o.reg.metadataForType(rv.Elem().Type())
	if err != nil {
		return instance{}, err
	}
	return instance{md: md, val: rv.Elem()}, nil
}

// sliceDest describes a resolved *[]T or *[]*T destination
type sliceDest struct {
	md    *Metadata
	slice reflect.Value
	elem  reflect.Type
	ptr   bool
}

func (o ops) sliceOf(dest interface{}) (sliceDest, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return sliceDest{}, validationError("dest must be a pointer to a slice of models, got %T", dest)
	}
	sl := rv.Elem()
	et := sl.Type().Elem()
	ptr := et.Kind() == reflect.Ptr
	if ptr {
		et = et.Elem()
	}
	if et.Kind() != reflect.Struct {
		return sliceDest{}, validationError("dest must be a pointer to a slice of models, got %T", dest)
	}
	md, err := o.reg.metadataForType(et)
	if err != nil {
		return sliceDest{}, err
	}
	return sliceDest{md: md, slice: sl, elem: et, ptr: ptr}, nil
}

// All loads every row of the model's table into dest, a pointer to a slice
// of a registered model
func (o ops) All(ctx context.Context, dest interface{}) error {
	return o.Where(ctx, dest)
}

// Where loads the rows matching conds into dest
func (o ops) Where(ctx context.Context, dest interface{}, conds ...Condition) error {
	sd, err := o.sliceOf(dest)
	if err != nil {
		return err
	}
	q, err := newSelectQuery(sd.md, o.reg, conds)
	if err != nil {
		return err
	}
	return o.collect(sd, o.reader.Query(ctx, q.statement()))
}

// WhereEqual loads the rows whose columns equal every entry of filters
func (o ops) WhereEqual(ctx context.Context, dest interface{}, filters map[string]interface{}) error {
	return o.Where(ctx, dest, equalityConds(filters)...)
}

// Find loads the row identified by key into model. It returns ErrNotFound
// when the row does not exist.
func (o ops) Find(ctx context.Context, model interface{}, key Key) error {
	inst, err := o.instanceOf(model)
	if err != nil {
		return err
	}
	k, err := keyFromMap(inst.md, key)
	if err != nil {
		return err
	}
	return o.readKey(ctx, inst, k)
}

// FindMulti loads the rows identified by keys into dest. Keys without a
// matching row are simply absent from the result.
func (o ops) FindMulti(ctx context.Context, dest interface{}, keys []Key) error {
	sd, err := o.sliceOf(dest)
	if err != nil {
		return err
	}
	ks := make([]spanner.Key, 0, len(keys))
	for _, key := range keys {
		k, err := keyFromMap(sd.md, key)
		if err != nil {
			return err
		}
		ks = append(ks, k)
	}
	iter := o.reader.Read(ctx, sd.md.table, spanner.KeySetFromKeys(ks...), sd.md.columns)
	return o.collect(sd, iter)
}

// Reload re-reads the row backing model. It returns ErrNotFound when the row
// no longer exists.
func (o ops) Reload(ctx context.Context, model interface{}) error {
	inst, err := o.instanceOf(model)
	if err != nil {
		return err
	}
	k, err := primaryKey(inst.md, inst.val)
	if err != nil {
		return err
	}
	return o.readKey(ctx, inst, k)
}

// Count returns the number of rows matching the filter conditions
func (o ops) Count(ctx context.Context, model interface{}, conds ...Condition) (int64, error) {
	md, err := o.reg.Metadata(model)
	if err != nil {
		return 0, err
	}
	q, err := newSelectQuery(md, o.reg, conds)
	if err != nil {
		return 0, err
	}
	stmt, err := q.countStatement()
	if err != nil {
		return 0, err
	}
	iter := o.reader.Query(ctx, stmt)
	defer iter.Stop()
	row, err := iter.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", md.table, mapSpannerError(err))
	}
	var n int64
	if err := row.Column(0, &n); err != nil {
		return 0, fmt.Errorf("failed to decode count of %s: %w", md.table, err)
	}
	return n, nil
}

// CountEqual returns the number of rows whose columns equal every entry of
// filters
func (o ops) CountEqual(ctx context.Context, model interface{}, filters map[string]interface{}) (int64, error) {
	return o.Count(ctx, model, equalityConds(filters)...)
}

// Each streams matching rows one at a time into fn. prototype names the model
// type; fn receives a fresh pointer to it per row and stops the scan by
// returning an error.
func (o ops) Each(ctx context.Context, prototype interface{}, fn func(interface{}) error, conds ...Condition) error {
	md, err := o.reg.Metadata(prototype)
	if err != nil {
		return err
	}
	q, err := newSelectQuery(md, o.reg, conds)
	if err != nil {
		return err
	}
	iter := o.reader.Query(ctx, q.statement())
	defer iter.Stop()
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", md.table, mapSpannerError(err))
		}
		item := reflect.New(md.typ)
		if err := decodeRow(md, o.reg, row, item.Elem()); err != nil {
			return err
		}
		if err := fn(item.Interface()); err != nil {
			return err
		}
	}
}

func (o ops) readKey(ctx context.Context, inst instance, k spanner.Key) error {
	iter := o.reader.Read(ctx, inst.md.table, k, inst.md.columns)
	defer iter.Stop()
	row, err := iter.Next()
	if err == iterator.Done {
		return fmt.Errorf("table %s key %v: %w", inst.md.table, k, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inst.md.table, mapSpannerError(err))
	}
	return decodeRow(inst.md, o.reg, row, inst.val)
}

func (o ops) collect(sd sliceDest, iter *spanner.RowIterator) error {
	defer iter.Stop()
	out := reflect.MakeSlice(sd.slice.Type(), 0, 8)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", sd.md.table, mapSpannerError(err))
		}
		item := reflect.New(sd.elem)
		if err := decodeRow(sd.md, o.reg, row, item.Elem()); err != nil {
			return err
		}
		if sd.ptr {
			out = reflect.Append(out, item)
		} else {
			out = reflect.Append(out, item.Elem())
		}
	}
	sd.slice.Set(out)
	return nil
}

// equalityConds turns a filter map into EqualTo conditions in column order
func equalityConds(filters map[string]interface{}) []Condition {
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	conds := make([]Condition, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, EqualTo(col, filters[col]))
	}
	return conds
}

// All loads every row of the model's table through a single-use snapshot
func (c *Client) All(ctx context.Context, dest interface{}) error {
	return c.single().All(ctx, dest)
}

// Where loads the rows matching conds through a single-use snapshot
func (c *Client) Where(ctx context.Context, dest interface{}, conds ...Condition) error {
	return c.single().Where(ctx, dest, conds...)
}

// WhereEqual loads the rows whose columns equal every entry of filters
func (c *Client) WhereEqual(ctx context.Context, dest interface{}, filters map[string]interface{}) error {
	return c.single().WhereEqual(ctx, dest, filters)
}

// Find loads the row identified by key into model. It returns ErrNotFound
// when the row does not exist.
func (c *Client) Find(ctx context.Context, model interface{}, key Key) error {
	return c.single().Find(ctx, model, key)
}

// FindMulti loads the rows identified by keys into dest. Keys without a
// matching row are simply absent from the result.
func (c *Client) FindMulti(ctx context.Context, dest interface{}, keys []Key) error {
	return c.single().FindMulti(ctx, dest, keys)
}

// Reload re-reads the row backing model. It returns ErrNotFound when the row
// no longer exists.
func (c *Client) Reload(ctx context.Context, model interface{}) error {
	return c.single().Reload(ctx, model)
}

// Count returns the number of rows matching the filter conditions
func (c *Client) Count(ctx context.Context, model interface{}, conds ...Condition) (int64, error) {
	return c.single().Count(ctx, model, conds...)
}

// CountEqual returns the number of rows whose columns equal every entry of
// filters
func (c *Client) CountEqual(ctx context.Context, model interface{}, filters map[string]interface{}) (int64, error) {
	return c.single().CountEqual(ctx, model, filters)
}

// Each streams matching rows one at a time into fn through a single-use
// snapshot
func (c *Client) Each(ctx context.Context, prototype interface{}, fn func(interface{}) error, conds ...Condition) error {
	return c.single().Each(ctx, prototype, fn, conds...)
}

// Query runs an arbitrary statement and decodes each row into dest, a
// pointer to a slice of any struct with spanner tagged fields. Unlike the
// model operations it does not consult the registry.
func (c *Client) Query(ctx context.Context, dest interface{}, stmt spanner.Statement) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return validationError("dest must be a pointer to a slice of structs, got %T", dest)
	}
	sl := rv.Elem()
	et := sl.Type().Elem()
	if et.Kind() != reflect.Struct {
		return validationError("dest must be a pointer to a slice of structs, got %T", dest)
	}
	iter := c.sc.Single().Query(ctx, stmt)
	defer iter.Stop()
	out := reflect.MakeSlice(sl.Type(), 0, 8)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("query failed: %w", mapSpannerError(err))
		}
		item := reflect.New(et)
		if err := row.ToStruct(item.Interface()); err != nil {
			return fmt.Errorf("failed to decode row: %w", err)
		}
		out = reflect.Append(out, item.Elem())
	}
	sl.Set(out)
	return nil
}
