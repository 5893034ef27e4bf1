package spannerorm

import (
	"context"
	"fmt"
	"reflect"

	"cloud.google.com/go/spanner"
	"go.uber.org/zap"
)

// mutator adds the write operations to ops. It is only embedded where writes
// are allowed.
type mutator struct {
	ops
}

type writeOptions struct {
	force bool
}

// WriteOption adjusts how SaveBatch writes its models
type WriteOption func(*writeOptions)

// ForceWrite makes SaveBatch upsert every row regardless of persistence
// state
func ForceWrite() WriteOption {
	return func(o *writeOptions) { o.force = true }
}

// Create inserts one row per model. Primary key values must be set and the
// write fails if a row already exists.
func (m mutator) Create(ctx context.Context, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	insts := make([]instance, 0, len(models))
	ms := make([]*spanner.Mutation, 0, len(models))
	for _, model := range models {
		inst, err := m.instanceOf(model)
		if err != nil {
			return err
		}
		mut, err := insertMutation(inst.md, inst.val)
		if err != nil {
			return err
		}
		insts = append(insts, inst)
		ms = append(ms, mut)
	}
	if err := m.commit(ctx, "insert", ms); err != nil {
		return err
	}
	refresh(insts)
	return nil
}

// Update writes the listed columns of an existing row, or every non key
// column when none are listed. The write fails if the row does not exist.
func (m mutator) Update(ctx context.Context, model interface{}, columns ...string) error {
	inst, err := m.instanceOf(model)
	if err != nil {
		return err
	}
	b := baseOf(inst.md, inst.val)
	if b.Persisted() {
		if err := pkUnchanged(inst.md, inst.val, b.loadedValues()); err != nil {
			return err
		}
	}
	cols, err := updateColumns(inst.md, columns)
	if err != nil {
		return err
	}
	mut, err := updateMutation(inst.md, inst.val, cols)
	if err != nil {
		return err
	}
	if err := m.commit(ctx, "update", []*spanner.Mutation{mut}); err != nil {
		return err
	}
	refresh([]instance{inst})
	return nil
}

// CreateOrUpdate upserts one row per model
func (m mutator) CreateOrUpdate(ctx context.Context, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	insts := make([]instance, 0, len(models))
	ms := make([]*spanner.Mutation, 0, len(models))
	for _, model := range models {
		inst, err := m.instanceOf(model)
		if err != nil {
			return err
		}
		mut, err := insertOrUpdateMutation(inst.md, inst.val)
		if err != nil {
			return err
		}
		insts = append(insts, inst)
		ms = append(ms, mut)
	}
	if err := m.commit(ctx, "upsert", ms); err != nil {
		return err
	}
	refresh(insts)
	return nil
}

// Save writes model to its table: an insert when the instance is new, an
// update of only the changed columns when it was loaded. A loaded instance
// with no changes is a no-op.
func (m mutator) Save(ctx context.Context, model interface{}) error {
	inst, err := m.instanceOf(model)
	if err != nil {
		return err
	}
	b := baseOf(inst.md, inst.val)
	if !b.Persisted() {
		mut, err := insertMutation(inst.md, inst.val)
		if err != nil {
			return err
		}
		if err := m.commit(ctx, "insert", []*spanner.Mutation{mut}); err != nil {
			return err
		}
		refresh([]instance{inst})
		return nil
	}
	if err := pkUnchanged(inst.md, inst.val, b.loadedValues()); err != nil {
		return err
	}
	changed := dropPrimaryKeys(inst.md, changedColumns(inst.md, inst.val, b.loadedValues()))
	if len(changed) == 0 {
		return nil
	}
	mut, err := updateMutation(inst.md, inst.val, appendCommitTS(inst.md, changed))
	if err != nil {
		return err
	}
	if err := m.commit(ctx, "update", []*spanner.Mutation{mut}); err != nil {
		return err
	}
	refresh([]instance{inst})
	return nil
}

// SaveBatch writes a batch of models in one commit: inserts for new
// instances, full updates for loaded ones. With ForceWrite every model is
// upserted instead. models must be a slice of registered models.
func (m mutator) SaveBatch(ctx context.Context, models interface{}, opts ...WriteOption) error {
	var wo writeOptions
	for _, o := range opts {
		o(&wo)
	}
	insts, err := m.instancesOf(models)
	if err != nil {
		return err
	}
	if len(insts) == 0 {
		return nil
	}
	ms := make([]*spanner.Mutation, 0, len(insts))
	for _, inst := range insts {
		mut, err := saveMutation(inst, wo.force)
		if err != nil {
			return err
		}
		ms = append(ms, mut)
	}
	if err := m.commit(ctx, "save batch", ms); err != nil {
		return err
	}
	refresh(insts)
	return nil
}

// Delete removes the row backing model
func (m mutator) Delete(ctx context.Context, model interface{}) error {
	inst, err := m.instanceOf(model)
	if err != nil {
		return err
	}
	k, err := primaryKey(inst.md, inst.val)
	if err != nil {
		return err
	}
	mut := spanner.Delete(inst.md.table, k)
	if err := m.commit(ctx, "delete", []*spanner.Mutation{mut}); err != nil {
		return err
	}
	baseOf(inst.md, inst.val).markUnpersisted()
	return nil
}

// DeleteBatch removes the rows backing models in one commit. models must be
// a slice of registered models.
func (m mutator) DeleteBatch(ctx context.Context, models interface{}) error {
	insts, err := m.instancesOf(models)
	if err != nil {
		return err
	}
	if len(insts) == 0 {
		return nil
	}
	var order []string
	keysByTable := make(map[string][]spanner.Key)
	for _, inst := range insts {
		k, err := primaryKey(inst.md, inst.val)
		if err != nil {
			return err
		}
		if _, seen := keysByTable[inst.md.table]; !seen {
			order = append(order, inst.md.table)
		}
		keysByTable[inst.md.table] = append(keysByTable[inst.md.table], k)
	}
	ms := make([]*spanner.Mutation, 0, len(order))
	for _, table := range order {
		ms = append(ms, spanner.Delete(table, spanner.KeySetFromKeys(keysByTable[table]...)))
	}
	if err := m.commit(ctx, "delete batch", ms); err != nil {
		return err
	}
	for _, inst := range insts {
		baseOf(inst.md, inst.val).markUnpersisted()
	}
	return nil
}

func (m mutator) commit(ctx context.Context, op string, ms []*spanner.Mutation) error {
	if err := m.apply(ctx, ms); err != nil {
		return fmt.Errorf("failed to %s: %w", op, mapSpannerError(err))
	}
	m.log.Debug("applied mutations", zap.String("op", op), zap.Int("mutations", len(ms)))
	return nil
}

// instancesOf resolves a slice of models, accepting []T, []*T, []interface{}
// holding either, and pointers to any of those
func (o ops) instancesOf(models interface{}) ([]instance, error) {
	rv := reflect.ValueOf(models)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice {
		return nil, validationError("models must be a slice of registered models, got %T", models)
	}
	out := make([]instance, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev := rv.Index(i)
		if ev.Kind() == reflect.Interface {
			if ev.IsNil() {
				return nil, validationError("models[%d] is nil", i)
			}
			ev = ev.Elem()
		}
		if ev.Kind() == reflect.Ptr {
			if ev.IsNil() {
				return nil, validationError("models[%d] is nil", i)
			}
			ev = ev.Elem()
		}
		if ev.Kind() != reflect.Struct {
			return nil, validationError("models[%d] is not a model struct", i)
		}
		if !ev.CanAddr() {
			// values handed over inside interfaces are not addressable; the
			// mutation builders need field addresses, so work on a copy
			tmp := reflect.New(ev.Type()).Elem()
			tmp.Set(ev)
			ev = tmp
		}
		md, err := o.reg.metadataForType(ev.Type())
		if err != nil {
			return nil, err
		}
		out = append(out, instance{md: md, val: ev})
	}
	return out, nil
}

func saveMutation(inst instance, force bool) (*spanner.Mutation, error) {
	b := baseOf(inst.md, inst.val)
	switch {
	case force:
		return insertOrUpdateMutation(inst.md, inst.val)
	case b.Persisted():
		if err := pkUnchanged(inst.md, inst.val, b.loadedValues()); err != nil {
			return nil, err
		}
		cols, err := updateColumns(inst.md, nil)
		if err != nil {
			return nil, err
		}
		return updateMutation(inst.md, inst.val, cols)
	default:
		return insertMutation(inst.md, inst.val)
	}
}

func insertMutation(md *Metadata, v reflect.Value) (*spanner.Mutation, error) {
	if _, err := primaryKey(md, v); err != nil {
		return nil, err
	}
	vals, err := writeValues(md, v, md.columns)
	if err != nil {
		return nil, err
	}
	return spanner.Insert(md.table, md.columns, vals), nil
}

func insertOrUpdateMutation(md *Metadata, v reflect.Value) (*spanner.Mutation, error) {
	if _, err := primaryKey(md, v); err != nil {
		return nil, err
	}
	vals, err := writeValues(md, v, md.columns)
	if err != nil {
		return nil, err
	}
	return spanner.InsertOrUpdate(md.table, md.columns, vals), nil
}

// updateMutation builds an update of the primary key columns plus cols
func updateMutation(md *Metadata, v reflect.Value, cols []string) (*spanner.Mutation, error) {
	if _, err := primaryKey(md, v); err != nil {
		return nil, err
	}
	full := make([]string, 0, len(md.pks)+len(cols))
	full = append(full, md.pks...)
	full = append(full, cols...)
	vals, err := writeValues(md, v, full)
	if err != nil {
		return nil, err
	}
	return spanner.Update(md.table, full, vals), nil
}

// updateColumns validates an explicit column list, or returns every non key
// column when the list is empty. Commit timestamp columns are always
// included.
func updateColumns(md *Metadata, columns []string) ([]string, error) {
	if len(columns) == 0 {
		out := make([]string, 0, len(md.columns))
		for _, col := range md.columns {
			if !md.fields[col].PrimaryKey {
				out = append(out, col)
			}
		}
		return out, nil
	}
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		f, ok := md.fields[col]
		if !ok {
			return nil, validationError("table %s has no column %s", md.table, col)
		}
		if f.PrimaryKey {
			return nil, validationError("primary key column %s cannot be updated", col)
		}
		if seen[col] {
			return nil, validationError("column %s listed twice", col)
		}
		seen[col] = true
		out = append(out, col)
	}
	return appendCommitTS(md, out), nil
}

// appendCommitTS adds the commit timestamp columns missing from cols
func appendCommitTS(md *Metadata, cols []string) []string {
	listed := make(map[string]bool, len(cols))
	for _, col := range cols {
		listed[col] = true
	}
	for _, col := range md.columns {
		if md.fields[col].CommitTS && !listed[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// dropPrimaryKeys filters primary key columns out of cols
func dropPrimaryKeys(md *Metadata, cols []string) []string {
	out := cols[:0]
	for _, col := range cols {
		if !md.fields[col].PrimaryKey {
			out = append(out, col)
		}
	}
	return out
}

// refresh marks instances persisted with a fresh snapshot after a
// successful write
func refresh(insts []instance) {
	for _, inst := range insts {
		baseOf(inst.md, inst.val).markPersisted(snapshot(inst.md, inst.val))
	}
}

// Create inserts one row per model through a standalone commit
func (c *Client) Create(ctx context.Context, models ...interface{}) error {
	return c.applied().Create(ctx, models...)
}

// Update writes the listed columns of an existing row, or every non key
// column when none are listed
func (c *Client) Update(ctx context.Context, model interface{}, columns ...string) error {
	return c.applied().Update(ctx, model, columns...)
}

// CreateOrUpdate upserts one row per model through a standalone commit
func (c *Client) CreateOrUpdate(ctx context.Context, models ...interface{}) error {
	return c.applied().CreateOrUpdate(ctx, models...)
}

// Save writes model to its table: an insert when the instance is new, an
// update of only the changed columns when it was loaded
func (c *Client) Save(ctx context.Context, model interface{}) error {
	return c.applied().Save(ctx, model)
}

// SaveBatch writes a batch of models in one commit. See ForceWrite.
func (c *Client) SaveBatch(ctx context.Context, models interface{}, opts ...WriteOption) error {
	return c.applied().SaveBatch(ctx, models, opts...)
}

// Delete removes the row backing model
func (c *Client) Delete(ctx context.Context, model interface{}) error {
	return c.applied().Delete(ctx, model)
}

// DeleteBatch removes the rows backing models in one commit
func (c *Client) DeleteBatch(ctx context.Context, models interface{}) error {
	return c.applied().DeleteBatch(ctx, models)
}
