package spannerorm

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"
)

// spannerReader is the read surface shared by single-use snapshots and both
// transaction kinds
type spannerReader interface {
	Query(ctx context.Context, statement spanner.Statement) *spanner.RowIterator
	Read(ctx context.Context, table string, keys spanner.KeySet, columns []string) *spanner.RowIterator
}

// ReadOnlyTxn runs multiple reads against one consistent snapshot. Close must
// be called to release it.
type ReadOnlyTxn struct {
	ops
	tx *spanner.ReadOnlyTransaction
}

// ReadOnly begins a read-only transaction with strong consistency
func (c *Client) ReadOnly() *ReadOnlyTxn {
	tx := c.sc.ReadOnlyTransaction()
	return &ReadOnlyTxn{ops: ops{reader: tx, reg: c.reg, log: c.log}, tx: tx}
}

// WithTimestampBound sets the staleness bound of the snapshot. It must be
// called before the first read.
func (t *ReadOnlyTxn) WithTimestampBound(tb spanner.TimestampBound) *ReadOnlyTxn {
	t.tx = t.tx.WithTimestampBound(tb)
	t.ops.reader = t.tx
	return t
}

// Close releases the snapshot
func (t *ReadOnlyTxn) Close() {
	t.tx.Close()
}

// ReadWriteTxn buffers writes that commit atomically together with its reads
type ReadWriteTxn struct {
	mutator
	tx *spanner.ReadWriteTransaction
}

// ReadWrite runs fn inside a read-write transaction and returns the commit
// timestamp. fn may run more than once when Spanner aborts and retries the
// transaction, so it must be safe to repeat.
func (c *Client) ReadWrite(ctx context.Context, fn func(context.Context, *ReadWriteTxn) error) (time.Time, error) {
	ts, err := c.sc.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		t := &ReadWriteTxn{
			mutator: mutator{ops{
				reader: tx,
				apply: func(_ context.Context, ms []*spanner.Mutation) error {
					return tx.BufferWrite(ms)
				},
				reg: c.reg,
				log: c.log,
			}},
			tx: tx,
		}
		return fn(ctx, t)
	})
	if err != nil {
		return time.Time{}, mapSpannerError(err)
	}
	return ts, nil
}
