package spannerorm

// Base carries the persistence state of a model instance. Every registered
// model must embed it.
//
// Instances loaded through a client are marked persisted and keep a snapshot
// of their loaded column values. Save uses the snapshot to write only changed
// columns and to reject primary key changes on loaded rows.
type Base struct {
	persisted bool
	loaded    map[string]interface{}
}

// Persisted reports whether the instance was loaded from or written to the
// database
func (b *Base) Persisted() bool {
	return b.persisted
}

func (b *Base) markPersisted(values map[string]interface{}) {
	b.persisted = true
	b.loaded = values
}

func (b *Base) markUnpersisted() {
	b.persisted = false
	b.loaded = nil
}

func (b *Base) loadedValues() map[string]interface{} {
	return b.loaded
}
