package spannerorm

import (
	"reflect"
	"sort"
	"sync"
)

// Registry resolves model types to their metadata. The zero value is not
// usable; create registries with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Metadata
	byTable map[string]*Metadata
}

// NewRegistry creates an empty model registry
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Metadata),
		byTable: make(map[string]*Metadata),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used by the package level Register and
// by clients that were not given one with WithRegistry
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds models to the default registry
func Register(models ...TableNamer) error {
	return defaultRegistry.Register(models...)
}

// MustRegister adds models to the default registry and panics on error. It is
// meant for package init and var blocks.
func MustRegister(models ...TableNamer) {
	defaultRegistry.MustRegister(models...)
}

// Register derives and stores metadata for each model. Registering the same
// model type again is a no-op. A different model claiming an already
// registered table is an error.
func (r *Registry) Register(models ...TableNamer) error {
	for _, m := range models {
		if err := r.register(m); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(models ...TableNamer) {
	if err := r.Register(models...); err != nil {
		panic(err)
	}
}

func (r *Registry) register(model TableNamer) error {
	md, err := buildMetadata(model)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[md.typ]; ok {
		if existing.table == md.table {
			return nil
		}
		return validationError("model %s is already registered for table %s", md.typ.Name(), existing.table)
	}
	if _, ok := r.byTable[md.table]; ok {
		return validationError("table %s is already registered", md.table)
	}
	r.byType[md.typ] = md
	r.byTable[md.table] = md
	return nil
}

// Metadata returns the metadata for a model value or pointer
func (r *Registry) Metadata(model interface{}) (*Metadata, error) {
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, validationError("model %T is not a struct", model)
	}
	return r.metadataForType(t)
}

// MetadataForTable returns the metadata registered for a table name
func (r *Registry) MetadataForTable(table string) (*Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.byTable[table]
	return md, ok
}

// Tables returns the registered table names sorted alphabetically
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTable))
	for table := range r.byTable {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) metadataForType(t reflect.Type) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.byType[t]
	if !ok {
		return nil, notRegisteredError(t.String())
	}
	return md, nil
}
