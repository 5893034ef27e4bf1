// Package migration applies ordered schema changes to a Spanner database.
//
// Migrations form a chain: each one names the migration it follows through
// PrevID, and the first migration has an empty PrevID. Applied migrations
// are recorded in a schema_migrations table inside the target database so
// every environment converges on the same schema.
package migration

import (
	"sync"

	"github.com/fjell-io/spanner-orm/admin"
)

// UpdateFunc returns the schema updates of one migration direction
type UpdateFunc func() []admin.SchemaUpdate

// Migration is one reversible schema change
type Migration struct {
	// ID uniquely identifies the migration
	ID string
	// PrevID names the migration this one follows, empty for the first
	PrevID string
	// Description is a short human readable summary
	Description string
	// Up returns the schema updates that apply the migration
	Up UpdateFunc
	// Down returns the schema updates that revert the migration
	Down UpdateFunc
}

// Set collects migrations, usually through Register calls in the init
// functions of generated migration files
type Set struct {
	mu  sync.Mutex
	all []*Migration
}

// NewSet creates an empty migration set
func NewSet() *Set {
	return &Set{}
}

var defaultSet = NewSet()

// DefaultSet returns the set used by the package level Register
func DefaultSet() *Set {
	return defaultSet
}

// Register adds a migration to the default set
func Register(m *Migration) {
	defaultSet.Register(m)
}

// Register adds a migration to the set. The chain is validated when it is
// built, not here.
func (s *Set) Register(m *Migration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, m)
}

// Migrations returns the registered migrations in registration order
func (s *Set) Migrations() []*Migration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Migration, len(s.all))
	copy(out, s.all)
	return out
}
