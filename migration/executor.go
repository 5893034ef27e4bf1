package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/admin"
)

// StatusTable is the table recording applied migrations
const StatusTable = "schema_migrations"

// appliedRow backs the status table through the regular model machinery
type appliedRow struct {
	spannerorm.Base
	ID          string    `spanner:"id,primary_key"`
	Description string    `spanner:"description"`
	AppliedAt   time.Time `spanner:"applied_at,commit_ts"`
}

func (appliedRow) TableName() string { return StatusTable }

// Status describes one chain migration and whether it has been applied
type Status struct {
	ID          string
	Description string
	Applied     bool
	AppliedAt   time.Time
}

// Executor applies and reverts migrations against one database
type Executor struct {
	orm *spannerorm.Client
	adm *admin.Client
	set *Set
	log *zap.Logger
}

// NewExecutor creates an executor over the given clients. A nil set means
// the default set, a nil log disables logging.
func NewExecutor(orm *spannerorm.Client, adm *admin.Client, set *Set, log *zap.Logger) (*Executor, error) {
	if set == nil {
		set = defaultSet
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := orm.Registry().Register(&appliedRow{}); err != nil {
		return nil, fmt.Errorf("failed to register migration status model: %w", err)
	}
	return &Executor{orm: orm, adm: adm, set: set, log: log}, nil
}

// Status lists every chain migration together with its applied state
func (e *Executor) Status(ctx context.Context) ([]Status, error) {
	chain, err := BuildChain(e.set)
	if err != nil {
		return nil, err
	}
	if err := e.ensureStatusTable(ctx); err != nil {
		return nil, err
	}
	applied, err := e.appliedRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(chain))
	for _, m := range chain {
		st := Status{ID: m.ID, Description: m.Description}
		if row, ok := applied[m.ID]; ok {
			st.Applied = true
			st.AppliedAt = row.AppliedAt
		}
		out = append(out, st)
	}
	return out, nil
}

// Version returns the id of the newest applied migration, empty when none
// has been applied
func (e *Executor) Version(ctx context.Context) (string, error) {
	chain, err := BuildChain(e.set)
	if err != nil {
		return "", err
	}
	if err := e.ensureStatusTable(ctx); err != nil {
		return "", err
	}
	applied, err := e.appliedRows(ctx)
	if err != nil {
		return "", err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if _, ok := applied[chain[i].ID]; ok {
			return chain[i].ID, nil
		}
	}
	return "", nil
}

// Up applies every pending migration in chain order and returns how many
// were applied
func (e *Executor) Up(ctx context.Context) (int, error) {
	chain, err := BuildChain(e.set)
	if err != nil {
		return 0, err
	}
	if err := e.ensureStatusTable(ctx); err != nil {
		return 0, err
	}
	applied, err := e.appliedRows(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	pending := false
	for _, m := range chain {
		if _, ok := applied[m.ID]; ok {
			if pending {
				return n, fmt.Errorf("migration %s is applied but an earlier migration is not", m.ID)
			}
			continue
		}
		pending = true
		if err := e.applyUp(ctx, m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Down reverts the newest applied migration and returns its id, or an empty
// id when nothing is applied
func (e *Executor) Down(ctx context.Context) (string, error) {
	chain, err := BuildChain(e.set)
	if err != nil {
		return "", err
	}
	if err := e.ensureStatusTable(ctx); err != nil {
		return "", err
	}
	applied, err := e.appliedRows(ctx)
	if err != nil {
		return "", err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		row, ok := applied[m.ID]
		if !ok {
			continue
		}
		if m.Down == nil {
			return "", fmt.Errorf("migration %s has no down", m.ID)
		}
		stmts, err := admin.RenderAll(e.orm.Registry(), m.Down())
		if err != nil {
			return "", fmt.Errorf("migration %s: %w", m.ID, err)
		}
		e.log.Info("reverting migration",
			zap.String("id", m.ID),
			zap.String("description", m.Description))
		if err := e.adm.UpdateDDL(ctx, stmts...); err != nil {
			return "", fmt.Errorf("migration %s: %w", m.ID, err)
		}
		if err := e.orm.Delete(ctx, &row); err != nil {
			return "", fmt.Errorf("migration %s: failed to clear status: %w", m.ID, err)
		}
		return m.ID, nil
	}
	return "", nil
}

func (e *Executor) applyUp(ctx context.Context, m *Migration) error {
	if m.Up == nil {
		return fmt.Errorf("migration %s has no up", m.ID)
	}
	stmts, err := admin.RenderAll(e.orm.Registry(), m.Up())
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}
	e.log.Info("applying migration",
		zap.String("id", m.ID),
		zap.String("description", m.Description))
	if err := e.adm.UpdateDDL(ctx, stmts...); err != nil {
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}
	if err := e.orm.Create(ctx, &appliedRow{ID: m.ID, Description: m.Description}); err != nil {
		return fmt.Errorf("migration %s: failed to record status: %w", m.ID, err)
	}
	return nil
}

func (e *Executor) ensureStatusTable(ctx context.Context) error {
	exists, err := admin.NewIntrospector(e.orm).TableExists(ctx, StatusTable)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt, err := admin.CreateTable{Model: &appliedRow{}}.DDL(e.orm.Registry())
	if err != nil {
		return err
	}
	e.log.Info("creating migration status table", zap.String("table", StatusTable))
	return e.adm.UpdateDDL(ctx, stmt)
}

func (e *Executor) appliedRows(ctx context.Context) (map[string]appliedRow, error) {
	var rows []appliedRow
	if err := e.orm.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", StatusTable, err)
	}
	out := make(map[string]appliedRow, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}
