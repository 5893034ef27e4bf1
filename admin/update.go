package admin

import (
	"errors"
	"fmt"
	"strings"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// SchemaUpdate renders one DDL statement, usually derived from registered
// model metadata. An update may render an empty statement to signal that
// nothing needs to happen.
type SchemaUpdate interface {
	DDL(reg *spannerorm.Registry) (string, error)
}

// CreateTable creates the table of a registered model, including its
// interleave clause
type CreateTable struct {
	Model spannerorm.TableNamer
}

func (u CreateTable) DDL(reg *spannerorm.Registry) (string, error) {
	md, err := reg.Metadata(u.Model)
	if err != nil {
		return "", err
	}
	return createTableDDL(md), nil
}

// DropTable drops a table by name
type DropTable struct {
	Table string
}

func (u DropTable) DDL(reg *spannerorm.Registry) (string, error) {
	if u.Table == "" {
		return "", errors.New("drop table requires a table name")
	}
	return fmt.Sprintf("DROP TABLE %s", u.Table), nil
}

// AddColumn adds a column to an existing table. Spanner only allows adding
// nullable columns, so Column.Nullable must be set.
type AddColumn struct {
	Table  string
	Column spannerorm.Field
}

func (u AddColumn) DDL(reg *spannerorm.Registry) (string, error) {
	if u.Table == "" {
		return "", errors.New("add column requires a table name")
	}
	if u.Column.Name == "" {
		return "", errors.New("add column requires a column name")
	}
	if u.Column.Type < spannerorm.TypeBool || u.Column.Type > spannerorm.TypeInt64Array {
		return "", fmt.Errorf("add column %s: unknown column type", u.Column.Name)
	}
	if !u.Column.Nullable {
		return "", fmt.Errorf("add column %s: a new column must be nullable", u.Column.Name)
	}
	if u.Column.CommitTS && u.Column.Type != spannerorm.TypeTimestamp {
		return "", fmt.Errorf("add column %s: commit_ts requires a TIMESTAMP column", u.Column.Name)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", u.Table, columnDDL(&u.Column)), nil
}

// DropColumn drops a column from a table
type DropColumn struct {
	Table  string
	Column string
}

func (u DropColumn) DDL(reg *spannerorm.Registry) (string, error) {
	if u.Table == "" || u.Column == "" {
		return "", errors.New("drop column requires a table and a column name")
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", u.Table, u.Column), nil
}

// CreateIndex creates a secondary index on a table
type CreateIndex struct {
	Table string
	Index spannerorm.Index
}

func (u CreateIndex) DDL(reg *spannerorm.Registry) (string, error) {
	if u.Table == "" {
		return "", errors.New("create index requires a table name")
	}
	if u.Index.Name == "" {
		return "", errors.New("create index requires an index name")
	}
	if len(u.Index.Columns) == 0 {
		return "", fmt.Errorf("create index %s: no columns", u.Index.Name)
	}
	return createIndexDDL(u.Table, u.Index), nil
}

// DropIndex drops a secondary index by name
type DropIndex struct {
	Name string
}

func (u DropIndex) DDL(reg *spannerorm.Registry) (string, error) {
	if u.Name == "" {
		return "", errors.New("drop index requires an index name")
	}
	return fmt.Sprintf("DROP INDEX %s", u.Name), nil
}

// NoUpdate renders nothing. It marks migration directions that do not change
// the schema.
type NoUpdate struct{}

func (u NoUpdate) DDL(reg *spannerorm.Registry) (string, error) {
	return "", nil
}

// RenderAll renders the non-empty statements of updates in order
func RenderAll(reg *spannerorm.Registry, updates []SchemaUpdate) ([]string, error) {
	out := make([]string, 0, len(updates))
	for _, u := range updates {
		stmt, err := u.DDL(reg)
		if err != nil {
			return nil, err
		}
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}

// AllDDL renders the CREATE TABLE and CREATE INDEX statements for models in
// an order that creates interleave parents before their children
func AllDDL(reg *spannerorm.Registry, models ...spannerorm.TableNamer) ([]string, error) {
	mds := make([]*spannerorm.Metadata, 0, len(models))
	local := make(map[string]bool, len(models))
	for _, m := range models {
		md, err := reg.Metadata(m)
		if err != nil {
			return nil, err
		}
		mds = append(mds, md)
		local[md.Table()] = true
	}

	var out []string
	emitted := make(map[string]bool, len(mds))
	for len(emitted) < len(mds) {
		progress := false
		for _, md := range mds {
			if emitted[md.Table()] {
				continue
			}
			parent := md.Parent()
			if parent != "" && local[parent] && !emitted[parent] {
				continue
			}
			out = append(out, createTableDDL(md))
			for _, idx := range md.Indexes() {
				out = append(out, createIndexDDL(md.Table(), idx))
			}
			emitted[md.Table()] = true
			progress = true
		}
		if !progress {
			return nil, errors.New("interleaved models form a parent cycle")
		}
	}
	return out, nil
}

func createTableDDL(md *spannerorm.Metadata) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", md.Table())
	for i, f := range md.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(columnDDL(f))
	}
	fmt.Fprintf(&sb, ") PRIMARY KEY (%s)", strings.Join(md.PrimaryKeys(), ", "))
	if md.Parent() != "" {
		fmt.Fprintf(&sb, ", INTERLEAVE IN PARENT %s ON DELETE CASCADE", md.Parent())
	}
	return sb.String()
}

func createIndexDDL(table string, idx spannerorm.Index) string {
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if idx.Unique {
		sb.WriteString("UNIQUE ")
	}
	if idx.NullFiltered {
		sb.WriteString("NULL_FILTERED ")
	}
	fmt.Fprintf(&sb, "INDEX %s ON %s (%s)", idx.Name, table, strings.Join(idx.Columns, ", "))
	if len(idx.Storing) > 0 {
		fmt.Fprintf(&sb, " STORING (%s)", strings.Join(idx.Storing, ", "))
	}
	return sb.String()
}

func columnDDL(f *spannerorm.Field) string {
	s := f.Name + " " + f.Type.DDL()
	if !f.Nullable {
		s += " NOT NULL"
	}
	if f.CommitTS {
		s += " OPTIONS (allow_commit_timestamp=true)"
	}
	return s
}
