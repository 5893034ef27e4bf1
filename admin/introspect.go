package admin

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// Introspector reads the live database layout from INFORMATION_SCHEMA
type Introspector struct {
	client *spannerorm.Client
}

// NewIntrospector creates an introspector reading through client
func NewIntrospector(client *spannerorm.Client) *Introspector {
	return &Introspector{client: client}
}

// TableInfo describes a user table
type TableInfo struct {
	Name     string             `spanner:"TABLE_NAME"`
	Parent   spanner.NullString `spanner:"PARENT_TABLE_NAME"`
	OnDelete spanner.NullString `spanner:"ON_DELETE_ACTION"`
}

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name     string `spanner:"COLUMN_NAME"`
	Position int64  `spanner:"ORDINAL_POSITION"`
	Type     string `spanner:"SPANNER_TYPE"`
	Nullable string `spanner:"IS_NULLABLE"`
}

// IsNullable reports whether the column accepts NULL
func (c ColumnInfo) IsNullable() bool {
	return c.Nullable == "YES"
}

// IndexInfo describes a secondary index of a table
type IndexInfo struct {
	Name         string `spanner:"INDEX_NAME"`
	Unique       bool   `spanner:"IS_UNIQUE"`
	NullFiltered bool   `spanner:"IS_NULL_FILTERED"`
}

// Tables lists the user tables of the database
func (i *Introspector) Tables(ctx context.Context) ([]TableInfo, error) {
	stmt := spanner.Statement{SQL: `SELECT t.TABLE_NAME, t.PARENT_TABLE_NAME, t.ON_DELETE_ACTION ` +
		`FROM INFORMATION_SCHEMA.TABLES AS t ` +
		`WHERE t.TABLE_CATALOG = '' AND t.TABLE_SCHEMA = '' ORDER BY t.TABLE_NAME`}
	var out []TableInfo
	if err := i.client.Query(ctx, &out, stmt); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return out, nil
}

// TableExists reports whether a user table exists
func (i *Introspector) TableExists(ctx context.Context, table string) (bool, error) {
	stmt := spanner.Statement{
		SQL: `SELECT t.TABLE_NAME, t.PARENT_TABLE_NAME, t.ON_DELETE_ACTION ` +
			`FROM INFORMATION_SCHEMA.TABLES AS t ` +
			`WHERE t.TABLE_CATALOG = '' AND t.TABLE_SCHEMA = '' AND t.TABLE_NAME = @table`,
		Params: map[string]interface{}{"table": table},
	}
	var out []TableInfo
	if err := i.client.Query(ctx, &out, stmt); err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	return len(out) > 0, nil
}

// Columns lists the columns of a table in ordinal order
func (i *Introspector) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	stmt := spanner.Statement{
		SQL: `SELECT c.COLUMN_NAME, c.ORDINAL_POSITION, c.SPANNER_TYPE, c.IS_NULLABLE ` +
			`FROM INFORMATION_SCHEMA.COLUMNS AS c ` +
			`WHERE c.TABLE_CATALOG = '' AND c.TABLE_SCHEMA = '' AND c.TABLE_NAME = @table ` +
			`ORDER BY c.ORDINAL_POSITION`,
		Params: map[string]interface{}{"table": table},
	}
	var out []ColumnInfo
	if err := i.client.Query(ctx, &out, stmt); err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return out, nil
}

// Indexes lists the secondary indexes of a table
func (i *Introspector) Indexes(ctx context.Context, table string) ([]IndexInfo, error) {
	stmt := spanner.Statement{
		SQL: `SELECT i.INDEX_NAME, i.IS_UNIQUE, i.IS_NULL_FILTERED ` +
			`FROM INFORMATION_SCHEMA.INDEXES AS i ` +
			`WHERE i.TABLE_CATALOG = '' AND i.TABLE_SCHEMA = '' AND i.TABLE_NAME = @table ` +
			`AND i.INDEX_TYPE = 'INDEX' ORDER BY i.INDEX_NAME`,
		Params: map[string]interface{}{"table": table},
	}
	var out []IndexInfo
	if err := i.client.Query(ctx, &out, stmt); err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	return out, nil
}
