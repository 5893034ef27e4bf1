package backup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjell-io/spanner-orm/backup"
)

func TestManifest_TotalRows(t *testing.T) {
	man := &backup.Manifest{Tables: []backup.TableManifest{
		{Table: "Users", Rows: 3},
		{Table: "Posts", Rows: 0},
		{Table: "Tags", Rows: 7},
	}}
	assert.Equal(t, int64(10), man.TotalRows())
	assert.Zero(t, (&backup.Manifest{}).TotalRows())
}

func TestListSnapshots(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// two complete snapshots, one without its manifest, one stray root file
	putString(t, store, "20240102T000000Z-beef/manifest.json", "{}")
	putString(t, store, "20240101T000000Z-cafe/manifest.json", "{}")
	putString(t, store, "20240101T000000Z-cafe/tables/Users.jsonl", "")
	putString(t, store, "20240103T000000Z-dead/tables/Users.jsonl", "")
	putString(t, store, "manifest.json", "{}")

	ids, err := backup.ListSnapshots(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101T000000Z-cafe", "20240102T000000Z-beef"}, ids)
}

func TestImporter_ManifestErrors(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	imp := backup.NewImporter(nil, store, nil)

	_, err = imp.Manifest(ctx, "missing")
	assert.ErrorIs(t, err, backup.ErrObjectNotFound)

	putString(t, store, "bad/manifest.json", "not json")
	_, err = imp.Manifest(ctx, "bad")
	assert.ErrorContains(t, err, "failed to decode manifest of bad")
}

func TestRestore_UnknownRequestedTable(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	putString(t, store, "snap1/manifest.json",
		`{"snapshotId":"snap1","tables":[{"table":"Users","rows":1,"object":"snap1/tables/Users.jsonl"}]}`)

	// the table check runs before any row is touched
	imp := backup.NewImporter(nil, store, nil)
	_, err = imp.Restore(ctx, "snap1", "Ghosts")
	assert.ErrorContains(t, err, "snapshot snap1 has no table Ghosts")
}
