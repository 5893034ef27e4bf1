package backup_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/backup"
	"github.com/fjell-io/spanner-orm/spantest"
)

type author struct {
	spannerorm.Base
	ID   string `spanner:"author_id,primary_key"`
	Name string `spanner:"name"`
}

func (author) TableName() string { return "Authors" }

type book struct {
	spannerorm.Base
	ID       string  `spanner:"book_id,primary_key"`
	AuthorID string  `spanner:"author_id"`
	Title    string  `spanner:"title"`
	Pages    int64   `spanner:"pages"`
	Genre    *string `spanner:"genre"`
}

func (book) TableName() string { return "Books" }

func TestBackup_ExportRestoreRoundtrip(t *testing.T) {
	orm := spantest.NewDatabase(t, author{}, book{})
	ctx := context.Background()
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	jazz := "jazz"
	a1 := &author{ID: "a1", Name: "Ada"}
	a2 := &author{ID: "a2", Name: "Brin"}
	b1 := &book{ID: "b1", AuthorID: "a1", Title: "First", Pages: 120, Genre: &jazz}
	b2 := &book{ID: "b2", AuthorID: "a1", Title: "Second", Pages: 80}
	b3 := &book{ID: "b3", AuthorID: "a2", Title: "Third", Pages: 240}
	require.NoError(t, orm.Create(ctx, a1, a2, b1, b2, b3))

	exp := backup.NewExporter(orm, store, zap.NewNop())
	man, err := exp.Export(ctx)
	require.NoError(t, err)
	require.Len(t, man.Tables, 2)
	assert.Regexp(t, `^\d{8}T\d{6}Z-[0-9a-f]{8}$`, man.SnapshotID)
	assert.Equal(t, int64(5), man.TotalRows())
	assert.Equal(t, "Authors", man.Tables[0].Table)
	assert.Equal(t, int64(2), man.Tables[0].Rows)
	assert.Equal(t, man.SnapshotID+"/tables/Authors.jsonl", man.Tables[0].Object)

	ids, err := backup.ListSnapshots(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{man.SnapshotID}, ids)

	// damage the data: drop every book, rename an author, add a stray row
	require.NoError(t, orm.DeleteBatch(ctx, []*book{b1, b2, b3}))
	a1.Name = "Renamed"
	require.NoError(t, orm.Save(ctx, a1))
	require.NoError(t, orm.Create(ctx, &author{ID: "a9", Name: "Stray"}))

	imp := backup.NewImporter(orm, store, zap.NewNop())
	imp.SetChunkSize(2)
	got, err := imp.Restore(ctx, man.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, man.SnapshotID, got.SnapshotID)

	n, err := orm.Count(ctx, &book{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var a author
	require.NoError(t, orm.Find(ctx, &a, spannerorm.Key{"a1"}))
	assert.Equal(t, "Ada", a.Name, "snapshot value wins over the later edit")

	// restore upserts, so rows written after the snapshot survive
	n, err = orm.Count(ctx, &author{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var restored book
	require.NoError(t, orm.Find(ctx, &restored, spannerorm.Key{"b1"}))
	assert.Equal(t, "First", restored.Title)
	require.NotNil(t, restored.Genre)
	assert.Equal(t, "jazz", *restored.Genre)

	var second book
	require.NoError(t, orm.Find(ctx, &second, spannerorm.Key{"b2"}))
	assert.Nil(t, second.Genre)
}

func TestBackup_SelectiveRestore(t *testing.T) {
	orm := spantest.NewDatabase(t, author{}, book{})
	ctx := context.Background()
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	a1 := &author{ID: "a1", Name: "Ada"}
	b1 := &book{ID: "b1", AuthorID: "a1", Title: "Only", Pages: 99}
	require.NoError(t, orm.Create(ctx, a1, b1))

	exp := backup.NewExporter(orm, store, zap.NewNop())
	man, err := exp.Export(ctx)
	require.NoError(t, err)
	imp := backup.NewImporter(orm, store, zap.NewNop())

	t.Run("restores only the named table", func(t *testing.T) {
		a1.Name = "Renamed"
		require.NoError(t, orm.Save(ctx, a1))
		require.NoError(t, orm.Delete(ctx, b1))

		_, err := imp.Restore(ctx, man.SnapshotID, "Books")
		require.NoError(t, err)

		var bk book
		require.NoError(t, orm.Find(ctx, &bk, spannerorm.Key{"b1"}))
		assert.Equal(t, "Only", bk.Title)

		// Authors was not restored
		var a author
		require.NoError(t, orm.Find(ctx, &a, spannerorm.Key{"a1"}))
		assert.Equal(t, "Renamed", a.Name)
	})

	t.Run("exports only the named table", func(t *testing.T) {
		man2, err := exp.Export(ctx, "Authors")
		require.NoError(t, err)
		require.Len(t, man2.Tables, 1)
		assert.Equal(t, "Authors", man2.Tables[0].Table)
	})

	t.Run("export rejects unregistered tables", func(t *testing.T) {
		_, err := exp.Export(ctx, "Ghosts")
		assert.ErrorIs(t, err, spannerorm.ErrNotRegistered)
	})

	t.Run("restore checks the manifest row counts", func(t *testing.T) {
		object := man.SnapshotID + "/tables/Books.jsonl"
		_, err := store.Put(ctx, object, "application/x-ndjson", strings.NewReader(""))
		require.NoError(t, err)

		_, err = imp.Restore(ctx, man.SnapshotID, "Books")
		assert.ErrorContains(t, err, "restored 0 rows, manifest says 1")
	})

	t.Run("restore rejects rows that do not decode", func(t *testing.T) {
		object := man.SnapshotID + "/tables/Books.jsonl"
		_, err := store.Put(ctx, object, "application/x-ndjson", strings.NewReader("not json\n"))
		require.NoError(t, err)

		_, err = imp.Restore(ctx, man.SnapshotID, "Books")
		assert.ErrorContains(t, err, "failed to decode row 1 of table Books")
	})
}
