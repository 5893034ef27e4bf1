package spannerorm

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Shared schema for the unit tests in this package. The three models cover
// plain columns, nullable columns, arrays, commit timestamps, interleaving
// and a one-to-many relationship.

type testSinger struct {
	Base
	ID     string              `spanner:"id,primary_key"`
	Name   string              `spanner:"name"`
	Age    int64               `spanner:"age"`
	Active bool                `spanner:"active"`
	Email  *string             `spanner:"email"`
	Rating spanner.NullFloat64 `spanner:"rating"`
	Albums []testAlbum         `spanner:"-"`
}

func (testSinger) TableName() string { return "Singers" }

func (testSinger) Relationships() []Relationship {
	return []Relationship{
		{
			Field:       "Albums",
			Target:      testAlbum{},
			Constraints: map[string]string{"id": "singer_id"},
		},
	}
}

type testAlbum struct {
	Base
	ID       string `spanner:"id,primary_key"`
	SingerID string `spanner:"singer_id"`
	Title    string `spanner:"title"`
}

func (testAlbum) TableName() string { return "Albums" }

type testTrack struct {
	Base
	ID        string    `spanner:"id,primary_key"`
	AlbumID   string    `spanner:"album_id"`
	Title     string    `spanner:"title"`
	Tags      []string  `spanner:"tags,nullable"`
	UpdatedAt time.Time `spanner:"updated_at,commit_ts"`
}

func (testTrack) TableName() string { return "Tracks" }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(testSinger{}, testAlbum{}, testTrack{}))
	return reg
}

func testMetadata(t *testing.T, reg *Registry, model TableNamer) *Metadata {
	t.Helper()
	md, err := reg.Metadata(model)
	require.NoError(t, err)
	return md
}

// applyRecorder captures the mutation batches a mutator commits, standing in
// for a Spanner transaction
type applyRecorder struct {
	calls [][]*spanner.Mutation
	err   error
}

func (a *applyRecorder) apply(_ context.Context, ms []*spanner.Mutation) error {
	a.calls = append(a.calls, ms)
	return a.err
}

func newTestMutator(t *testing.T, rec *applyRecorder) mutator {
	t.Helper()
	return mutator{ops{apply: rec.apply, reg: newTestRegistry(t), log: zap.NewNop()}}
}

func strPtr(s string) *string { return &s }
