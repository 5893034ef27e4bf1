package spannerorm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutator_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts and marks persisted", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana", Age: 30}

		require.NoError(t, m.Create(ctx, s))
		require.Len(t, rec.calls, 1)
		assert.Len(t, rec.calls[0], 1)
		assert.True(t, s.Persisted())
	})

	t.Run("batches several models into one commit", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)

		err := m.Create(ctx,
			&testSinger{ID: "s1", Name: "Ana"},
			&testAlbum{ID: "a1", SingerID: "s1", Title: "Go"},
		)
		require.NoError(t, err)
		require.Len(t, rec.calls, 1)
		assert.Len(t, rec.calls[0], 2)
	})

	t.Run("no models is a no-op", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		require.NoError(t, m.Create(ctx))
		assert.Empty(t, rec.calls)
	})

	t.Run("rejects unregistered models", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		type stranger struct {
			Base
			ID string `spanner:"id,primary_key"`
		}
		err := m.Create(ctx, &stranger{ID: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotRegistered)
		assert.Empty(t, rec.calls)
	})

	t.Run("rejects non-pointer models", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		err := m.Create(ctx, testSinger{ID: "s1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model must be a non-nil struct pointer")
	})

	t.Run("wraps commit failures", func(t *testing.T) {
		rec := &applyRecorder{err: errors.New("boom")}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}

		err := m.Create(ctx, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert: boom")
		assert.False(t, s.Persisted())
	})
}

func TestMutator_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates listed columns", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Bo"}

		require.NoError(t, m.Update(ctx, s, "name"))
		require.Len(t, rec.calls, 1)
		assert.True(t, s.Persisted())
	})

	tests := []struct {
		name    string
		columns []string
		wantErr string
	}{
		{"unknown column", []string{"nope"}, "table Singers has no column nope"},
		{"primary key column", []string{"id"}, "primary key column id cannot be updated"},
		{"duplicate column", []string{"name", "name"}, "column name listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &applyRecorder{}
			m := newTestMutator(t, rec)
			err := m.Update(ctx, &testSinger{ID: "s1"}, tt.columns...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, rec.calls)
		})
	}

	t.Run("rejects primary key change on loaded row", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}
		require.NoError(t, m.Create(ctx, s))

		s.ID = "s2"
		err := m.Update(ctx, s, "name")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary key column id of a loaded Singers row cannot change")
	})
}

func TestMutator_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new instances", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}

		require.NoError(t, m.Save(ctx, s))
		require.Len(t, rec.calls, 1)
		assert.True(t, s.Persisted())
	})

	t.Run("loaded instance without changes is a no-op", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}
		require.NoError(t, m.Create(ctx, s))

		require.NoError(t, m.Save(ctx, s))
		assert.Len(t, rec.calls, 1, "unchanged save should not commit")
	})

	t.Run("updates only after changes and refreshes the snapshot", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}
		require.NoError(t, m.Create(ctx, s))

		s.Name = "Bo"
		require.NoError(t, m.Save(ctx, s))
		assert.Len(t, rec.calls, 2)

		// snapshot was refreshed, so saving again is a no-op
		require.NoError(t, m.Save(ctx, s))
		assert.Len(t, rec.calls, 2)
	})

	t.Run("rejects primary key change on loaded row", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		s := &testSinger{ID: "s1", Name: "Ana"}
		require.NoError(t, m.Create(ctx, s))

		s.ID = "s2"
		err := m.Save(ctx, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary key column id of a loaded Singers row cannot change")
	})
}

func TestMutator_SaveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("writes a slice of pointers in one commit", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		models := []*testSinger{
			{ID: "s1", Name: "Ana"},
			{ID: "s2", Name: "Bo"},
		}

		require.NoError(t, m.SaveBatch(ctx, models))
		require.Len(t, rec.calls, 1)
		assert.Len(t, rec.calls[0], 2)
		assert.True(t, models[0].Persisted())
		assert.True(t, models[1].Persisted())
	})

	t.Run("accepts a value slice", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		models := []testAlbum{
			{ID: "a1", SingerID: "s1", Title: "Go"},
			{ID: "a2", SingerID: "s1", Title: "Again"},
		}

		require.NoError(t, m.SaveBatch(ctx, models))
		require.Len(t, rec.calls, 1)
		assert.Len(t, rec.calls[0], 2)
	})

	t.Run("accepts an interface slice of mixed models", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		models := []interface{}{
			&testSinger{ID: "s1", Name: "Ana"},
			&testAlbum{ID: "a1", SingerID: "s1", Title: "Go"},
			testAlbum{ID: "a2", SingerID: "s1", Title: "Again"},
		}

		require.NoError(t, m.SaveBatch(ctx, models, ForceWrite()))
		require.Len(t, rec.calls, 1)
		assert.Len(t, rec.calls[0], 3)
	})

	t.Run("empty slice is a no-op", func(t *testing.T) {
		rec := &applyRecorder{}
		m := newTestMutator(t, rec)
		require.NoError(t, m.SaveBatch(ctx, []*testSinger{}))
		assert.Empty(t, rec.calls)
	})

	tests := []struct {
		name    string
		models  interface{}
		wantErr string
	}{
		{"not a slice", "nope", "models must be a slice of registered models, got string"},
		{"nil element", []interface{}{nil}, "models[0] is nil"},
		{"nil pointer element", []*testSinger{nil}, "models[0] is nil"},
		{"non-struct element", []interface{}{&[]int{1}}, "models[0] is not a model struct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &applyRecorder{}
			m := newTestMutator(t, rec)
			err := m.SaveBatch(ctx, tt.models)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestMutator_Delete(t *testing.T) {
	ctx := context.Background()
	rec := &applyRecorder{}
	m := newTestMutator(t, rec)
	s := &testSinger{ID: "s1", Name: "Ana"}
	require.NoError(t, m.Create(ctx, s))

	require.NoError(t, m.Delete(ctx, s))
	require.Len(t, rec.calls, 2)
	assert.Len(t, rec.calls[1], 1)
	assert.False(t, s.Persisted())
}

func TestMutator_DeleteBatch(t *testing.T) {
	ctx := context.Background()
	rec := &applyRecorder{}
	m := newTestMutator(t, rec)
	models := []interface{}{
		&testSinger{ID: "s1"},
		&testSinger{ID: "s2"},
		&testAlbum{ID: "a1", SingerID: "s1"},
	}

	require.NoError(t, m.DeleteBatch(ctx, models))
	require.Len(t, rec.calls, 1)
	// keys are grouped into one delete mutation per table
	assert.Len(t, rec.calls[0], 2)
}

func TestOps_DestValidation(t *testing.T) {
	ctx := context.Background()
	o := ops{reg: newTestRegistry(t)}

	t.Run("dest must be a slice pointer", func(t *testing.T) {
		var s testSinger
		err := o.Where(ctx, &s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dest must be a pointer to a slice of models")
	})

	t.Run("dest elements must be structs", func(t *testing.T) {
		var out []int
		err := o.All(ctx, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dest must be a pointer to a slice of models")
	})

	t.Run("find validates the key before reading", func(t *testing.T) {
		var s testSinger
		err := o.Find(ctx, &s, Key{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key for Singers is missing primary key column id")
	})
}
