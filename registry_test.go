package spannerorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// venueClone claims the same table as Venue with a different type
type venueClone struct {
	spannerorm.Base
	ID string `spanner:"id,primary_key"`
}

func (venueClone) TableName() string { return "Venues" }

func TestRegistry_Register(t *testing.T) {
	t.Run("resolves value and pointer models", func(t *testing.T) {
		reg := spannerorm.NewRegistry()
		require.NoError(t, reg.Register(Venue{}))

		md, err := reg.Metadata(Venue{})
		require.NoError(t, err)
		assert.Equal(t, "Venues", md.Table())

		md, err = reg.Metadata(&Venue{})
		require.NoError(t, err)
		assert.Equal(t, "Venues", md.Table())
	})

	t.Run("registering the same model again is a no-op", func(t *testing.T) {
		reg := spannerorm.NewRegistry()
		require.NoError(t, reg.Register(Venue{}))
		require.NoError(t, reg.Register(&Venue{}))
		assert.Equal(t, []string{"Venues"}, reg.Tables())
	})

	t.Run("rejects a second model for the same table", func(t *testing.T) {
		reg := spannerorm.NewRegistry()
		require.NoError(t, reg.Register(Venue{}))

		err := reg.Register(venueClone{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table Venues is already registered")
	})

	t.Run("registers several models at once", func(t *testing.T) {
		reg := spannerorm.NewRegistry()
		require.NoError(t, reg.Register(Venue{}, Concert{}, Event{}))
		assert.Equal(t, []string{"Concerts", "Events", "Venues"}, reg.Tables())
	})
}

func TestRegistry_Metadata(t *testing.T) {
	reg := spannerorm.NewRegistry()
	require.NoError(t, reg.Register(Venue{}))

	t.Run("unregistered model", func(t *testing.T) {
		_, err := reg.Metadata(Event{})
		require.Error(t, err)
		assert.ErrorIs(t, err, spannerorm.ErrNotRegistered)
	})

	t.Run("non-struct model", func(t *testing.T) {
		_, err := reg.Metadata(5)
		require.Error(t, err)
		assert.ErrorIs(t, err, spannerorm.ErrValidation)
	})

	t.Run("by table name", func(t *testing.T) {
		md, ok := reg.MetadataForTable("Venues")
		require.True(t, ok)
		assert.Equal(t, "Venues", md.Table())

		_, ok = reg.MetadataForTable("Ghosts")
		assert.False(t, ok)
	})
}

func TestRegistry_MustRegister(t *testing.T) {
	assert.Panics(t, func() {
		spannerorm.NewRegistry().MustRegister(noBase{})
	})

	assert.NotPanics(t, func() {
		spannerorm.NewRegistry().MustRegister(Venue{})
	})
}

func TestDefaultRegistry(t *testing.T) {
	require.NoError(t, spannerorm.Register(Concert{}))

	md, ok := spannerorm.DefaultRegistry().MetadataForTable("Concerts")
	require.True(t, ok)
	assert.Equal(t, "Venues", md.Parent())
}
