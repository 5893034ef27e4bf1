package spannerorm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spannerorm "github.com/fjell-io/spanner-orm"
)

func TestConfig_Paths(t *testing.T) {
	cfg := spannerorm.Config{Project: "p", Instance: "i", Database: "d"}
	assert.Equal(t, "projects/p/instances/i/databases/d", cfg.DatabasePath())
	assert.Equal(t, "projects/p/instances/i", cfg.InstancePath())
}

func TestConfig_ClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      spannerorm.Config
		wantOpts int
	}{
		{
			name:     "no credentials",
			cfg:      spannerorm.Config{},
			wantOpts: 0,
		},
		{
			name:     "credentials file",
			cfg:      spannerorm.Config{CredentialsFile: "/app/spanner-key.json"},
			wantOpts: 1,
		},
		{
			name:     "credentials json wins over file",
			cfg:      spannerorm.Config{CredentialsFile: "/app/spanner-key.json", CredentialsJSON: []byte(`{}`)},
			wantOpts: 1,
		},
		{
			name:     "emulator transport",
			cfg:      spannerorm.Config{EmulatorHost: "localhost:9010", CredentialsFile: "/app/spanner-key.json"},
			wantOpts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.cfg.ClientOptions(), tt.wantOpts)
		})
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  spannerorm.Config
	}{
		{"empty", spannerorm.Config{}},
		{"missing database", spannerorm.Config{Project: "p", Instance: "i"}},
		{"missing instance", spannerorm.Config{Project: "p", Database: "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := spannerorm.Connect(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, spannerorm.ErrValidation)
			assert.Contains(t, err.Error(), "spanner config requires project, instance and database")
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, spannerorm.IsNotFound(spannerorm.ErrNotFound))
	assert.False(t, spannerorm.IsNotFound(spannerorm.ErrValidation))
	assert.False(t, spannerorm.IsNotFound(nil))
}
