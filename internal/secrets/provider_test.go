package secrets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/fjell-io/spanner-orm/internal/secrets"
)

func newEnvProvider(t *testing.T) *secrets.Provider {
	t.Helper()
	p, err := secrets.NewProvider(context.Background(), &secrets.ProviderConfig{
		Source: secrets.SourceEnvironment,
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewProvider_SourceResolution(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		cfg         secrets.ProviderConfig
		wantSource  secrets.SecretSource
		wantManaged bool
		wantErr     string
	}{
		{
			name:       "explicit environment",
			cfg:        secrets.ProviderConfig{Source: secrets.SourceEnvironment},
			wantSource: secrets.SourceEnvironment,
		},
		{
			name:       "auto in development",
			cfg:        secrets.ProviderConfig{Source: secrets.SourceAuto, Environment: "development"},
			wantSource: secrets.SourceEnvironment,
		},
		{
			name:       "auto with no environment",
			cfg:        secrets.ProviderConfig{Source: secrets.SourceAuto},
			wantSource: secrets.SourceEnvironment,
		},
		{
			name: "auto in production",
			cfg: secrets.ProviderConfig{
				Source: secrets.SourceAuto, Environment: "production", Project: "demo",
				ClientOptions: []option.ClientOption{option.WithoutAuthentication()},
			},
			wantSource:  secrets.SourceManager,
			wantManaged: true,
		},
		{
			name:    "manager without project",
			cfg:     secrets.ProviderConfig{Source: secrets.SourceManager},
			wantErr: "project required when using the manager secret source",
		},
		{
			name:    "auto in staging without project",
			cfg:     secrets.ProviderConfig{Source: secrets.SourceAuto, Environment: "staging"},
			wantErr: "project required when using the manager secret source",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := secrets.NewProvider(ctx, &tt.cfg, zap.NewNop())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.wantSource, p.Source())
			assert.Equal(t, tt.wantManaged, p.IsManagerEnabled())
		})
	}
}

func TestProvider_GetSecretFromEnvironment(t *testing.T) {
	p := newEnvProvider(t)
	ctx := context.Background()

	t.Setenv("DEMO_SECRET", "hunter2")
	value, err := p.GetSecret(ctx, "DEMO_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)

	_, err = p.GetSecret(ctx, "ABSENT_SECRET")
	assert.ErrorContains(t, err, `environment variable "ABSENT_SECRET" not set`)
}

func TestProvider_GetSecretWithDefault(t *testing.T) {
	p := newEnvProvider(t)
	ctx := context.Background()

	t.Setenv("DEMO_SECRET", "hunter2")
	assert.Equal(t, "hunter2", p.GetSecretWithDefault(ctx, "DEMO_SECRET", "fallback"))
	assert.Equal(t, "fallback", p.GetSecretWithDefault(ctx, "ABSENT_SECRET", "fallback"))
}

func TestProvider_GetSecretOrEnv(t *testing.T) {
	p := newEnvProvider(t)
	ctx := context.Background()

	t.Setenv("DEMO_SECRET", "from-source")
	t.Setenv("DEMO_OVERRIDE", "from-override")

	value, err := p.GetSecretOrEnv(ctx, "DEMO_SECRET", "DEMO_OVERRIDE")
	require.NoError(t, err)
	assert.Equal(t, "from-override", value, "the override variable wins when set")

	value, err = p.GetSecretOrEnv(ctx, "DEMO_SECRET", "UNSET_OVERRIDE")
	require.NoError(t, err)
	assert.Equal(t, "from-source", value)
}

func TestProvider_UnknownSource(t *testing.T) {
	p, err := secrets.NewProvider(context.Background(), &secrets.ProviderConfig{
		Source: secrets.SecretSource("vault"),
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "ANYTHING")
	assert.ErrorContains(t, err, "unknown secret source: vault")
}
