package secrets

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// SecretSource defines where secrets are loaded from
type SecretSource string

const (
	// SourceEnvironment loads secrets from environment variables
	SourceEnvironment SecretSource = "environment"
	// SourceManager loads secrets from Google Secret Manager
	SourceManager SecretSource = "manager"
	// SourceAuto automatically determines source based on environment
	// Uses Secret Manager in staging/production, environment in development
	SourceAuto SecretSource = "auto"
)

// Provider abstracts secret retrieval from different sources
type Provider struct {
	source      SecretSource
	manager     *ManagerClient
	logger      *zap.Logger
	environment string
}

// ProviderConfig holds configuration for the secrets provider
type ProviderConfig struct {
	Source       SecretSource
	Project      string
	Environment  string // "development", "staging", "production"
	CacheEnabled bool
	CacheTTL     time.Duration
	// ClientOptions are passed to the Secret Manager client
	ClientOptions []option.ClientOption
}

// NewProvider creates a new secrets provider
func NewProvider(ctx context.Context, cfg *ProviderConfig, logger *zap.Logger) (*Provider, error) {
	source := cfg.Source

	// Resolve "auto" source based on environment
	if source == SourceAuto {
		switch cfg.Environment {
		case "development", "local", "":
			source = SourceEnvironment
		default:
			// staging, production, or any other environment uses Secret Manager
			source = SourceManager
		}
		logger.Info("auto-detected secret source",
			zap.String("source", string(source)),
			zap.String("environment", cfg.Environment),
		)
	}

	provider := &Provider{
		source:      source,
		logger:      logger,
		environment: cfg.Environment,
	}

	if source == SourceManager {
		if cfg.Project == "" {
			return nil, fmt.Errorf("project required when using the manager secret source")
		}

		manager, err := NewManagerClient(ctx, &ManagerConfig{
			Project:      cfg.Project,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
		}, logger, cfg.ClientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secret manager client: %w", err)
		}
		provider.manager = manager
	}

	logger.Info("secrets provider initialized",
		zap.String("source", string(source)),
		zap.String("environment", cfg.Environment),
	)

	return provider, nil
}

// GetSecret retrieves a secret by name.
// For the manager source, secretName is the Secret Manager secret name.
// For the environment source, secretName is the environment variable name.
func (p *Provider) GetSecret(ctx context.Context, secretName string) (string, error) {
	switch p.source {
	case SourceEnvironment:
		value := os.Getenv(secretName)
		if value == "" {
			return "", fmt.Errorf("environment variable %q not set", secretName)
		}
		return value, nil

	case SourceManager:
		if p.manager == nil {
			return "", fmt.Errorf("secret manager client not initialized")
		}
		return p.manager.GetSecret(ctx, secretName)

	default:
		return "", fmt.Errorf("unknown secret source: %s", p.source)
	}
}

// GetSecretWithDefault retrieves a secret, returning defaultValue if not found
func (p *Provider) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	value, err := p.GetSecret(ctx, secretName)
	if err != nil {
		p.logger.Debug("using default value for secret",
			zap.String("secret_name", secretName),
			zap.String("source", string(p.source)),
		)
		return defaultValue
	}
	return value
}

// GetSecretOrEnv tries the configured source, with an explicit environment
// variable override checked first
func (p *Provider) GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error) {
	if envValue := os.Getenv(envName); envValue != "" {
		p.logger.Debug("using environment variable override",
			zap.String("env_name", envName),
		)
		return envValue, nil
	}
	return p.GetSecret(ctx, secretName)
}

// Source returns the current secret source
func (p *Provider) Source() SecretSource {
	return p.source
}

// IsManagerEnabled returns true if secrets are loaded from Secret Manager
func (p *Provider) IsManagerEnabled() bool {
	return p.source == SourceManager
}

// Close releases the underlying Secret Manager client
func (p *Provider) Close() error {
	if p.manager != nil {
		return p.manager.Close()
	}
	return nil
}
