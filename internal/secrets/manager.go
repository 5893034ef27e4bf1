package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ManagerClient wraps the Google Secret Manager client for secret retrieval
type ManagerClient struct {
	client       *secretmanager.Client
	project      string
	logger       *zap.Logger
	mu           sync.Mutex
	cache        map[string]cachedSecret
	cacheTTL     time.Duration
	cacheEnabled bool
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// ManagerConfig holds configuration for the Secret Manager client
type ManagerConfig struct {
	Project      string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// NewManagerClient creates a new Secret Manager client. Credentials come
// from Application Default Credentials unless overridden through opts.
func NewManagerClient(ctx context.Context, cfg *ManagerConfig, logger *zap.Logger, opts ...option.ClientOption) (*ManagerClient, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	logger.Info("secret manager client initialized",
		zap.String("project", cfg.Project),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
	)

	return &ManagerClient{
		client:       client,
		project:      cfg.Project,
		logger:       logger,
		cache:        make(map[string]cachedSecret),
		cacheTTL:     cacheTTL,
		cacheEnabled: cfg.CacheEnabled,
	}, nil
}

// resourceName expands a short secret name into a full version resource.
// Names already containing a slash are used as-is.
func (m *ManagerClient) resourceName(secretName string) string {
	if strings.Contains(secretName, "/") {
		return secretName
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", m.project, secretName)
}

// GetSecret retrieves a secret from Secret Manager
func (m *ManagerClient) GetSecret(ctx context.Context, secretName string) (string, error) {
	if m.cacheEnabled {
		m.mu.Lock()
		if cached, ok := m.cache[secretName]; ok {
			if time.Now().Before(cached.expiresAt) {
				m.mu.Unlock()
				m.logger.Debug("secret retrieved from cache", zap.String("secret_name", secretName))
				return cached.value, nil
			}
			delete(m.cache, secretName)
		}
		m.mu.Unlock()
	}

	m.logger.Debug("fetching secret from secret manager", zap.String("secret_name", secretName))

	resp, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: m.resourceName(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", secretName, err)
	}
	if resp.Payload == nil {
		return "", fmt.Errorf("secret %q has no value", secretName)
	}

	value := string(resp.Payload.Data)

	if m.cacheEnabled {
		m.mu.Lock()
		m.cache[secretName] = cachedSecret{
			value:     value,
			expiresAt: time.Now().Add(m.cacheTTL),
		}
		m.mu.Unlock()
	}

	return value, nil
}

// GetSecretWithDefault retrieves a secret, returning defaultValue on error
func (m *ManagerClient) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	value, err := m.GetSecret(ctx, secretName)
	if err != nil {
		m.logger.Warn("failed to get secret, using default",
			zap.String("secret_name", secretName),
			zap.Error(err),
		)
		return defaultValue
	}
	return value
}

// ClearCache clears all cached secrets
func (m *ManagerClient) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]cachedSecret)
	m.mu.Unlock()
	m.logger.Debug("secret cache cleared")
}

// Close releases the underlying client
func (m *ManagerClient) Close() error {
	return m.client.Close()
}
