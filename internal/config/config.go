// Package config loads application configuration from config files,
// environment variables and .env files.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/backup"
	"github.com/fjell-io/spanner-orm/internal/secrets"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Spanner   SpannerConfig
	Storage   StorageConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Backup    BackupConfig
	Preflight PreflightConfig
}

type AppConfig struct {
	Name        string `validate:"required"`
	Environment string `validate:"oneof=development staging production"`
}

// SpannerConfig identifies the database and how to authenticate against it
type SpannerConfig struct {
	Project  string `validate:"required"`
	Instance string `validate:"required"`
	Database string `validate:"required"`
	// CredentialsFile is the service account key path
	// (bound to GOOGLE_APPLICATION_CREDENTIALS)
	CredentialsFile string
	// CredentialsSecret optionally names a Secret Manager secret holding the
	// key JSON, used instead of CredentialsFile when set
	CredentialsSecret string
	// CredentialsJSON holds the key resolved from CredentialsSecret.
	// Populated by LoadWithSecrets, never read from file or environment.
	CredentialsJSON []byte `mapstructure:"-"`
	// EmulatorHost points the client at an emulator instead of the service
	// (bound to SPANNER_EMULATOR_HOST)
	EmulatorHost string
	// MinSessions and MaxSessions override the session pool bounds when > 0
	MinSessions int `validate:"min=0"`
	MaxSessions int `validate:"min=0"`
}

type StorageConfig struct {
	Mode          string `validate:"oneof=local gcs"`
	LocalBasePath string
	Bucket        string
	Prefix        string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment",
	// "manager", or "auto". "auto" uses environment in development,
	// Secret Manager in staging/production.
	Source       string `validate:"oneof=environment manager auto"`
	Project      string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string `validate:"oneof=json console"`
}

// BackupConfig controls the scheduled snapshot job
type BackupConfig struct {
	Enabled bool
	// Schedule is a cron expression with seconds field
	Schedule string
	Timeout  int // seconds
	// Tables restricts the snapshot, empty means every registered table
	Tables      []string
	Parallelism int `validate:"min=1"`
}

// PreflightConfig controls the environment verification sequence
type PreflightConfig struct {
	// MinRuntimeVersion is the minimum Go runtime version accepted
	MinRuntimeVersion string
	// DependencyPins lists required module versions as path@version
	DependencyPins []string
	// CredentialsPath is where the service account key must be mounted
	CredentialsPath string
	// CheckSpanner enables the database connectivity check
	CheckSpanner bool
	// CheckStorage enables the bucket access check
	CheckStorage bool
	Timeout      int // seconds per check
}

// CacheTTLDuration returns the secret cache TTL as duration
func (s *SecretsConfig) CacheTTLDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// TimeoutDuration returns the backup timeout as duration
func (b *BackupConfig) TimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// TimeoutDuration returns the per-check timeout as duration
func (p *PreflightConfig) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// ToClientConfig maps the Spanner section onto a client configuration
func (c *Config) ToClientConfig() spannerorm.Config {
	return spannerorm.Config{
		Project:         c.Spanner.Project,
		Instance:        c.Spanner.Instance,
		Database:        c.Spanner.Database,
		CredentialsFile: c.Spanner.CredentialsFile,
		CredentialsJSON: c.Spanner.CredentialsJSON,
		EmulatorHost:    c.Spanner.EmulatorHost,
		MinSessions:     uint64(c.Spanner.MinSessions),
		MaxSessions:     uint64(c.Spanner.MaxSessions),
	}
}

// ToStoreConfig maps the Storage section onto a snapshot store configuration
func (c *Config) ToStoreConfig() backup.StoreConfig {
	return backup.StoreConfig{
		Mode:          c.Storage.Mode,
		LocalBasePath: c.Storage.LocalBasePath,
		Bucket:        c.Storage.Bucket,
		Prefix:        c.Storage.Prefix,
	}
}

// Load loads configuration from file and environment variables. Validation
// is separate so callers can load partial configuration, see Validate.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variable names used by the Google Cloud clients
	_ = v.BindEnv("spanner.credentialsFile", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("spanner.emulatorHost", "SPANNER_EMULATOR_HOST")
	_ = v.BindEnv("spanner.project", "SPANNER_PROJECT", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("secrets.project", "SECRETS_PROJECT", "GOOGLE_CLOUD_PROJECT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves the service account key
// from the configured secret source when spanner.credentialsSecret is set.
// With secrets.source = "environment" (the default in development) the
// secret is read from an environment variable, otherwise from Google Secret
// Manager.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.Spanner.CredentialsSecret == "" {
		return cfg, nil
	}

	provider, err := secrets.NewProvider(ctx, &secrets.ProviderConfig{
		Source:       secrets.SecretSource(cfg.Secrets.Source),
		Project:      cfg.Secrets.Project,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     cfg.Secrets.CacheTTLDuration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}
	defer provider.Close()

	key, err := provider.GetSecret(ctx, cfg.Spanner.CredentialsSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve spanner credentials: %w", err)
	}
	cfg.Spanner.CredentialsJSON = []byte(key)

	logger.Info("resolved spanner credentials from secret",
		zap.String("secret", cfg.Spanner.CredentialsSecret),
		zap.String("source", string(provider.Source())),
	)
	return cfg, nil
}

// Validate checks that the configuration is complete enough to reach the
// database
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Spanner.EmulatorHost == "" && c.Spanner.CredentialsFile == "" && c.Spanner.CredentialsSecret == "" {
		return fmt.Errorf("spanner credentials required: set GOOGLE_APPLICATION_CREDENTIALS, spanner.credentialsSecret or SPANNER_EMULATOR_HOST")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "spanner-orm")
	v.SetDefault("app.environment", "development")

	// Spanner defaults. The credentials path matches where deployment mounts
	// the service account key. The empty defaults register the keys with
	// viper so plain environment variables reach Unmarshal.
	v.SetDefault("spanner.project", "")
	v.SetDefault("spanner.instance", "")
	v.SetDefault("spanner.database", "")
	v.SetDefault("spanner.credentialsFile", "/app/spanner-key.json")
	v.SetDefault("spanner.credentialsSecret", "")
	v.SetDefault("spanner.emulatorHost", "")
	v.SetDefault("spanner.minSessions", 0)
	v.SetDefault("spanner.maxSessions", 0)

	// Storage defaults
	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.localBasePath", "./snapshots")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.schedule", "0 0 3 * * *") // 03:00 daily
	v.SetDefault("backup.timeout", 1800)
	v.SetDefault("backup.parallelism", 4)

	// Preflight defaults
	v.SetDefault("preflight.minRuntimeVersion", "1.23.0")
	v.SetDefault("preflight.dependencyPins", []string{
		"cloud.google.com/go/spanner@v1.73.0",
		"cloud.google.com/go/storage@v1.43.0",
	})
	v.SetDefault("preflight.credentialsPath", "/app/spanner-key.json")
	v.SetDefault("preflight.checkSpanner", false)
	v.SetDefault("preflight.checkStorage", false)
	v.SetDefault("preflight.timeout", 30)
}
