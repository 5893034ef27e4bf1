package spannerorm

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds the Spanner connection settings
type Config struct {
	// Project is the GCP project id
	Project string
	// Instance is the Spanner instance id
	Instance string
	// Database is the database name
	Database string
	// CredentialsFile is a path to a service account key file. Ignored when
	// CredentialsJSON or EmulatorHost is set.
	CredentialsFile string
	// CredentialsJSON is a service account key already loaded by the caller.
	// Ignored when EmulatorHost is set.
	CredentialsJSON []byte
	// EmulatorHost points the client at a Spanner emulator, host:port
	EmulatorHost string
	// MinSessions and MaxSessions bound the session pool. Zero keeps the
	// client defaults.
	MinSessions uint64
	MaxSessions uint64
}

// DatabasePath returns the fully qualified database resource name
func (c Config) DatabasePath() string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", c.Project, c.Instance, c.Database)
}

// InstancePath returns the fully qualified instance resource name
func (c Config) InstancePath() string {
	return fmt.Sprintf("projects/%s/instances/%s", c.Project, c.Instance)
}

// ClientOptions returns the google api options matching the config: emulator
// transport when EmulatorHost is set, explicit credentials otherwise.
func (c Config) ClientOptions() []option.ClientOption {
	if c.EmulatorHost != "" {
		return []option.ClientOption{
			option.WithEndpoint(c.EmulatorHost),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	var opts []option.ClientOption
	if len(c.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(c.CredentialsJSON))
	} else if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

func (c Config) validate() error {
	if c.Project == "" || c.Instance == "" || c.Database == "" {
		return validationError("spanner config requires project, instance and database")
	}
	return nil
}

// Client reads and writes registered models against one Spanner database
type Client struct {
	sc         *spanner.Client
	reg        *Registry
	log        *zap.Logger
	clientOpts []option.ClientOption
}

// Option configures a Client
type Option func(*Client)

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRegistry resolves models against reg instead of the default registry
func WithRegistry(reg *Registry) Option {
	return func(c *Client) {
		if reg != nil {
			c.reg = reg
		}
	}
}

// WithClientOptions forwards extra google api options to the Spanner client
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// Connect opens a client for cfg and verifies the database is reachable with
// a probe query
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{reg: defaultRegistry, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}

	sconf := spanner.ClientConfig{SessionPoolConfig: spanner.DefaultSessionPoolConfig}
	if cfg.MinSessions > 0 {
		sconf.SessionPoolConfig.MinOpened = cfg.MinSessions
	}
	if cfg.MaxSessions > 0 {
		sconf.SessionPoolConfig.MaxOpened = cfg.MaxSessions
	}
	copts := append(cfg.ClientOptions(), c.clientOpts...)
	sc, err := spanner.NewClientWithConfig(ctx, cfg.DatabasePath(), sconf, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create spanner client: %w", err)
	}
	c.sc = sc
	if err := c.Ping(ctx); err != nil {
		sc.Close()
		return nil, err
	}
	c.log.Info("connected to spanner",
		zap.String("database", cfg.DatabasePath()),
		zap.Bool("emulator", cfg.EmulatorHost != ""))
	return c, nil
}

// NewClient wraps an existing spanner client. The caller keeps ownership of
// sc and closes it through Close as usual.
func NewClient(sc *spanner.Client, opts ...Option) *Client {
	c := &Client{sc: sc, reg: defaultRegistry, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ping runs a trivial query to verify the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	iter := c.sc.Single().Query(ctx, spanner.Statement{SQL: "SELECT 1"})
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("failed to ping spanner: %w", err)
	}
	return nil
}

// Registry returns the registry the client resolves models against
func (c *Client) Registry() *Registry {
	return c.reg
}

// Spanner exposes the underlying client for operations the package does not
// cover
func (c *Client) Spanner() *spanner.Client {
	return c.sc
}

// Close releases the session pool
func (c *Client) Close() {
	c.sc.Close()
}

// single returns ops reading through a fresh single-use snapshot
func (c *Client) single() ops {
	return ops{reader: c.sc.Single(), reg: c.reg, log: c.log}
}

// applied returns a mutator writing through a standalone commit
func (c *Client) applied() mutator {
	return mutator{ops{
		apply: func(ctx context.Context, ms []*spanner.Mutation) error {
			_, err := c.sc.Apply(ctx, ms)
			return err
		},
		reg: c.reg,
		log: c.log,
	}}
}
