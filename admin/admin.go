// Package admin manages Spanner databases for registered models: database
// creation and teardown, schema DDL derived from model metadata, and
// INFORMATION_SCHEMA introspection.
package admin

import (
	"context"
	"fmt"

	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// Client manages one database through the Spanner database admin API
type Client struct {
	dba *database.DatabaseAdminClient
	cfg spannerorm.Config
	log *zap.Logger
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

// NewClient creates an admin client for the database named by cfg. The
// database itself does not have to exist yet.
func NewClient(ctx context.Context, cfg spannerorm.Config, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	dba, err := database.NewDatabaseAdminClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database admin client: %w", err)
	}
	c.dba = dba
	return c, nil
}

// Close releases the admin connection
func (c *Client) Close() error {
	return c.dba.Close()
}

// DatabaseExists reports whether the database exists
func (c *Client) DatabaseExists(ctx context.Context) (bool, error) {
	_, err := c.dba.GetDatabase(ctx, &databasepb.GetDatabaseRequest{Name: c.cfg.DatabasePath()})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up database %s: %w", c.cfg.Database, err)
	}
	return true, nil
}

// CreateDatabase creates the database, applying any extra DDL statements in
// the same operation
func (c *Client) CreateDatabase(ctx context.Context, extraDDL ...string) error {
	op, err := c.dba.CreateDatabase(ctx, &databasepb.CreateDatabaseRequest{
		Parent:          c.cfg.InstancePath(),
		CreateStatement: fmt.Sprintf("CREATE DATABASE `%s`", c.cfg.Database),
		ExtraStatements: extraDDL,
	})
	if err != nil {
		return fmt.Errorf("failed to create database %s: %w", c.cfg.Database, err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return fmt.Errorf("failed to create database %s: %w", c.cfg.Database, err)
	}
	c.log.Info("created database",
		zap.String("database", c.cfg.DatabasePath()),
		zap.Int("statements", len(extraDDL)))
	return nil
}

// DropDatabase deletes the database and all of its data
func (c *Client) DropDatabase(ctx context.Context) error {
	err := c.dba.DropDatabase(ctx, &databasepb.DropDatabaseRequest{Database: c.cfg.DatabasePath()})
	if err != nil {
		return fmt.Errorf("failed to drop database %s: %w", c.cfg.Database, err)
	}
	c.log.Info("dropped database", zap.String("database", c.cfg.DatabasePath()))
	return nil
}

// UpdateDDL applies DDL statements and waits for them to take effect
func (c *Client) UpdateDDL(ctx context.Context, statements ...string) error {
	if len(statements) == 0 {
		return nil
	}
	op, err := c.dba.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   c.cfg.DatabasePath(),
		Statements: statements,
	})
	if err != nil {
		return fmt.Errorf("failed to update ddl: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("failed to update ddl: %w", err)
	}
	c.log.Debug("applied ddl", zap.Int("statements", len(statements)))
	return nil
}

// DatabaseDDL returns the DDL statements describing the current schema
func (c *Client) DatabaseDDL(ctx context.Context) ([]string, error) {
	resp, err := c.dba.GetDatabaseDdl(ctx, &databasepb.GetDatabaseDdlRequest{
		Database: c.cfg.DatabasePath(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ddl: %w", err)
	}
	return resp.GetStatements(), nil
}
