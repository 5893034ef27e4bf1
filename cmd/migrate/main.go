// Command migrate manages the database schema. Migrations register
// themselves through init, so a binary embedding this command must import
// the package holding the generated migration files.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/admin"
	"github.com/fjell-io/spanner-orm/internal/config"
	"github.com/fjell-io/spanner-orm/internal/logger"
	"github.com/fjell-io/spanner-orm/migration"
)

const migrationsDir = "./migrations"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate [up|down|status|version|create]")
	}
	command := args[0]
	arguments := args[1:]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// create works without a database
	if command == "create" {
		if len(arguments) == 0 {
			return fmt.Errorf("create requires a migration description")
		}
		path, err := migration.Generate(migrationsDir, strings.Join(arguments, " "), migration.DefaultSet())
		if err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}
		fmt.Printf("Migration created: %s\n", path)
		return nil
	}

	ctx := context.Background()

	cfg, err = config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	clientCfg := cfg.ToClientConfig()
	orm, err := spannerorm.Connect(ctx, clientCfg, spannerorm.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer orm.Close()

	adm, err := admin.NewClient(ctx, clientCfg, admin.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer adm.Close()

	exec, err := migration.NewExecutor(orm, adm, migration.DefaultSet(), log)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		n, err := exec.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run up migrations: %w", err)
		}
		fmt.Printf("Applied %d migrations\n", n)

	case "down":
		id, err := exec.Down(ctx)
		if err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		fmt.Printf("Reverted migration %s\n", id)

	case "status":
		statuses, err := exec.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		if len(statuses) == 0 {
			fmt.Println("No migrations registered")
			return nil
		}
		for _, s := range statuses {
			marker := "[ ]"
			applied := ""
			if s.Applied {
				marker = "[x]"
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s %s  %-40s %s\n", marker, s.ID, s.Description, applied)
		}

	case "version":
		v, err := exec.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		if v == "" {
			fmt.Println("No migrations applied")
		} else {
			fmt.Println(v)
		}

	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	return nil
}
