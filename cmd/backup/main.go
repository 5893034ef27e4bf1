// Command backup exports and restores table snapshots. Models register
// themselves through init, so a binary embedding this command must import
// the package defining the application models.
//
// Usage:
//
//	backup run                   export a snapshot now
//	backup restore <snapshot>    restore a snapshot
//	backup list                  list available snapshots
//	backup schedule              run the cron-scheduled export until stopped
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/backup"
	"github.com/fjell-io/spanner-orm/internal/config"
	"github.com/fjell-io/spanner-orm/internal/jobs"
	"github.com/fjell-io/spanner-orm/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return fmt.Errorf("usage: backup [run|restore <snapshot-id>|list|schedule]")
	}
	command := args[0]
	arguments := args[1:]

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	store, err := backup.NewStore(ctx, cfg.ToStoreConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot store: %w", err)
	}
	log.Info("snapshot store initialized", zap.String("mode", cfg.Storage.Mode))

	// list works without a database
	if command == "list" {
		ids, err := backup.ListSnapshots(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	orm, err := spannerorm.Connect(ctx, cfg.ToClientConfig(), spannerorm.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer orm.Close()

	switch command {
	case "run":
		exp := backup.NewExporter(orm, store, log)
		exp.SetParallelism(cfg.Backup.Parallelism)
		man, err := exp.Export(ctx, cfg.Backup.Tables...)
		if err != nil {
			return fmt.Errorf("failed to export snapshot: %w", err)
		}
		fmt.Printf("Snapshot %s: %d tables, %d rows\n", man.SnapshotID, len(man.Tables), man.TotalRows())

	case "restore":
		if len(arguments) == 0 {
			return fmt.Errorf("restore requires a snapshot id")
		}
		imp := backup.NewImporter(orm, store, log)
		man, err := imp.Restore(ctx, arguments[0], arguments[1:]...)
		if err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		fmt.Printf("Restored snapshot %s: %d rows\n", man.SnapshotID, man.TotalRows())

	case "schedule":
		exp := backup.NewExporter(orm, store, log)
		exp.SetParallelism(cfg.Backup.Parallelism)

		scheduler := jobs.NewScheduler(log)
		if err := jobs.RegisterBackupJob(scheduler, exp, cfg.Backup.Tables, log, cfg.Backup.Schedule, cfg.Backup.TimeoutDuration()); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
		scheduler.Start()
		log.Info("snapshot schedule active", zap.String("cron_expr", cfg.Backup.Schedule))

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		sig := <-shutdown
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		<-scheduler.Stop().Done()
		log.Info("scheduler stopped")

	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	return nil
}
