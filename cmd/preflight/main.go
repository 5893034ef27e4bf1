// Command preflight verifies the deployment environment: runtime version,
// dependency pins, credentials, ports, and optionally database and bucket
// connectivity. Checks run in a fixed order and the first failure ends the
// run with a non-zero exit status.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fjell-io/spanner-orm/internal/config"
	"github.com/fjell-io/spanner-orm/internal/logger"
	"github.com/fjell-io/spanner-orm/internal/preflight"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Preflight failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pins, err := preflight.ParsePins(cfg.Preflight.DependencyPins)
	if err != nil {
		return err
	}

	runner := preflight.NewRunner(log, cfg.Preflight.TimeoutDuration())
	runner.Add(
		preflight.RuntimeVersion(cfg.Preflight.MinRuntimeVersion),
		preflight.DependencyPins(pins),
		preflight.Credentials(cfg.Preflight.CredentialsPath),
		preflight.ModelRegistry(),
		preflight.PortAllocator(),
	)
	if cfg.Preflight.CheckSpanner {
		runner.Add(preflight.SpannerConnect(cfg.ToClientConfig()))
	}
	if cfg.Preflight.CheckStorage {
		runner.Add(preflight.StorageAccess(cfg.Storage.Bucket))
	}

	results, err := runner.Run(context.Background())
	for _, res := range results {
		fmt.Printf("ok  %-18s %s\n", res.Name, res.Detail)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d checks passed\n", len(results))
	return nil
}
