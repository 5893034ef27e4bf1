// Package spantest provides helpers for testing model code against a Cloud
// Spanner emulator: port allocation, emulator discovery and startup, and
// per-test database provisioning.
package spantest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	instance "cloud.google.com/go/spanner/admin/instance/apiv1"
	"cloud.google.com/go/spanner/admin/instance/apiv1/instancepb"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	spannerorm "github.com/fjell-io/spanner-orm"
	"github.com/fjell-io/spanner-orm/admin"
)

// Identifiers used for emulator-backed test databases
const (
	ProjectID  = "test-project"
	InstanceID = "test-instance"
)

// UniqueDatabaseID returns a database id usable for one test. Database ids
// must start with a letter and stay within 30 characters, so the random
// fragment is prefixed and truncated.
func UniqueDatabaseID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewDatabase creates a fresh emulator database holding the schema of the
// given models and returns a client connected to it with all models
// registered. The database is dropped and the client closed when the test
// finishes. Tests are skipped when no emulator is available.
func NewDatabase(t *testing.T, models ...spannerorm.TableNamer) *spannerorm.Client {
	t.Helper()
	host := RequireEmulator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := spannerorm.Config{
		Project:      ProjectID,
		Instance:     InstanceID,
		Database:     UniqueDatabaseID(),
		EmulatorHost: host,
	}
	if err := EnsureInstance(ctx, cfg); err != nil {
		t.Fatalf("ensure instance: %v", err)
	}

	reg := spannerorm.NewRegistry()
	if err := reg.Register(models...); err != nil {
		t.Fatalf("register models: %v", err)
	}
	ddl, err := admin.AllDDL(reg, models...)
	if err != nil {
		t.Fatalf("render schema: %v", err)
	}

	adm, err := admin.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("admin client: %v", err)
	}
	if err := adm.CreateDatabase(ctx, ddl...); err != nil {
		adm.Close()
		t.Fatalf("create database %s: %v", cfg.Database, err)
	}

	orm, err := spannerorm.Connect(ctx, cfg, spannerorm.WithRegistry(reg))
	if err != nil {
		adm.Close()
		t.Fatalf("connect to %s: %v", cfg.Database, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		orm.Close()
		if err := adm.DropDatabase(ctx); err != nil {
			t.Logf("drop database %s: %v", cfg.Database, err)
		}
		adm.Close()
	})
	return orm
}

// EnsureInstance creates the instance named by cfg when it does not exist
// yet. The emulator starts with no instances, so tests managing their own
// databases call this before any admin operation.
func EnsureInstance(ctx context.Context, cfg spannerorm.Config) error {
	iac, err := instance.NewInstanceAdminClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create instance admin client: %w", err)
	}
	defer iac.Close()

	op, err := iac.CreateInstance(ctx, &instancepb.CreateInstanceRequest{
		Parent:     "projects/" + cfg.Project,
		InstanceId: cfg.Instance,
		Instance: &instancepb.Instance{
			Config:      fmt.Sprintf("projects/%s/instanceConfigs/emulator-config", cfg.Project),
			DisplayName: "Test instance",
			NodeCount:   1,
		},
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}
