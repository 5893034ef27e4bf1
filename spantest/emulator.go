package spantest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// EmulatorImage is the container image started when no external emulator is
// configured through SPANNER_EMULATOR_HOST.
const EmulatorImage = "gcr.io/cloud-spanner-emulator/emulator:1.5.25"

const emulatorPort = "9010/tcp"

var (
	emuOnce sync.Once
	emuHost string
	emuErr  error
)

// EmulatorHost returns the host:port of a running Spanner emulator. It
// honors SPANNER_EMULATOR_HOST when set and otherwise starts one emulator
// container shared by the whole test binary. The container is reaped by
// testcontainers when the binary exits.
func EmulatorHost(ctx context.Context) (string, error) {
	if host := os.Getenv("SPANNER_EMULATOR_HOST"); host != "" {
		return host, nil
	}
	emuOnce.Do(func() {
		emuHost, emuErr = startEmulator(ctx)
	})
	return emuHost, emuErr
}

func startEmulator(ctx context.Context) (host string, err error) {
	// testcontainers panics when no container runtime is reachable
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to start emulator container: %v", r)
		}
	}()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        EmulatorImage,
			ExposedPorts: []string{emulatorPort},
			WaitingFor:   wait.ForListeningPort(emulatorPort).WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start emulator container: %w", err)
	}
	h, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve emulator host: %w", err)
	}
	p, err := container.MappedPort(ctx, emulatorPort)
	if err != nil {
		return "", fmt.Errorf("failed to resolve emulator port: %w", err)
	}
	return fmt.Sprintf("%s:%s", h, p.Port()), nil
}

// RequireEmulator returns the emulator address or skips the test when no
// emulator can be reached or started
func RequireEmulator(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	host, err := EmulatorHost(ctx)
	if err != nil {
		t.Skipf("spanner emulator unavailable: %v", err)
	}
	if err := WaitTCP(ctx, host); err != nil {
		t.Skipf("spanner emulator unreachable at %s: %v", host, err)
	}
	return host
}
