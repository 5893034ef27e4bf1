package spantest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

// FreePort asks the kernel for a free TCP port on the loopback interface.
// The port is released before returning, so a race with other processes is
// possible but unlikely.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// MustFreePort allocates a free port and fails the test when none is available
func MustFreePort(t *testing.T) int {
	t.Helper()
	p, err := FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	return p
}

// WaitTCP polls addr until a TCP connection succeeds or the context ends
func WaitTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", addr, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}
