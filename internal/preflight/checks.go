package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blang/semver/v4"
	"google.golang.org/api/option"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// credentialsEnv is the variable the Google clients read the key path from
const credentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

// RuntimeVersion requires the Go runtime to be at least min, for example
// "1.23.0"
func RuntimeVersion(min string) Check {
	return Check{
		Name: "runtime-version",
		Run: func(ctx context.Context) (string, error) {
			want, err := semver.ParseTolerant(min)
			if err != nil {
				return "", fmt.Errorf("invalid minimum version %q: %w", min, err)
			}
			raw := strings.TrimPrefix(runtime.Version(), "go")
			have, err := semver.ParseTolerant(raw)
			if err != nil {
				return "", fmt.Errorf("cannot parse runtime version %q: %w", runtime.Version(), err)
			}
			if have.LT(want) {
				return "", fmt.Errorf("runtime %s is older than required %s", raw, min)
			}
			return fmt.Sprintf("go %s >= %s", raw, min), nil
		},
	}
}

// Pin is one required module version
type Pin struct {
	Path    string
	Version string
}

// ParsePins parses "path@version" pin strings
func ParsePins(raw []string) ([]Pin, error) {
	pins := make([]Pin, 0, len(raw))
	for _, s := range raw {
		path, version, ok := strings.Cut(s, "@")
		if !ok || path == "" || version == "" {
			return nil, fmt.Errorf("invalid dependency pin %q, want path@version", s)
		}
		pins = append(pins, Pin{Path: path, Version: version})
	}
	return pins, nil
}

// DependencyPins requires the binary to be built with the exact module
// versions given
func DependencyPins(pins []Pin) Check {
	return Check{
		Name: "dependency-pins",
		Run: func(ctx context.Context) (string, error) {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				return "", fmt.Errorf("build info unavailable")
			}
			versions := make(map[string]string, len(bi.Deps))
			for _, d := range bi.Deps {
				m := d
				if m.Replace != nil {
					m = m.Replace
				}
				versions[d.Path] = m.Version
			}
			for _, pin := range pins {
				got, ok := versions[pin.Path]
				if !ok {
					return "", fmt.Errorf("module %s is not a dependency of this binary", pin.Path)
				}
				if got != pin.Version {
					return "", fmt.Errorf("module %s is %s, pinned to %s", pin.Path, got, pin.Version)
				}
			}
			return fmt.Sprintf("%d modules at pinned versions", len(pins)), nil
		},
	}
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
}

// Credentials requires GOOGLE_APPLICATION_CREDENTIALS to point at the
// configured path and the file there to hold a service account key
func Credentials(path string) Check {
	return Check{
		Name: "credentials",
		Run: func(ctx context.Context) (string, error) {
			got := os.Getenv(credentialsEnv)
			if got == "" {
				return "", fmt.Errorf("%s is not set", credentialsEnv)
			}
			if path != "" && got != path {
				return "", fmt.Errorf("%s is %q, expected %q", credentialsEnv, got, path)
			}
			body, err := os.ReadFile(got)
			if err != nil {
				return "", fmt.Errorf("cannot read key file: %w", err)
			}
			var key serviceAccountKey
			if err := json.Unmarshal(body, &key); err != nil {
				return "", fmt.Errorf("key file %s is not valid JSON: %w", got, err)
			}
			if key.Type != "service_account" {
				return "", fmt.Errorf("key file %s has type %q, expected service_account", got, key.Type)
			}
			if key.ProjectID == "" || key.PrivateKey == "" || key.ClientEmail == "" {
				return "", fmt.Errorf("key file %s is missing required fields", got)
			}
			return fmt.Sprintf("service account %s in %s", key.ClientEmail, key.ProjectID), nil
		},
	}
}

// registryCanary is a minimal model proving registration works end to end
type registryCanary struct {
	spannerorm.Base
	ID        string    `spanner:"id,primary_key"`
	CheckedAt time.Time `spanner:"checked_at,commit_ts"`
}

func (registryCanary) TableName() string { return "preflight_canary" }

// ModelRegistry requires every model to produce valid table metadata.
// With no models given, a built-in canary model verifies the machinery.
func ModelRegistry(models ...spannerorm.TableNamer) Check {
	return Check{
		Name: "model-registry",
		Run: func(ctx context.Context) (string, error) {
			if len(models) == 0 {
				models = []spannerorm.TableNamer{registryCanary{}}
			}
			reg := spannerorm.NewRegistry()
			if err := reg.Register(models...); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d models registered", len(models)), nil
		},
	}
}

// PortAllocator requires an OS-assigned TCP port to be acquirable and
// releasable
func PortAllocator() Check {
	return Check{
		Name: "port-allocator",
		Run: func(ctx context.Context) (string, error) {
			l, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return "", fmt.Errorf("cannot allocate port: %w", err)
			}
			port := l.Addr().(*net.TCPAddr).Port
			if err := l.Close(); err != nil {
				return "", fmt.Errorf("cannot release port %d: %w", port, err)
			}
			return fmt.Sprintf("allocated and released port %d", port), nil
		},
	}
}

// SpannerConnect requires the configured database to answer a probe query
func SpannerConnect(cfg spannerorm.Config) Check {
	return Check{
		Name: "spanner-connect",
		Run: func(ctx context.Context) (string, error) {
			client, err := spannerorm.Connect(ctx, cfg)
			if err != nil {
				return "", err
			}
			defer client.Close()
			return fmt.Sprintf("connected to %s", cfg.DatabasePath()), nil
		},
	}
}

// StorageAccess requires the snapshot bucket to be reachable
func StorageAccess(bucket string, opts ...option.ClientOption) Check {
	return Check{
		Name: "storage-access",
		Run: func(ctx context.Context) (string, error) {
			if bucket == "" {
				return "", fmt.Errorf("no bucket configured")
			}
			client, err := storage.NewClient(ctx, opts...)
			if err != nil {
				return "", fmt.Errorf("failed to create storage client: %w", err)
			}
			defer client.Close()
			attrs, err := client.Bucket(bucket).Attrs(ctx)
			if err != nil {
				return "", fmt.Errorf("cannot access bucket %s: %w", bucket, err)
			}
			return fmt.Sprintf("bucket %s in %s", attrs.Name, attrs.Location), nil
		},
	}
}
