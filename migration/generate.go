package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

var fileTemplate = template.Must(template.New("migration").Parse(`package {{.Package}}

import (
	"github.com/fjell-io/spanner-orm/admin"
	"github.com/fjell-io/spanner-orm/migration"
)

func init() {
	migration.Register(&migration.Migration{
		ID:          {{.ID}},
		PrevID:      {{.PrevID}},
		Description: {{.Description}},
		Up: func() []admin.SchemaUpdate {
			return []admin.SchemaUpdate{
				// TODO add the schema updates this migration applies
			}
		},
		Down: func() []admin.SchemaUpdate {
			return []admin.SchemaUpdate{
				admin.NoUpdate{},
			}
		},
	})
}
`))

// Generate writes a new migration file into dir, chained after the newest
// migration of set, and returns its path. A nil set means the default set.
func Generate(dir, description string, set *Set) (string, error) {
	if set == nil {
		set = defaultSet
	}
	chain, err := BuildChain(set)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := fmt.Sprintf("%s_%s.go", time.Now().UTC().Format("20060102150405"), fileFragment(description))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	data := struct {
		Package, ID, PrevID, Description string
	}{
		Package:     packageName(dir),
		ID:          fmt.Sprintf("%q", id),
		PrevID:      fmt.Sprintf("%q", chain.Last()),
		Description: fmt.Sprintf("%q", description),
	}
	if err := fileTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("failed to render migration: %w", err)
	}
	return path, nil
}

// fileFragment lowercases the description into a file name fragment
func fileFragment(s string) string {
	var sb strings.Builder
	gap := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			gap = false
		default:
			if !gap && sb.Len() > 0 {
				sb.WriteByte('_')
				gap = true
			}
		}
	}
	out := strings.TrimSuffix(sb.String(), "_")
	if out == "" {
		return "migration"
	}
	return out
}

// packageName derives a Go package name from the target directory
func packageName(dir string) string {
	base := filepath.Base(filepath.Clean(dir))
	var sb strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9' && sb.Len() > 0) || r == '_' {
			sb.WriteRune(r)
		}
	}
	name := sb.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "migrations"
	}
	return name
}
