package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// ManifestObject is the object name of a snapshot's manifest, relative to
// the snapshot directory. The manifest is written last, so a snapshot with
// a manifest is complete.
const ManifestObject = "manifest.json"

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"
)

// Manifest describes one completed snapshot
type Manifest struct {
	SnapshotID string          `json:"snapshotId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Version    string          `json:"version,omitempty"`
	Tables     []TableManifest `json:"tables"`
}

// TableManifest describes one exported table
type TableManifest struct {
	Table  string `json:"table"`
	Rows   int64  `json:"rows"`
	Object string `json:"object"`
}

// TotalRows returns the number of rows across all tables
func (m *Manifest) TotalRows() int64 {
	var n int64
	for _, t := range m.Tables {
		n += t.Rows
	}
	return n
}

// Exporter writes snapshots of registered model tables to an object store
type Exporter struct {
	orm      *spannerorm.Client
	store    ObjectStore
	log      *zap.Logger
	parallel int
}

// NewExporter creates an exporter writing through store
func NewExporter(orm *spannerorm.Client, store ObjectStore, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{orm: orm, store: store, log: log, parallel: 4}
}

// SetParallelism bounds the number of tables exported concurrently
func (e *Exporter) SetParallelism(n int) {
	if n > 0 {
		e.parallel = n
	}
}

// Export snapshots the given tables, or every registered table when none
// are named. All tables are read from a single read-only transaction, so
// the rows of one snapshot are consistent across tables. Each table is
// written as one JSON Lines object, and the manifest is written last.
func (e *Exporter) Export(ctx context.Context, tables ...string) (*Manifest, error) {
	if len(tables) == 0 {
		tables = e.orm.Registry().Tables()
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to export")
	}

	man := &Manifest{
		SnapshotID: newSnapshotID(),
		CreatedAt:  time.Now().UTC(),
		Version:    moduleVersion(),
	}

	txn := e.orm.ReadOnly()
	defer txn.Close()

	results := make([]TableManifest, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			tm, err := e.exportTable(gctx, txn, man.SnapshotID, table)
			if err != nil {
				return err
			}
			results[i] = tm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	man.Tables = results

	body, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	name := path.Join(man.SnapshotID, ManifestObject)
	if _, err := e.store.Put(ctx, name, contentTypeJSON, bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	e.log.Info("exported snapshot",
		zap.String("snapshot", man.SnapshotID),
		zap.Int("tables", len(man.Tables)),
		zap.Int64("rows", man.TotalRows()))
	return man, nil
}

// exportTable streams one table through a pipe into the store
func (e *Exporter) exportTable(ctx context.Context, txn *spannerorm.ReadOnlyTxn, snapshot, table string) (TableManifest, error) {
	md, ok := e.orm.Registry().MetadataForTable(table)
	if !ok {
		return TableManifest{}, fmt.Errorf("table %s: %w", table, spannerorm.ErrNotRegistered)
	}

	object := path.Join(snapshot, "tables", table+".jsonl")
	pr, pw := io.Pipe()
	var rows int64
	done := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(pw)
		err := txn.Each(ctx, md.New(), func(m interface{}) error {
			rows++
			return enc.Encode(m)
		})
		pw.CloseWithError(err)
		done <- err
	}()

	if _, err := e.store.Put(ctx, object, contentTypeJSONL, pr); err != nil {
		pr.CloseWithError(err)
		<-done
		return TableManifest{}, fmt.Errorf("failed to export table %s: %w", table, err)
	}
	if err := <-done; err != nil {
		return TableManifest{}, fmt.Errorf("failed to export table %s: %w", table, err)
	}

	e.log.Debug("exported table", zap.String("table", table), zap.Int64("rows", rows))
	return TableManifest{Table: table, Rows: rows, Object: object}, nil
}

// newSnapshotID builds a sortable id from the current time and a random tail
func newSnapshotID() string {
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), tail)
}

// moduleVersion reports the main module version baked into the binary
func moduleVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.Main.Version
	}
	return ""
}

// ListSnapshots returns the snapshot ids present in the store, oldest first.
// Only snapshots with a manifest are listed.
func ListSnapshots(ctx context.Context, store ObjectStore) ([]string, error) {
	names, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		if path.Base(name) != ManifestObject {
			continue
		}
		id := path.Dir(name)
		if id == "." || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
