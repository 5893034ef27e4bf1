package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// DefaultChunkSize bounds the rows written per commit during a restore
const DefaultChunkSize = 500

// maxLineBytes bounds a single JSON row during a restore
const maxLineBytes = 16 * 1024 * 1024

// Importer restores snapshots written by Exporter
type Importer struct {
	orm   *spannerorm.Client
	store ObjectStore
	log   *zap.Logger
	chunk int
}

// NewImporter creates an importer restoring through store
func NewImporter(orm *spannerorm.Client, store ObjectStore, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{orm: orm, store: store, log: log, chunk: DefaultChunkSize}
}

// SetChunkSize bounds the rows written per commit
func (i *Importer) SetChunkSize(n int) {
	if n > 0 {
		i.chunk = n
	}
}

// Manifest loads the manifest of a snapshot
func (i *Importer) Manifest(ctx context.Context, snapshotID string) (*Manifest, error) {
	rc, err := i.store.Get(ctx, path.Join(snapshotID, ManifestObject))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var man Manifest
	if err := json.NewDecoder(rc).Decode(&man); err != nil {
		return nil, fmt.Errorf("failed to decode manifest of %s: %w", snapshotID, err)
	}
	return &man, nil
}

// Restore writes the rows of a snapshot back into the database, upserting
// in chunks. When tables are named, only those tables are restored. The
// restored row count of each table is checked against the manifest.
func (i *Importer) Restore(ctx context.Context, snapshotID string, tables ...string) (*Manifest, error) {
	man, err := i.Manifest(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	var want map[string]bool
	if len(tables) > 0 {
		want = make(map[string]bool, len(tables))
		for _, t := range tables {
			want[t] = true
		}
	}

	var restored int
	for _, tm := range man.Tables {
		if want != nil && !want[tm.Table] {
			continue
		}
		if err := i.restoreTable(ctx, tm); err != nil {
			return nil, err
		}
		delete(want, tm.Table)
		restored++
	}
	for t := range want {
		return nil, fmt.Errorf("snapshot %s has no table %s", snapshotID, t)
	}

	i.log.Info("restored snapshot",
		zap.String("snapshot", snapshotID),
		zap.Int("tables", restored))
	return man, nil
}

// restoreTable decodes one JSON Lines object and upserts its rows
func (i *Importer) restoreTable(ctx context.Context, tm TableManifest) error {
	md, ok := i.orm.Registry().MetadataForTable(tm.Table)
	if !ok {
		return fmt.Errorf("table %s: %w", tm.Table, spannerorm.ErrNotRegistered)
	}

	rc, err := i.store.Get(ctx, tm.Object)
	if err != nil {
		return err
	}
	defer rc.Close()

	batch := make([]interface{}, 0, i.chunk)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := i.orm.SaveBatch(ctx, batch, spannerorm.ForceWrite()); err != nil {
			return fmt.Errorf("failed to restore table %s: %w", tm.Table, err)
		}
		batch = batch[:0]
		return nil
	}

	var rows int64
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		m := md.New()
		if err := json.Unmarshal(line, m); err != nil {
			return fmt.Errorf("failed to decode row %d of table %s: %w", rows+1, tm.Table, err)
		}
		batch = append(batch, m)
		rows++
		if len(batch) >= i.chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", tm.Object, err)
	}
	if err := flush(); err != nil {
		return err
	}

	if rows != tm.Rows {
		return fmt.Errorf("table %s: restored %d rows, manifest says %d", tm.Table, rows, tm.Rows)
	}
	i.log.Debug("restored table", zap.String("table", tm.Table), zap.Int64("rows", rows))
	return nil
}
