package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fjell-io/spanner-orm/backup"
)

// BackupJobName is the name of the scheduled snapshot job
const BackupJobName = "backup"

// Snapshotter is the part of the backup exporter the job calls.
// This interface keeps the job testable without a database.
type Snapshotter interface {
	// Export snapshots the given tables, or every registered table when
	// none are named, and returns the written manifest.
	Export(ctx context.Context, tables ...string) (*backup.Manifest, error)
}

// BackupJob exports a snapshot of the registered tables
type BackupJob struct {
	exporter Snapshotter
	tables   []string
	logger   *zap.Logger
	timeout  time.Duration
}

// NewBackupJob creates a snapshot job.
// The timeout controls how long one export is allowed to run.
func NewBackupJob(exporter Snapshotter, tables []string, logger *zap.Logger, timeout time.Duration) *BackupJob {
	return &BackupJob{
		exporter: exporter,
		tables:   tables,
		logger:   logger,
		timeout:  timeout,
	}
}

// Run executes one snapshot export.
// This is called by the scheduler according to the cron expression.
func (j *BackupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	j.logger.Info("starting snapshot export job")

	man, err := j.exporter.Export(ctx, j.tables...)
	if err != nil {
		j.logger.Error("snapshot export failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("snapshot export completed",
		zap.String("snapshot", man.SnapshotID),
		zap.Int("tables", len(man.Tables)),
		zap.Int64("rows", man.TotalRows()),
		zap.Duration("duration", time.Since(start)))
}

// RegisterBackupJob registers the snapshot job with the scheduler.
// tables restricts the snapshot; nil means every registered table.
func RegisterBackupJob(scheduler *Scheduler, exporter Snapshotter, tables []string, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	job := NewBackupJob(exporter, tables, logger, timeout)
	return scheduler.AddJob(BackupJobName, cronExpr, job.Run)
}
