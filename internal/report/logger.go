package report

import (
	"go.uber.org/zap"

	"github.com/luhtaf/dupremover/internal/dedupe"
	"github.com/luhtaf/dupremover/internal/log"
)

// Logger writes events as structured zap records.
type Logger struct {
	l *zap.SugaredLogger
}

// NewLogger logs to l, or to the global logger when l is nil.
func NewLogger(l *zap.SugaredLogger) *Logger {
	return &Logger{l: l}
}

func (r *Logger) logger() *zap.SugaredLogger {
	if r.l != nil {
		return r.l
	}
	return log.L
}

// Report implements dedupe.Reporter.
func (r *Logger) Report(ev dedupe.Event) {
	l := r.logger()
	switch e := ev.(type) {
	case dedupe.ScanStarted:
		l.Infow("scan_started",
			"event", "scan_started",
			"component", log.Component,
			"scan_id", e.ScanID,
			"root", e.Root,
		)
	case dedupe.FileScanned:
		l.Debugw("file_scanned",
			"event", "file_scanned",
			"component", log.Component,
			"path", e.Path,
			"index", e.Index,
			"total", e.Total,
		)
	case dedupe.DuplicateRemoved:
		l.Infow("duplicate_removed",
			"event", "duplicate_removed",
			"component", log.Component,
			"duplicate", e.Duplicate,
			"original", e.Original,
			"sha256", e.Fingerprint.String(),
			"size", e.Size,
			"dry_run", e.DryRun,
		)
	case dedupe.Warning:
		l.Warnw("scan_warning",
			"event", "scan_warning",
			"component", log.Component,
			"kind", e.Kind.String(),
			"path", e.Path,
			"reason", e.Reason,
			"err", e.Err,
		)
	case dedupe.ScanCompleted:
		l.Infow("scan_completed",
			"event", "scan_completed",
			"component", log.Component,
			"scan_id", e.ScanID,
			"root", e.Root,
			"files_scanned", e.Stats.FilesScanned,
			"duplicates_removed", e.Stats.DuplicatesRemoved,
			"hash_failures", e.Stats.HashFailures,
			"delete_failures", e.Stats.DeleteFailures,
			"skipped", e.Stats.Skipped,
			"bytes_reclaimed", e.Stats.BytesReclaimed,
			"dry_run", e.Stats.DryRun,
		)
	}
}
