package report

import (
	"context"

	"github.com/luhtaf/dupremover/internal/dedupe"
	"github.com/luhtaf/dupremover/internal/log"
)

// Journal stores scan boundaries and removals in a dedupe.Journal.
// Write failures are logged and never reach the engine.
type Journal struct {
	ctx    context.Context
	j      *dedupe.Journal
	scanID string
	failed int
}

// NewJournal writes to j using ctx for every statement.
func NewJournal(ctx context.Context, j *dedupe.Journal) *Journal {
	return &Journal{ctx: ctx, j: j}
}

// Report implements dedupe.Reporter.
func (r *Journal) Report(ev dedupe.Event) {
	switch e := ev.(type) {
	case dedupe.ScanStarted:
		r.scanID = e.ScanID
		r.check("begin_scan", r.j.BeginScan(r.ctx, e.ScanID, e.Root))
	case dedupe.DuplicateRemoved:
		if e.DryRun {
			return
		}
		r.check("record_removal", r.j.Record(r.ctx, dedupe.Removal{
			ScanID:    r.scanID,
			Duplicate: e.Duplicate,
			Original:  e.Original,
			SHA256:    e.Fingerprint.String(),
			Size:      e.Size,
		}))
	case dedupe.ScanCompleted:
		r.check("finish_scan", r.j.FinishScan(r.ctx, e.ScanID, e.Stats))
	}
}

// Failures is the number of journal writes that failed.
func (r *Journal) Failures() int { return r.failed }

func (r *Journal) check(op string, err error) {
	if err == nil {
		return
	}
	r.failed++
	log.L.Warnw("journal_write_failed",
		"event", "journal_write_failed",
		"component", log.Component,
		"op", op,
		"scan_id", r.scanID,
		"err", err,
	)
}
