package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/luhtaf/dupremover/internal/dedupe"
)

// DuplicatesHeader is the first line of every duplicates log.
const DuplicatesHeader = "Duplicates:"

// DuplicatesLog writes one line per removed duplicate:
//
//	"<duplicate-path>" is a duplicate of "<original-path>"
//
// Dry-run removals are not written.
type DuplicatesLog struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	path   string
	count  int
	err    error
}

// CreateDuplicatesLog truncates or creates the file at path and writes the header.
func CreateDuplicatesLog(path string) (*DuplicatesLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create duplicates log: %w", err)
	}
	d := NewDuplicatesLog(f)
	d.closer = f
	d.path = path
	if d.err != nil {
		f.Close()
		return nil, d.err
	}
	return d, nil
}

// NewDuplicatesLog writes the log to w. The header is flushed at once.
func NewDuplicatesLog(w io.Writer) *DuplicatesLog {
	d := &DuplicatesLog{w: bufio.NewWriter(w)}
	if _, d.err = fmt.Fprintln(d.w, DuplicatesHeader); d.err == nil {
		d.err = d.w.Flush()
	}
	return d
}

// Report implements dedupe.Reporter.
func (d *DuplicatesLog) Report(ev dedupe.Event) {
	e, ok := ev.(dedupe.DuplicateRemoved)
	if !ok || e.DryRun {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return
	}
	if _, err := fmt.Fprintf(d.w, "\"%s\" is a duplicate of \"%s\"\n", e.Duplicate, e.Original); err != nil {
		d.err = err
		return
	}
	d.count++
}

// Count is the number of lines written after the header.
func (d *DuplicatesLog) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Path is the file path, empty for writer-backed logs.
func (d *DuplicatesLog) Path() string { return d.path }

// Close flushes the log and closes the underlying file. It returns the
// first write error, if any.
func (d *DuplicatesLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.w.Flush(); err != nil && d.err == nil {
		d.err = err
	}
	if d.closer != nil {
		if err := d.closer.Close(); err != nil && d.err == nil {
			d.err = err
		}
		d.closer = nil
	}
	return d.err
}
