package dedupe

import "github.com/luhtaf/dupremover/internal/hasher"

// Event is one step of a scan, delivered to a Reporter in order.
type Event interface {
	event()
}

// Reporter consumes scan events. Report is called synchronously from the
// scanning goroutine; implementations should not block for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// ScanStarted is emitted once the root has been validated.
type ScanStarted struct {
	ScanID string
	Root   string
}

// FileScanned is emitted after each regular file has been handled.
// Index is the 1-based position of the file in traversal order; Total is
// the expected number of files, or 0 when unknown.
type FileScanned struct {
	Path  string
	Index int
	Total int
}

// DuplicateRemoved records one duplicate taken off disk (or, with DryRun,
// one that would have been).
type DuplicateRemoved struct {
	Duplicate   string
	Original    string
	Fingerprint hasher.Fingerprint
	Size        int64
	DryRun      bool
}

// WarningKind classifies a recoverable per-file failure.
type WarningKind int

const (
	// WarnHash means the file could not be read; it was neither recorded nor deleted.
	WarnHash WarningKind = iota + 1
	// WarnDelete means a duplicate could not be removed and is still on disk.
	WarnDelete
	// WarnSkip means the walk could not read an entry.
	WarnSkip
)

func (k WarningKind) String() string {
	switch k {
	case WarnHash:
		return "hash"
	case WarnDelete:
		return "delete"
	case WarnSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Warning reports a recoverable failure on a single path.
type Warning struct {
	Kind   WarningKind
	Path   string
	Reason string
	Err    error
}

// ScanCompleted carries the final counters.
type ScanCompleted struct {
	ScanID string
	Root   string
	Stats  Stats
}

func (ScanStarted) event()      {}
func (FileScanned) event()      {}
func (DuplicateRemoved) event() {}
func (Warning) event()          {}
func (ScanCompleted) event()    {}
