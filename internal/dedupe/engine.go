package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/luhtaf/dupremover/internal/hasher"
	"github.com/luhtaf/dupremover/internal/walker"
)

// ErrAlreadyRun is returned when Run is called on an Engine that has
// already scanned. Engines are single-use; build a new one per scan.
var ErrAlreadyRun = errors.New("dedupe: engine already run")

// Hasher fingerprints one file.
type Hasher interface {
	Sum(path string) (hasher.Fingerprint, int64, error)
}

// Remover deletes one file.
type Remover interface {
	Remove(path string) error
}

// RemoverFunc adapts a function to Remover.
type RemoverFunc func(path string) error

// Remove calls f(path).
func (f RemoverFunc) Remove(path string) error { return f(path) }

// OSRemover removes files with os.Remove.
var OSRemover Remover = RemoverFunc(os.Remove)

// DeleteError is reported when a duplicate could not be removed.
type DeleteError struct {
	Path     string
	Original string
	Err      error
}

func (e *DeleteError) Error() string { return fmt.Sprintf("delete %s: %v", e.Path, e.Err) }

func (e *DeleteError) Unwrap() error { return e.Err }

// Stats are the counters of one scan.
type Stats struct {
	FilesScanned      int   `json:"files_scanned"`
	DuplicatesRemoved int   `json:"duplicates_removed"`
	HashFailures      int   `json:"hash_failures"`
	DeleteFailures    int   `json:"delete_failures"`
	Skipped           int   `json:"skipped"`
	BytesReclaimed    int64 `json:"bytes_reclaimed"`
	DryRun            bool  `json:"dry_run,omitempty"`
}

// State is the lifecycle position of an Engine.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithHasher replaces the fingerprint source.
func WithHasher(h Hasher) Option { return func(e *Engine) { e.hasher = h } }

// WithChunkSize uses the default hasher with the given read size.
func WithChunkSize(n int) Option { return func(e *Engine) { e.hasher = hasher.New(n) } }

// WithRemover replaces the deletion backend.
func WithRemover(r Remover) Option { return func(e *Engine) { e.remover = r } }

// WithDryRun reports duplicates without deleting them.
func WithDryRun(dry bool) Option { return func(e *Engine) { e.dryRun = dry } }

// WithWorkers hashes up to n files concurrently. Decisions are still taken
// one file at a time in traversal order.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithExpectedTotal sets FileScanned.Total.
func WithExpectedTotal(n int) Option { return func(e *Engine) { e.total = n } }

// WithScanID sets the identifier carried by ScanStarted and ScanCompleted.
func WithScanID(id string) Option { return func(e *Engine) { e.scanID = id } }

// WithExclude keeps the given files out of the scan. They are neither
// hashed nor removed. Paths are compared after the root is resolved.
func WithExclude(paths ...string) Option {
	return func(e *Engine) { e.exclude = append(e.exclude, paths...) }
}

// Engine runs a single deduplication scan.
type Engine struct {
	hasher  Hasher
	remover Remover
	dryRun  bool
	workers int
	total   int
	scanID  string
	exclude []string
	state   atomic.Int32
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		hasher:  hasher.New(hasher.DefaultChunkSize),
		remover: OSRemover,
		workers: 1,
	}
	for _, o := range opts {
		o(e)
	}
	if e.scanID == "" {
		e.scanID = uuid.NewString()
	}
	return e
}

// State reports where the engine is in its lifecycle.
func (e *Engine) State() State { return State(e.state.Load()) }

// ScanID returns the identifier of this engine's scan.
func (e *Engine) ScanID() string { return e.scanID }

// Run scans root, deleting every file whose content was already seen
// earlier in traversal order. Per-file failures are counted and reported
// as Warning events; they never stop the scan. The returned error is
// non-nil only for an invalid root, a reused engine, or a cancelled ctx.
func (e *Engine) Run(ctx context.Context, root string, r Reporter) (Stats, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		return Stats{}, ErrAlreadyRun
	}
	defer e.state.Store(int32(StateCompleted))
	if r == nil {
		r = nopReporter{}
	}
	if err := walker.ValidateRoot(root); err != nil {
		return Stats{}, err
	}
	root, err := walker.ResolveRoot(root)
	if err != nil {
		return Stats{}, err
	}

	s := &scan{engine: e, root: root, table: NewTable(), rep: r}
	s.stats.DryRun = e.dryRun
	r.Report(ScanStarted{ScanID: e.scanID, Root: root})

	if e.workers > 1 {
		err = s.runPool(ctx)
	} else {
		err = s.runSequential(ctx)
	}

	r.Report(ScanCompleted{ScanID: e.scanID, Root: root, Stats: s.stats})
	return s.stats, err
}

// Run scans root with a fresh Engine built from opts.
func Run(ctx context.Context, root string, r Reporter, opts ...Option) (Stats, error) {
	return New(opts...).Run(ctx, root, r)
}

type scan struct {
	engine *Engine
	root   string
	table  *Table
	rep    Reporter
	stats  Stats
	index  int
}

// hashed is a file whose fingerprint is known (or failed).
type hashed struct {
	path    string
	walkErr error
	fp      hasher.Fingerprint
	size    int64
	err     error
	done    chan struct{}
}

func (s *scan) runSequential(ctx context.Context) error {
	for p, werr := range walker.Walk(s.root, s.engine.exclude...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := &hashed{path: p, walkErr: werr}
		if werr == nil {
			item.fp, item.size, item.err = s.engine.hasher.Sum(p)
		}
		if err := s.process(item); err != nil {
			return err
		}
	}
	return nil
}

// runPool hashes ahead of the decision loop with a bounded number of
// goroutines. Items are queued in traversal order and consumed in that
// order, so the first-seen file of each fingerprint is the same as in a
// sequential run.
func (s *scan) runPool(ctx context.Context) error {
	workers := s.engine.workers
	queue := make(chan *hashed, workers*2)
	stop := make(chan struct{})

	var g errgroup.Group
	g.SetLimit(workers)

	go func() {
		defer close(queue)
		for p, werr := range walker.Walk(s.root, s.engine.exclude...) {
			select {
			case <-stop:
				return
			default:
			}
			item := &hashed{path: p, walkErr: werr, done: make(chan struct{})}
			if werr != nil {
				close(item.done)
			} else {
				g.Go(func() error {
					defer close(item.done)
					item.fp, item.size, item.err = s.engine.hasher.Sum(item.path)
					return nil
				})
			}
			select {
			case queue <- item:
			case <-stop:
				return
			}
		}
	}()

	var err error
	for item := range queue {
		<-item.done
		if err = ctx.Err(); err != nil {
			break
		}
		if err = s.process(item); err != nil {
			break
		}
	}
	if err != nil {
		close(stop)
		for range queue {
		}
	}
	_ = g.Wait()
	return err
}

// process applies the dedup decision to one traversal item. It returns an
// error only when the walk itself cannot continue.
func (s *scan) process(item *hashed) error {
	if item.walkErr != nil {
		var inv *walker.InvalidRootError
		if errors.As(item.walkErr, &inv) {
			return item.walkErr
		}
		s.stats.Skipped++
		s.rep.Report(Warning{Kind: WarnSkip, Path: skipPath(item.walkErr), Reason: "unreadable entry", Err: item.walkErr})
		return nil
	}

	s.index++
	defer func() {
		s.rep.Report(FileScanned{Path: item.path, Index: s.index, Total: s.engine.total})
	}()

	if item.err != nil {
		s.stats.HashFailures++
		s.rep.Report(Warning{Kind: WarnHash, Path: item.path, Reason: "could not fingerprint file", Err: item.err})
		return nil
	}

	original, dup := s.table.Claim(item.fp, item.path)
	if dup {
		s.removeDuplicate(item, original)
	}
	s.stats.FilesScanned++
	return nil
}

func (s *scan) removeDuplicate(item *hashed, original string) {
	if !s.engine.dryRun {
		if err := s.engine.remover.Remove(item.path); err != nil {
			s.stats.DeleteFailures++
			derr := &DeleteError{Path: item.path, Original: original, Err: err}
			s.rep.Report(Warning{Kind: WarnDelete, Path: item.path, Reason: "could not remove duplicate", Err: derr})
			return
		}
	}
	s.stats.DuplicatesRemoved++
	s.stats.BytesReclaimed += item.size
	s.rep.Report(DuplicateRemoved{
		Duplicate:   item.path,
		Original:    original,
		Fingerprint: item.fp,
		Size:        item.size,
		DryRun:      s.engine.dryRun,
	})
}

func skipPath(err error) string {
	var se *walker.SkipError
	if errors.As(err, &se) {
		return se.Path
	}
	return ""
}
