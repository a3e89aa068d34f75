package dedupe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luhtaf/dupremover/internal/hasher"
	"github.com/luhtaf/dupremover/internal/walker"
)

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) removed() []DuplicateRemoved {
	var out []DuplicateRemoved
	for _, ev := range r.events {
		if d, ok := ev.(DuplicateRemoved); ok {
			out = append(out, d)
		}
	}
	return out
}

func (r *recorder) warnings() []Warning {
	var out []Warning
	for _, ev := range r.events {
		if w, ok := ev.(Warning); ok {
			out = append(out, w)
		}
	}
	return out
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestRunHelloWorld(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "hello", "c.txt": "world"})
	rec := &recorder{}

	st, err := Run(context.Background(), root, rec)
	require.NoError(t, err)

	assert.Equal(t, 3, st.FilesScanned)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	assert.Zero(t, st.HashFailures)
	assert.Zero(t, st.DeleteFailures)
	assert.Equal(t, int64(5), st.BytesReclaimed)
	assert.Equal(t, []string{"a.txt", "c.txt"}, listTree(t, root))

	removed := rec.removed()
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Join(root, "b.txt"), removed[0].Duplicate)
	assert.Equal(t, filepath.Join(root, "a.txt"), removed[0].Original)
	assert.False(t, removed[0].DryRun)
}

func TestRunEventOrder(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x"})
	rec := &recorder{}
	e := New(WithExpectedTotal(2), WithScanID("scan-1"))

	_, err := e.Run(context.Background(), root, rec)
	require.NoError(t, err)

	require.Len(t, rec.events, 5)
	assert.Equal(t, ScanStarted{ScanID: "scan-1", Root: root}, rec.events[0])
	assert.Equal(t, FileScanned{Path: filepath.Join(root, "a"), Index: 1, Total: 2}, rec.events[1])
	assert.IsType(t, DuplicateRemoved{}, rec.events[2])
	assert.Equal(t, FileScanned{Path: filepath.Join(root, "b"), Index: 2, Total: 2}, rec.events[3])
	done, ok := rec.events[4].(ScanCompleted)
	require.True(t, ok)
	assert.Equal(t, "scan-1", done.ScanID)
	assert.Equal(t, 1, done.Stats.DuplicatesRemoved)
}

func TestRunEmptyTree(t *testing.T) {
	rec := &recorder{}
	st, err := Run(context.Background(), t.TempDir(), rec)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
	assert.Empty(t, rec.warnings())
	assert.Empty(t, rec.removed())
}

func TestRunEmptyFilesAreDuplicates(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "", "b": ""})
	rec := &recorder{}

	st, err := Run(context.Background(), root, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	assert.Equal(t, []string{"a"}, listTree(t, root))

	removed := rec.removed()
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Join(root, "b"), removed[0].Duplicate)
	assert.Equal(t, filepath.Join(root, "a"), removed[0].Original)
}

func TestRunFirstInTraversalOrderSurvives(t *testing.T) {
	root := writeTree(t, map[string]string{
		"z.txt":         "same",
		"m/inner.txt":   "same",
		"a/b/deep.txt":  "same",
		"unique-1.txt":  "one",
		"unique-2.txt":  "two",
		"m/another.txt": "two",
	})
	st, err := Run(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, st.FilesScanned)
	assert.Equal(t, 3, st.DuplicatesRemoved)
	assert.Equal(t, []string{"a/b/deep.txt", "m/another.txt", "unique-1.txt"}, listTree(t, root))
}

func TestRunIdempotent(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "1", "b": "1", "c": "2", "d/e": "2", "f": "3"})

	first, err := Run(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.DuplicatesRemoved)

	second, err := Run(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Zero(t, second.DuplicatesRemoved)
	assert.Equal(t, 3, second.FilesScanned)
}

func TestRunDistinctContentUntouched(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "1", "b": "2", "c/d": "3"})
	st, err := Run(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Zero(t, st.DuplicatesRemoved)
	assert.Equal(t, []string{"a", "b", "c/d"}, listTree(t, root))
}

// flakyHasher fails for the listed base names.
type flakyHasher struct {
	fail map[string]bool
	h    *hasher.Hasher
}

func (f flakyHasher) Sum(path string) (hasher.Fingerprint, int64, error) {
	if f.fail[filepath.Base(path)] {
		return hasher.Fingerprint{}, 0, &hasher.HashError{Path: path, Err: fs.ErrPermission}
	}
	return f.h.Sum(path)
}

func TestRunHashFailureIsIsolated(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x", "c": "x"})
	rec := &recorder{}
	h := flakyHasher{fail: map[string]bool{"a": true}, h: hasher.New(0)}

	st, err := Run(context.Background(), root, rec, WithHasher(h))
	require.NoError(t, err)

	assert.Equal(t, 1, st.HashFailures)
	assert.Equal(t, 2, st.FilesScanned)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	// a is never canonical; b takes its place and c is removed.
	assert.Equal(t, []string{"a", "b"}, listTree(t, root))

	warns := rec.warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, WarnHash, warns[0].Kind)
	assert.Equal(t, filepath.Join(root, "a"), warns[0].Path)
	assert.ErrorIs(t, warns[0].Err, fs.ErrPermission)

	removed := rec.removed()
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Join(root, "b"), removed[0].Original)
}

func TestRunDeleteFailureIsIsolated(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x", "c": "x"})
	rec := &recorder{}
	busy := filepath.Join(root, "b")
	rm := RemoverFunc(func(p string) error {
		if p == busy {
			return fs.ErrPermission
		}
		return os.Remove(p)
	})

	st, err := Run(context.Background(), root, rec, WithRemover(rm))
	require.NoError(t, err)

	assert.Equal(t, 3, st.FilesScanned)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	assert.Equal(t, 1, st.DeleteFailures)
	assert.Equal(t, []string{"a", "b"}, listTree(t, root))

	warns := rec.warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, WarnDelete, warns[0].Kind)
	var derr *DeleteError
	require.True(t, errors.As(warns[0].Err, &derr))
	assert.Equal(t, busy, derr.Path)
	assert.Equal(t, filepath.Join(root, "a"), derr.Original)

	removed := rec.removed()
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Join(root, "c"), removed[0].Duplicate)
	assert.Equal(t, filepath.Join(root, "a"), removed[0].Original)
}

func TestRunDryRun(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x"})
	rec := &recorder{}
	rm := RemoverFunc(func(string) error {
		t.Fatal("remover must not be called in dry run")
		return nil
	})

	st, err := Run(context.Background(), root, rec, WithDryRun(true), WithRemover(rm))
	require.NoError(t, err)
	assert.True(t, st.DryRun)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	assert.Equal(t, []string{"a", "b"}, listTree(t, root))
	require.Len(t, rec.removed(), 1)
	assert.True(t, rec.removed()[0].DryRun)
}

func TestRunInvalidRoot(t *testing.T) {
	rec := &recorder{}
	e := New()
	_, err := e.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), rec)

	var inv *walker.InvalidRootError
	require.ErrorAs(t, err, &inv)
	assert.Empty(t, rec.events)
	assert.Equal(t, StateCompleted, e.State())
}

func TestEngineIsSingleUse(t *testing.T) {
	root := t.TempDir()
	e := New()
	assert.Equal(t, StateIdle, e.State())

	_, err := e.Run(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, e.State())

	_, err = e.Run(context.Background(), root, nil)
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestEngineStateDuringScan(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x"})
	e := New()
	var seen State
	_, err := e.Run(context.Background(), root, ReporterFunc(func(ev Event) {
		if _, ok := ev.(FileScanned); ok {
			seen = e.State()
		}
	}))
	require.NoError(t, err)
	assert.Equal(t, StateScanning, seen)
}

func TestRunCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x", "c": "y"})
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	st, err := Run(ctx, root, ReporterFunc(func(ev Event) {
		rec.Report(ev)
		if _, ok := ev.(FileScanned); ok {
			cancel()
		}
	}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, st.FilesScanned)
	assert.Zero(t, st.DuplicatesRemoved)
	_, ok := rec.events[len(rec.events)-1].(ScanCompleted)
	assert.True(t, ok, "completion is reported even when cancelled")
}

func TestRunWorkersMatchSequential(t *testing.T) {
	files := map[string]string{}
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		files["x/"+name] = string(rune('0' + i%3))
		files["y/"+name] = string(rune('0' + i%4))
	}

	seqRoot := writeTree(t, files)
	seqRec := &recorder{}
	seqStats, err := Run(context.Background(), seqRoot, seqRec)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 16} {
		poolRoot := writeTree(t, files)
		poolRec := &recorder{}
		poolStats, err := Run(context.Background(), poolRoot, poolRec, WithWorkers(workers))
		require.NoError(t, err)

		assert.Equal(t, seqStats, poolStats, "workers=%d", workers)
		assert.Equal(t, listTree(t, seqRoot), listTree(t, poolRoot), "workers=%d", workers)

		relPairs := func(root string, rs []DuplicateRemoved) [][2]string {
			var out [][2]string
			for _, r := range rs {
				d, _ := filepath.Rel(root, r.Duplicate)
				o, _ := filepath.Rel(root, r.Original)
				out = append(out, [2]string{d, o})
			}
			return out
		}
		assert.Equal(t, relPairs(seqRoot, seqRec.removed()), relPairs(poolRoot, poolRec.removed()))
	}
}

func TestRunWorkersCancelled(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name] = "same"
	}
	root := writeTree(t, files)
	ctx, cancel := context.WithCancel(context.Background())

	st, err := Run(ctx, root, ReporterFunc(func(ev Event) {
		if scanned, ok := ev.(FileScanned); ok && scanned.Index == 2 {
			cancel()
		}
	}), WithWorkers(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, st.FilesScanned)
	assert.Equal(t, 1, st.DuplicatesRemoved)
	assert.Len(t, listTree(t, root), 5)
}

func TestRunRecordsSkippedEntries(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := writeTree(t, map[string]string{"a": "x", "locked/b": "x"})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	rec := &recorder{}
	st, err := Run(context.Background(), root, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.FilesScanned)

	warns := rec.warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, WarnSkip, warns[0].Kind)
	assert.Equal(t, locked, warns[0].Path)
}

func TestRunExcludedFilesAreUntouched(t *testing.T) {
	root := writeTree(t, map[string]string{".keep": "", "a.txt": "hello", "log.txt": "", "z.txt": "hello"})
	rec := &recorder{}

	st, err := Run(context.Background(), root, rec,
		WithExclude(filepath.Join(root, "log.txt"), filepath.Join(root, "z.txt")))
	require.NoError(t, err)

	assert.Equal(t, 2, st.FilesScanned)
	assert.Zero(t, st.DuplicatesRemoved)
	assert.Empty(t, rec.removed())
	assert.Equal(t, []string{".keep", "a.txt", "log.txt", "z.txt"}, listTree(t, root))
	for _, ev := range rec.events {
		if scanned, ok := ev.(FileScanned); ok {
			assert.NotEqual(t, filepath.Join(root, "log.txt"), scanned.Path)
		}
	}
}

func TestRunSymlinkedRootReportsResolvedRoot(t *testing.T) {
	root := writeTree(t, map[string]string{"a": "x", "b": "x"})
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	rec := &recorder{}
	_, err = Run(context.Background(), link, rec)
	require.NoError(t, err)

	started, ok := rec.events[0].(ScanStarted)
	require.True(t, ok)
	assert.Equal(t, resolved, started.Root)
	removed := rec.removed()
	require.Len(t, removed, 1)
	assert.Equal(t, filepath.Join(resolved, "b"), removed[0].Duplicate)
	done, ok := rec.events[len(rec.events)-1].(ScanCompleted)
	require.True(t, ok)
	assert.Equal(t, resolved, done.Root)
}
