// Package dedupe finds files with identical content below a directory and
// removes every copy except the first one met in traversal order.
package dedupe

import (
	"sync"

	"github.com/luhtaf/dupremover/internal/hasher"
)

// Entry is one canonical file in a Table.
type Entry struct {
	Fingerprint hasher.Fingerprint
	Path        string
}

// Table maps a fingerprint to the canonical path that first produced it.
// It lives for one scan only.
type Table struct {
	mu    sync.Mutex
	paths map[hasher.Fingerprint]string
	order []hasher.Fingerprint
}

// NewTable constructs an empty table.
func NewTable() *Table { return &Table{paths: make(map[hasher.Fingerprint]string)} }

// Claim records path as canonical for fp if fp is new. Otherwise it returns
// the existing canonical path and true. The lookup and insert are one step.
func (t *Table) Claim(fp hasher.Fingerprint, path string) (original string, dup bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if orig, ok := t.paths[fp]; ok {
		return orig, true
	}
	t.paths[fp] = path
	t.order = append(t.order, fp)
	return path, false
}

// Lookup returns the canonical path for fp.
func (t *Table) Lookup(fp hasher.Fingerprint) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.paths[fp]
	return p, ok
}

// Len reports the number of distinct fingerprints.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}

// Entries returns the canonical files in first-seen order.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.order))
	for _, fp := range t.order {
		out = append(out, Entry{Fingerprint: fp, Path: t.paths[fp]})
	}
	return out
}
