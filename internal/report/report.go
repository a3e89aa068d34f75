// Package report turns dedupe events into logs, files and console output.
package report

import "github.com/luhtaf/dupremover/internal/dedupe"

type multi []dedupe.Reporter

func (m multi) Report(ev dedupe.Event) {
	for _, r := range m {
		r.Report(ev)
	}
}

// Multi fans each event out to every non-nil reporter, in argument order.
func Multi(reporters ...dedupe.Reporter) dedupe.Reporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
