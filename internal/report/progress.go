package report

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/luhtaf/dupremover/internal/dedupe"
)

// Progress advances a progress bar on every scanned file. With an unknown
// total it renders a spinner.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress writes the bar to w. total <= 0 means unknown.
func NewProgress(w io.Writer, total int) *Progress {
	max := int64(total)
	if total <= 0 {
		max = -1
	}
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetDescription("Scanning files..."),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(w, "\n")
		}),
	)
	return &Progress{bar: bar}
}

// Report implements dedupe.Reporter.
func (p *Progress) Report(ev dedupe.Event) {
	switch ev.(type) {
	case dedupe.FileScanned:
		_ = p.bar.Add(1)
	case dedupe.ScanCompleted:
		_ = p.bar.Finish()
	}
}

// Current returns the number of files counted so far.
func (p *Progress) Current() int64 { return p.bar.State().CurrentNum }
