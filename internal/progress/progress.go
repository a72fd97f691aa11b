// Package progress defines the progress-reporting capability injected into
// long-running fetch operations.
package progress

import (
	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress updates during multi-step operations.
// Implementations must tolerate total == 0 (unknown step count).
type Reporter interface {
	Update(current, total int, label string)
}

// Nop is a Reporter that discards all updates. It is the default everywhere
// a Reporter is optional.
type Nop struct{}

// Update implements Reporter.
func (Nop) Update(current, total int, label string) {}

// Bar renders a terminal progress bar. One bar is kept per label; a new
// label finishes the previous bar and starts a fresh one.
type Bar struct {
	label string
	bar   *progressbar.ProgressBar
}

// NewBar creates a terminal progress Reporter.
func NewBar() *Bar {
	return &Bar{}
}

// Update implements Reporter.
func (b *Bar) Update(current, total int, label string) {
	if b.bar == nil || label != b.label {
		if b.bar != nil {
			_ = b.bar.Finish()
		}
		b.label = label
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(label),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = b.bar.Set(current)
}
