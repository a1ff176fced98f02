package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tys-asm/asmctl/internal/core"
)

// ProgressBar wraps progressbar/v3 with asmctl styling
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a new progress bar for a known-length operation
func NewProgressBar(max int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(15),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// NewIndeterminateProgressBar creates a spinner for unknown-length operations
func NewIndeterminateProgressBar(description string) *ProgressBar {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(10),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Set sets the current progress to n
func (p *ProgressBar) Set(n int) error {
	return p.bar.Set(n)
}

// Add increments the progress bar by n
func (p *ProgressBar) Add(n int) error {
	return p.bar.Add(n)
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() error {
	return p.bar.Finish()
}

// Clear clears the progress bar
func (p *ProgressBar) Clear() error {
	return p.bar.Clear()
}

// Describe changes the description of the progress bar
func (p *ProgressBar) Describe(description string) {
	p.bar.Describe(description)
}

// RenderProgress drains an operation's progress events and draws them.
// It returns when the channel closes, which happens when the operation
// retires, so callers can immediately read the result afterwards.
//
// A determinate bar appears once a percentage is known; before that a
// spinner runs. Verbose additionally echoes raw output lines.
func RenderProgress(events <-chan core.Progress, verbose bool) {
	var bar *ProgressBar
	spinner := NewIndeterminateProgressBar("starting")
	lastPhase := ""

	for ev := range events {
		if verbose && ev.Phase == core.PhaseOutput && ev.Message != "" {
			if bar != nil {
				bar.Clear()
			} else {
				spinner.Clear()
			}
			Muted.Fprintln(os.Stderr, "  "+ev.Message)
		}

		desc := describeEvent(ev)

		if ev.Percent < 0 {
			if bar == nil {
				spinner.Describe(desc)
				spinner.Add(1)
			} else if ev.Phase != core.PhaseOutput {
				bar.Describe(desc)
			}
			continue
		}

		if bar == nil {
			spinner.Clear()
			bar = NewProgressBar(100, desc)
		}
		if ev.Phase != core.PhaseOutput || lastPhase == "" {
			bar.Describe(desc)
			lastPhase = ev.Phase
		}
		bar.Set(ev.Percent)
	}

	if bar != nil {
		bar.Clear()
	} else {
		spinner.Clear()
	}
}

func describeEvent(ev core.Progress) string {
	desc := ev.Phase
	if ev.Phase == core.PhaseOutput {
		desc = "working"
	}
	if ev.ETA > 0 {
		desc = fmt.Sprintf("%s (about %s left)", desc, humanDuration(ev.ETA))
	}
	return desc
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
