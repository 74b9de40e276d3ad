package display

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress is a single batch progress bar. A nil *Progress is valid and
// does nothing, so callers need not branch on whether the bar is enabled.
type Progress struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	once sync.Once
}

// NewProgress starts a bar for total items, drawn on w.
func NewProgress(w io.Writer, label string, total int) *Progress {
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(label+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return &Progress{p: p, bar: bar}
}

// Increment advances the bar by one finished item.
func (pr *Progress) Increment() {
	if pr == nil {
		return
	}
	pr.bar.Increment()
}

// Done stops the bar, leaving it on screen as drawn, and waits for the
// final render. Safe to call more than once.
func (pr *Progress) Done() {
	if pr == nil {
		return
	}
	pr.once.Do(func() {
		if !pr.bar.Completed() {
			pr.bar.Abort(false)
		}
		pr.p.Wait()
	})
}
