package pipeline

import (
	"github.com/google/uuid"

	"github.com/backmassage/retuner/internal/display"
	"github.com/backmassage/retuner/internal/source"
)

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total            int
	Completed        int
	Skipped          int
	Failed           int
	TotalInputBytes  int64
	TotalOutputBytes int64

	// Dry runs only: predicted output size range of the planned items.
	EstimatedLowBytes  int64
	EstimatedHighBytes int64
	Estimated          int // items with a known estimate
}

// SizeDelta returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SizeDelta() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

func (s *RunStats) add(st source.Status) {
	switch st {
	case source.Completed:
		s.Completed++
	case source.Skipped:
		s.Skipped++
	case source.Failed:
		s.Failed++
	}
}

// ItemReport is the terminal record of one source.
type ItemReport struct {
	Path         string
	RelativePath string
	Status       source.Status
	OutputPath   string
	Detail       string
	Err          error
}

// Report is the outcome of one Run.
type Report struct {
	BatchID uuid.UUID
	State   State
	Items   []ItemReport
	Stats   RunStats
	DryRun  bool
}

// Failed returns the items that ended Failed.
func (r *Report) Failed() []ItemReport {
	var out []ItemReport
	for _, it := range r.Items {
		if it.Status == source.Failed {
			out = append(out, it)
		}
	}
	return out
}

// OK reports whether the batch completed without failed items.
func (r *Report) OK() bool {
	return r.State == Completed && r.Stats.Failed == 0
}

// Log writes the end-of-batch summary.
func (r *Report) Log(log Logger) {
	s := &r.Stats
	log.Info("==============================")
	log.Info("Batch %s: %d completed, %d skipped, %d failed (of %d)",
		r.State, s.Completed, s.Skipped, s.Failed, s.Total)

	for _, it := range r.Failed() {
		log.Error("  %s: %s", it.Path, it.Detail)
	}

	if r.DryRun {
		if s.Estimated == 0 {
			log.Info("  Size change: n/a (dry run)")
			return
		}
		log.Info("  Estimated output: %s to %s for %d file(s) (dry run)",
			display.FormatBytes(s.EstimatedLowBytes),
			display.FormatBytes(s.EstimatedHighBytes),
			s.Estimated)
		return
	}
	if s.Completed == 0 {
		return
	}
	delta := s.SizeDelta()
	if delta >= 0 {
		log.Success("  Size change: -%s (input %s -> output %s)",
			display.FormatBytes(delta),
			display.FormatBytes(s.TotalInputBytes),
			display.FormatBytes(s.TotalOutputBytes))
	} else {
		log.Info("  Size change: +%s (input %s -> output %s)",
			display.FormatBytes(-delta),
			display.FormatBytes(s.TotalInputBytes),
			display.FormatBytes(s.TotalOutputBytes))
	}
}
