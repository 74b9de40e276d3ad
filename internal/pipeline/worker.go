package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/display"
	"github.com/backmassage/retuner/internal/ffmpeg"
	"github.com/backmassage/retuner/internal/naming"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
	"github.com/backmassage/retuner/internal/source"
)

// Details recorded on items that did not produce an output.
const (
	detailAborted   = "aborted"
	detailDryRun    = "dry run"
	detailExists    = "destination exists"
	detailCancelled = "destination exists, batch cancelled"
)

// process runs one item end to end: destination → probe → pitch → plan →
// encode. It always leaves src in a terminal state.
func (e *Encoder) process(ctx context.Context, r *run, src *source.AudioSource) {
	if !src.Start() {
		return
	}
	e.bus.Publish(Event{BatchID: r.id, Kind: ItemStarted, Source: src, Detail: src.Path})
	name := filepath.Base(src.Path)

	if err := ctx.Err(); err != nil {
		e.fail(ctx, r, src, err)
		return
	}

	natural := naming.OutputPath(e.opts.Destination, src.Path, src.RelativePath, e.opts.Encode.Format)
	out, ok := e.destination(ctx, r, src, natural)
	if !ok {
		return
	}

	var info probe.AudioInfo
	if e.deps.Prober != nil {
		var err error
		info, err = e.deps.Prober.AudioInfo(ctx, src.Path)
		if err != nil {
			e.fail(ctx, r, src, &ffmpeg.DecodeError{Path: src.Path, Err: err})
			return
		}
	}

	pitch := e.sourcePitch(ctx, src)
	plan := planner.BuildPlan(e.opts.Encode, pitch, info, e.deps.Rounder)
	plan.InputPath = src.Path
	plan.OutputPath = out

	e.log.Info("%s -> %s", name, out)
	e.log.Plan("  %s", plan.Note)
	e.log.Debug(e.opts.Verbose, "  filters: %s", plan.Filters)

	if e.opts.DryRun {
		if est := planner.EstimateSize(plan, info); est.Known {
			e.log.Plan("  estimated size: %s to %s",
				display.FormatBytes(est.LowBytes), display.FormatBytes(est.HighBytes))
			r.mu.Lock()
			r.stats.EstimatedLowBytes += est.LowBytes
			r.stats.EstimatedHighBytes += est.HighBytes
			r.stats.Estimated++
			r.mu.Unlock()
		}
		e.finishItem(r, src, source.Completed, source.Outcome{OutputPath: out, Detail: detailDryRun})
		return
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		e.fail(ctx, r, src, err)
		return
	}
	if err := e.deps.Backend.Encode(ctx, plan); err != nil {
		e.fail(ctx, r, src, err)
		return
	}

	inSize, outSize := info.Size, int64(0)
	if inSize <= 0 {
		if fi, err := os.Stat(src.Path); err == nil {
			inSize = fi.Size()
		}
	}
	if fi, err := os.Stat(out); err == nil {
		outSize = fi.Size()
	}
	r.mu.Lock()
	r.stats.TotalInputBytes += inSize
	r.stats.TotalOutputBytes += outSize
	r.mu.Unlock()

	e.log.Success("Done: %s", filepath.Base(out))
	e.finishItem(r, src, source.Completed, source.Outcome{OutputPath: out})
}

// destination resolves where src is written, applying the in-run
// duplicate rule and the file-exists policy. It returns false when the
// item was finished (skipped) here.
func (e *Encoder) destination(ctx context.Context, r *run, src *source.AudioSource, natural string) (string, bool) {
	if !r.claims.Claim(src, natural) {
		out := r.claims.Rename(src, natural)
		e.log.Debug(e.opts.Verbose, "Output %s already used in this batch, writing %s", natural, filepath.Base(out))
		return out, true
	}
	if !naming.Exists(natural) {
		return natural, true
	}

	action := e.opts.FileExists
	if action == config.ExistsAsk {
		action = e.deps.Resolver(ctx, natural)
	}

	switch action {
	case config.ExistsOverwrite:
		e.log.Debug(e.opts.Verbose, "Overwriting %s", natural)
		return natural, true
	case config.ExistsRename:
		out := r.claims.Rename(src, natural)
		e.log.Debug(e.opts.Verbose, "Exists, renaming to %s", filepath.Base(out))
		return out, true
	case config.ExistsCancel:
		r.claims.Release(src, natural)
		r.stopped.Store(true)
		e.log.Warn("Exists: %s, cancelling batch", natural)
		e.finishItem(r, src, source.Skipped, source.Outcome{Detail: detailCancelled})
		return "", false
	default:
		r.claims.Release(src, natural)
		e.log.Warn("Skip (exists): %s", natural)
		e.finishItem(r, src, source.Skipped, source.Outcome{Detail: detailExists})
		return "", false
	}
}

// sourcePitch picks the pitch a source is converted from: the manual
// override, then (with auto-detection) the pre-filled or freshly detected
// pitch, then PitchFrom.
func (e *Encoder) sourcePitch(ctx context.Context, src *source.AudioSource) float64 {
	if hz, ok := src.Pitch(); ok {
		return hz
	}
	s := e.opts.Encode
	if !s.AutoDetectPitch {
		return s.PitchFrom
	}
	if hz, ok := src.DetectedPitch(); ok {
		return hz
	}
	if e.deps.Detector == nil {
		return s.PitchFrom
	}
	hz, err := e.deps.Detector.DetectFile(ctx, src.Path)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("Pitch detection failed for %s, using %g Hz: %v", filepath.Base(src.Path), s.PitchFrom, err)
		}
		return s.PitchFrom
	}
	src.SetDetectedPitch(hz)
	e.log.Debug(e.opts.Verbose, "Detected %.2f Hz in %s", hz, filepath.Base(src.Path))
	return hz
}

// fail records err on src. An error caused by ctx cancellation is
// reported as aborted.
func (e *Encoder) fail(ctx context.Context, r *run, src *source.AudioSource, err error) {
	detail := err.Error()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		detail = detailAborted
		r.aborted.Store(true)
		e.log.Warn("Aborted: %s", filepath.Base(src.Path))
	} else {
		e.log.Error("Failed: %s", detail)
		var be *ffmpeg.BackendError
		if errors.As(err, &be) && be.Stderr != "" {
			e.log.Debug(e.opts.Verbose, "  ffmpeg: %s", ffmpeg.LastLine(be.Stderr))
		}
	}
	e.finishItem(r, src, source.Failed, source.Outcome{Detail: detail, Err: err})
}
