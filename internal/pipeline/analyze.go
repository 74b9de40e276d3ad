package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/display"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
	"github.com/backmassage/retuner/internal/source"
	"github.com/backmassage/retuner/internal/term"
)

// AnalysisRow holds the probed and detected data for one file.
type AnalysisRow struct {
	Name       string
	Codec      string
	SampleRate int
	BitRate    int64   // bps
	Pitch      float64 // detected Hz, 0 when unavailable
	Ratio      float64 // planned pitch ratio
	Class      string  // "", "outlier" or "extreme"
	Err        error
}

// AnalyzeOptions configures Analyze.
type AnalyzeOptions struct {
	Encode      config.EncodeSettings
	Concurrency int
	Out         io.Writer // table destination; os.Stdout if nil
}

// Analyze probes and detects the pitch of every source, then prints a
// table (file, codec, rate, bitrate, detected pitch, planned ratio) with
// IQR outlier flags on the detected pitch. Nothing is encoded. Rows are
// returned in source order.
func Analyze(ctx context.Context, srcs []*source.AudioSource, opts AnalyzeOptions, prober Prober, det source.Detector, log Logger) ([]AnalysisRow, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if len(srcs) == 0 {
		log.Warn("No audio files to analyze")
		return nil, nil
	}

	total := len(srcs)
	log.Info("Analyzing %d files …", total)

	f, isFile := out.(*os.File)
	isTTY := isFile && term.IsTerminal(f)

	rows := make([]AnalysisRow, total)
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.ClampConcurrency(opts.Concurrency))
	for i, src := range srcs {
		g.Go(func() error {
			rows[i] = analyzeOne(gctx, src, opts.Encode, prober, det)
			mu.Lock()
			done++
			printProgress(out, isTTY, done, total, rows[i].Name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if isTTY {
		clearProgress(out)
	}
	if err := ctx.Err(); err != nil {
		log.Warn("Interrupted")
		return rows, err
	}

	for _, r := range rows {
		if r.Err != nil {
			log.Warn("%s: %v", r.Name, r.Err)
		}
	}

	var pitches []float64
	for _, r := range rows {
		if r.Pitch > 0 {
			pitches = append(pitches, r.Pitch)
		}
	}
	stats := computeStats(pitches)
	for i := range rows {
		rows[i].Class = stats.classify(rows[i].Pitch)
	}

	printAnalysisTable(out, rows)
	printAnalysisSummary(log, rows, stats)
	return rows, nil
}

func analyzeOne(ctx context.Context, src *source.AudioSource, s config.EncodeSettings, prober Prober, det source.Detector) AnalysisRow {
	row := AnalysisRow{Name: filepath.Base(src.Path)}
	if src.RelativePath != "" {
		row.Name = src.RelativePath
	}
	if prober != nil {
		info, err := prober.AudioInfo(ctx, src.Path)
		if err != nil {
			row.Err = err
			return row
		}
		row.Codec = info.Codec
		row.SampleRate = info.SampleRate
		row.BitRate = info.BitRate
	}

	pitch, ok := src.Pitch()
	if !ok {
		pitch, ok = src.DetectedPitch()
	}
	if !ok && det != nil {
		hz, err := det.DetectFile(ctx, src.Path)
		if err != nil {
			row.Err = err
		} else {
			src.SetDetectedPitch(hz)
			pitch, ok = hz, true
		}
	}
	if ok {
		row.Pitch = pitch
	}

	from := s.PitchFrom
	if row.Pitch > 0 {
		from = row.Pitch
	}
	row.Ratio = planner.BuildPlan(s, from, probe.AudioInfo{SampleRate: row.SampleRate}, nil).PitchRatio
	return row
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
func (b *iqrBounds) classify(v float64) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v < b.extremeLo || v > b.extremeHi {
		return "extreme"
	}
	if v < b.outlierLo || v > b.outlierHi {
		return "outlier"
	}
	return ""
}

func printAnalysisTable(w io.Writer, rows []AnalysisRow) {
	headers := []string{"File", "Codec", "Rate", "Bitrate", "Pitch", "Ratio"}
	cells := make([][]string, len(rows))
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for i, r := range rows {
		cells[i] = []string{
			r.Name,
			orNA(r.Codec),
			rateLabel(r.SampleRate),
			display.FormatBitrate(r.BitRate),
			pitchLabel(r.Pitch),
			fmt.Sprintf("%.4f", r.Ratio),
		}
		for j, c := range cells[i] {
			if n := len([]rune(c)); n > widths[j] {
				widths[j] = n
			}
		}
	}
	if widths[0] > 50 {
		widths[0] = 50
	}

	var hdr strings.Builder
	hdr.WriteString(" ")
	for i, h := range headers {
		fmt.Fprintf(&hdr, " %-*s ", widths[i], h)
	}
	header := strings.TrimRight(hdr.String(), " ")
	fmt.Fprintln(w, term.Bold+header+term.NC)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))

	for i, r := range rows {
		c := cells[i]
		name := c[0]
		if len([]rune(name)) > widths[0] {
			name = string([]rune(name)[:widths[0]-1]) + "…"
		}
		// Pad the plain text first, then wrap in ANSI color, so escape
		// bytes do not count toward the column width.
		fmt.Fprintf(w, "  %s  %-*s  %-*s  %-*s  %s  %-*s  %s\n",
			padRunes(name, widths[0]),
			widths[1], c[1],
			widths[2], c[2],
			widths[3], c[3],
			colorPad(c[4], widths[4], r.Class),
			widths[5], c[5],
			formatFlag(r.Class),
		)
	}
	fmt.Fprintln(w)
}

func printAnalysisSummary(log Logger, rows []AnalysisRow, stats iqrBounds) {
	var outliers, extremes, detected int
	for _, r := range rows {
		if r.Pitch > 0 {
			detected++
		}
		switch r.Class {
		case "extreme":
			extremes++
		case "outlier":
			outliers++
		}
	}

	log.Info("Analyzed %d files, pitch detected for %d", len(rows), detected)
	if stats.valid {
		log.Info("  Pitch IQR: %.2f - %.2f Hz (outlier < %.2f or > %.2f)",
			stats.q1, stats.q3, stats.outlierLo, stats.outlierHi)
	}
	if outliers > 0 {
		log.Outlier("  %d outlier(s) flagged [*]", outliers)
	}
	if extremes > 0 {
		log.Error("  %d extreme outlier(s) flagged [!]", extremes)
	}
	if outliers == 0 && extremes == 0 {
		log.Success("  No outliers detected")
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func rateLabel(hz int) string {
	if hz <= 0 {
		return "n/a"
	}
	return display.FormatSampleRate(hz)
}

func pitchLabel(hz float64) string {
	if hz <= 0 {
		return "n/a"
	}
	return display.FormatPitch(hz)
}

func padRunes(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func formatFlag(flag string) string {
	switch flag {
	case "extreme":
		return term.Red + "[!]" + term.NC
	case "outlier":
		return term.Orange + "[*]" + term.NC
	default:
		return ""
	}
}

// colorPad pads a plain string to width, then wraps in ANSI color. This
// ensures %-*s-style alignment works correctly regardless of escape sequences.
func colorPad(s string, width int, class string) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch class {
	case "extreme":
		return term.Red + padded + term.NC
	case "outlier":
		return term.Orange + padded + term.NC
	default:
		return padded
	}
}

// printProgress shows a live counter. On a TTY it writes an inline
// \r-overwritten line; otherwise it is a no-op.
func printProgress(w io.Writer, isTTY bool, current, total int, name string) {
	if !isTTY {
		return
	}
	pct := current * 100 / total
	status := fmt.Sprintf("  Analyzing [%d/%d] %d%% ", current, total, pct)

	maxName := 40
	if r := []rune(name); len(r) > maxName {
		name = string(r[:maxName-1]) + "…"
	}
	status += name

	// Pad to 80 chars to overwrite previous longer lines, then \r.
	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(w, "\r%s", status)
}

// clearProgress erases the inline progress line on a TTY.
func clearProgress(w io.Writer) {
	fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", 80))
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
