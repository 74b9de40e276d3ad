package ffmpeg

import (
	"strconv"

	"github.com/backmassage/retuner/internal/planner"
)

// Build constructs the complete ffmpeg argument slice for a file, writing
// to outPath. The first element is bin.
//
// The retry parameter supplies the current filter chain, sample rate and
// encoder options, which may differ from the plan's initial values after
// retry adjustments.
func Build(bin string, plan *planner.EncodePlan, rs *RetryState, outPath string, verbose bool) []string {
	args := make([]string, 0, 32)

	// --- Preamble ---
	args = append(args, bin, "-hide_banner", "-nostdin", "-y")
	if verbose {
		args = append(args, "-loglevel", "info")
	} else {
		args = append(args, "-loglevel", "error")
	}

	// --- Input: first audio stream only; cover art and video are dropped ---
	args = append(args,
		"-i", plan.InputPath,
		"-map", "0:a:0",
		"-map_metadata", "0",
		"-vn", "-sn", "-dn",
	)

	// --- Filters ---
	if rs.Filters != "" {
		args = append(args, "-af", rs.Filters)
	}

	// --- Encoder ---
	args = append(args, "-c:a", plan.Codec)
	for _, p := range rs.Params {
		args = append(args, "-"+p.Name, p.Value)
	}
	if rs.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(rs.SampleRate))
	}

	return append(args, outPath)
}
