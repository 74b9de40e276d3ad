// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation (CheckDeps) for ffmpeg, ffprobe, the audio encoders
// and the rubberband filter.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrEncoderMissing  = errors.New("ffmpeg lacks the encoder for the selected format")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// audioEncoders lists the encoders each output format can use.
var audioEncoders = []struct {
	format config.Format
	codec  string
}{
	{config.FormatMP3, planner.CodecMP3},
	{config.FormatAAC, planner.CodecAAC},
	{config.FormatWAV, "pcm_s16le"},
	{config.FormatFLAC, planner.CodecFLAC},
	{config.FormatOGG, planner.CodecVorbis},
	{config.FormatOpus, planner.CodecOpus},
}

// RunCheck runs the --check flow: prints availability of ffmpeg, ffprobe,
// each output format's encoder and the rubberband filter, then test-encodes
// a short tone in the configured format. It reports false if anything the
// configured format needs is missing.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkTool(log, cfg.FFmpegBin)
	ok = checkTool(log, cfg.FFprobeBin) && ok
	if !ok {
		return false
	}

	encoders, err := listEncoders(cfg.FFmpegBin)
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return false
	}
	log.Info("Audio encoders:")
	for _, e := range audioEncoders {
		if encoders[e.codec] {
			log.Success("  %-5s %s", e.format, e.codec)
		} else {
			log.Warn("  %-5s %s (missing)", e.format, e.codec)
		}
	}

	filters, err := listFilters(cfg.FFmpegBin)
	switch {
	case err != nil:
		log.Warn("Could not list filters: %v", err)
	case filters["rubberband"]:
		log.Success("rubberband filter available (--skip-tempo)")
	default:
		log.Warn("rubberband filter missing: --skip-tempo falls back to resampling")
	}

	codec := formatCodec(cfg)
	log.Info("Testing %s encoder (%s)...", cfg.Encode.Format, codec)
	if runSilent(cfg.FFmpegBin, testEncodeArgs(codec)...) {
		log.Success("%s encoder works", codec)
		return true
	}
	log.Error("%s test encode failed", codec)
	return false
}

// checkTool verifies bin is on PATH and logs its version line.
func checkTool(log Logger, bin string) bool {
	if _, err := exec.LookPath(bin); err != nil {
		log.Error("%s not found", bin)
		return false
	}
	out, err := exec.Command(bin, "-version").Output()
	if err != nil {
		log.Warn("%s found but -version failed: %v", bin, err)
		return true
	}
	log.Success("%s", firstLine(string(out)))
	return true
}

// CheckDeps is the pre-pipeline validation: it verifies that ffmpeg and
// ffprobe are on PATH and that ffmpeg has the encoder for the configured
// format. A missing rubberband filter is not an error; the backend falls
// back to the resample chain.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.FFmpegBin); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath(cfg.FFprobeBin); err != nil {
		return ErrFfprobeNotFound
	}
	encoders, err := listEncoders(cfg.FFmpegBin)
	if err != nil {
		return fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	if codec := formatCodec(cfg); !encoders[codec] {
		return fmt.Errorf("%w: %s (%s)", ErrEncoderMissing, codec, cfg.Encode.Format)
	}
	return nil
}

// --- internal helpers ---

// formatCodec returns the encoder the planner picks for the configured
// format and bit depth.
func formatCodec(cfg *config.Config) string {
	return planner.BuildPlan(cfg.Encode, cfg.Encode.PitchFrom, probe.AudioInfo{}, nil).Codec
}

func listEncoders(bin string) (map[string]bool, error) {
	out, err := exec.Command(bin, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, err
	}
	return parseCapabilities(string(out)), nil
}

func listFilters(bin string) (map[string]bool, error) {
	out, err := exec.Command(bin, "-hide_banner", "-filters").Output()
	if err != nil {
		return nil, err
	}
	return parseCapabilities(string(out)), nil
}

// parseCapabilities extracts names from `ffmpeg -encoders` or `-filters`
// output. Entry lines are a flags column followed by the name. When a
// " ------" separator is present the legend above it is skipped.
func parseCapabilities(out string) map[string]bool {
	names := make(map[string]bool)
	lines := strings.Split(out, "\n")
	start := 0
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "---") {
			start = i + 1
			break
		}
	}
	for _, l := range lines[start:] {
		fields := strings.Fields(l)
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

// testEncodeArgs returns the ffmpeg arguments for a minimal test encode.
func testEncodeArgs(codec string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=1000:sample_rate=48000:duration=0.1",
		"-c:a", codec,
		"-f", "null", "-",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		return s[:idx]
	}
	return s
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
