// Package config holds runtime configuration: defaults, TOML config file
// loading, CLI flag parsing, and validation. EncodeSettings (the user's
// encoding intent) lives here too, together with its fixed lookup tables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// --- Enum types for validated string fields ---

// FileExistsAction is the policy applied when a destination file already exists.
type FileExistsAction string

const (
	ExistsAsk       FileExistsAction = "ask"       // Defer to a resolver callback per file.
	ExistsSkip      FileExistsAction = "skip"      // Leave the existing file alone.
	ExistsOverwrite FileExistsAction = "overwrite" // Replace the existing file.
	ExistsRename    FileExistsAction = "rename"    // Write to "name (N).ext" (default).
	ExistsCancel    FileExistsAction = "cancel"    // Skip this file and stop the batch.
)

// Valid reports whether a is a known action.
func (a FileExistsAction) Valid() bool {
	switch a {
	case ExistsAsk, ExistsSkip, ExistsOverwrite, ExistsRename, ExistsCancel:
		return true
	}
	return false
}

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// ValidationError reports a configuration or settings value that violates
// its invariants. It is fatal to a batch before any file is dispatched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid settings: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err (or anything it wraps) is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DefaultConcurrency is the number of files transcoded in parallel.
const DefaultConcurrency = 2

// Config holds all runtime settings. It is populated by [DefaultConfig],
// then by [LoadFile] when --config is given, then by [ParseFlags], before
// being passed (by pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args).
	Destination string   `toml:"destination"`
	Inputs      []string `toml:"-"`

	// Batch behavior.
	Concurrency int              `toml:"jobs"`   // Default: 2. Clamped to >= 1.
	FileExists  FileExistsAction `toml:"exists"` // Default: rename.
	DryRun      bool             `toml:"dry_run"`

	// Encoding intent.
	Encode EncodeSettings `toml:"encode"`

	// External tools.
	FFmpegBin  string `toml:"ffmpeg"`  // Default: "ffmpeg".
	FFprobeBin string `toml:"ffprobe"` // Default: "ffprobe".

	// Display and logging.
	Verbose     bool      `toml:"verbose"`
	ColorMode   ColorMode `toml:"color"`    // Default: "auto".
	LogFile     string    `toml:"log"`      // Optional log file path.
	Progress    bool      `toml:"progress"` // Default: true. Progress bar on a TTY.
	CheckOnly   bool      `toml:"-"`        // Run --check diagnostics and exit.
	AnalyzeOnly bool      `toml:"-"`        // Detect and report pitch only; no encoding.
	ConfigFile  string    `toml:"-"`        // --config path, if any.
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [LoadFile] and [ParseFlags] apply overrides.
func DefaultConfig() Config {
	return Config{
		Concurrency: DefaultConcurrency,
		FileExists:  ExistsRename,
		DryRun:      false,
		Encode:      DefaultEncodeSettings(),
		FFmpegBin:   "ffmpeg",
		FFprobeBin:  "ffprobe",
		Verbose:     false,
		ColorMode:   ColorAuto,
		Progress:    true,
		CheckOnly:   false,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// ClampConcurrency returns n, or 1 when n is below 1.
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Validate checks enum fields and encode settings, clamps Concurrency, and
// (unless in CheckOnly mode) requires a destination and at least one input.
func (c *Config) Validate() error {
	if !c.FileExists.Valid() {
		return &ValidationError{Field: "exists", Message: fmt.Sprintf("unknown action %q (use ask, skip, overwrite, rename or cancel)", c.FileExists)}
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return &ValidationError{Field: "color", Message: fmt.Sprintf("unknown mode %q (use auto, always or never)", c.ColorMode)}
	}

	c.Concurrency = ClampConcurrency(c.Concurrency)

	if err := c.Encode.Validate(); err != nil {
		return err
	}

	if c.CheckOnly {
		return nil
	}
	if len(c.Inputs) == 0 {
		return errors.New("need an output_dir and at least one input")
	}
	if c.Destination == "" && !c.AnalyzeOnly {
		return errors.New("need an output_dir and at least one input")
	}
	return nil
}

// ValidatePaths ensures the resolved destination is not inside (or equal
// to) a resolved input directory, so a later run does not pick up its own
// output. All arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(destAbs string, inputDirsAbs []string) error {
	sep := string(filepath.Separator)
	for _, in := range inputDirsAbs {
		if destAbs == in || strings.HasPrefix(destAbs+sep, in+sep) {
			return fmt.Errorf("output directory must not be inside input directory %s", in)
		}
	}
	return nil
}
