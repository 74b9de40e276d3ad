package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into encoding, pitch, batch, tools, display, and utility.
// Negated flags (e.g. --no-auto-pitch) are applied after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseFlags parses args (usually os.Args[1:]) into cfg. A --config file is
// loaded first so that explicit flags override it. On --help or --version it
// prints and exits. On error it returns non-nil (e.g. unknown flag, missing
// positional args).
func ParseFlags(cfg *Config, args []string, version string) error {
	if path := findConfigArg(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return err
		}
	}

	fs := flag.NewFlagSet("retuner", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() { printUsage(os.Stderr, version) }

	// Negated/override flags: we capture bools then apply to cfg after Parse,
	// so that defaults from DefaultConfig() and the config file hold unless
	// the user passes the flag.
	var negated negatedFlags

	defineEncodingFlags(fs, cfg)
	definePitchFlags(fs, cfg, &negated)
	defineBatchFlags(fs, cfg)
	defineToolFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, cfg, &negated)

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printUsage(os.Stderr, version)
			os.Exit(0)
		}
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(os.Stderr, version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "retuner v"+version)
		os.Exit(0)
	}

	return parsePositionalArgs(fs, cfg)
}

// findConfigArg returns the value of --config/-config if present. It runs
// before the real parse so the file can seed flag defaults.
func findConfigArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if len(name) == len(a) {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either invert a default (e.g. noAutoPitch -> AutoDetectPitch=false) or trigger exit (showHelp, showVersion).
type negatedFlags struct {
	noAutoPitch  bool
	noRoundPitch bool
	noProgress   bool
	forceColor   bool
	noColor      bool
	showVersion  bool
	showHelp     bool
}

// defineEncodingFlags registers format, bitrate, bit depth, sample rate, anti-alias and quality.
func defineEncodingFlags(fs *flag.FlagSet, cfg *Config) {
	e := &cfg.Encode
	fs.Var(&formatValue{&e.Format}, "format", "Output format: mp3 | aac | wav | flac | ogg | opus")
	fs.Var(&formatValue{&e.Format}, "f", "Same as --format")
	fs.IntVar(&e.Bitrate, "bitrate", e.Bitrate, "Bitrate in kbps (0 = source)")
	fs.IntVar(&e.Bitrate, "b", e.Bitrate, "Same as --bitrate")
	fs.BoolVar(&e.FixedBitrate, "cbr", e.FixedBitrate, "Constant bitrate")
	fs.IntVar(&e.BitsPerSample, "bits", e.BitsPerSample, "Bits per sample for WAV/FLAC (0 = source)")
	fs.IntVar(&e.SampleRate, "sample-rate", e.SampleRate, "Sample rate in Hz (0 = source)")
	fs.BoolVar(&e.AntiAlias, "anti-alias", e.AntiAlias, "Enable the anti-alias filter")
	fs.IntVar(&e.AntiAliasLength, "anti-alias-length", e.AntiAliasLength, "Anti-alias filter length (8-128)")
	fs.IntVar(&e.QualityOrSpeed, "quality", e.QualityOrSpeed, "0 = fastest ... 5 = best quality")
	fs.IntVar(&e.QualityOrSpeed, "q", e.QualityOrSpeed, "Same as --quality")
}

// definePitchFlags registers pitch, tempo and rate flags.
func definePitchFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	e := &cfg.Encode
	fs.Float64Var(&e.PitchFrom, "from", e.PitchFrom, "Source pitch in Hz (used when detection is off or fails)")
	fs.Float64Var(&e.PitchTo, "to", e.PitchTo, "Target pitch in Hz")
	fs.Float64Var(&e.Speed, "speed", e.Speed, "Tempo multiplier")
	fs.Float64Var(&e.Rate, "rate", e.Rate, "Playback rate multiplier")
	fs.BoolVar(&e.SkipTempo, "skip-tempo", e.SkipTempo, "Shift pitch without touching duration (rubberband)")
	fs.BoolVar(&n.noAutoPitch, "no-auto-pitch", false, "Do not detect the source pitch")
	fs.BoolVar(&n.noRoundPitch, "no-round-pitch", false, "Use the exact pitch ratio")
}

// defineBatchFlags registers jobs, file-exists policy, dry-run and analyze.
func defineBatchFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Concurrency, "jobs", cfg.Concurrency, "Files transcoded in parallel")
	fs.IntVar(&cfg.Concurrency, "j", cfg.Concurrency, "Same as --jobs")
	fs.Var(&existsValue{&cfg.FileExists}, "exists", "When output exists: ask | skip | overwrite | rename | cancel")
	fs.Var(&existsValue{&cfg.FileExists}, "e", "Same as --exists")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Preview only; do not encode")
	fs.BoolVar(&cfg.DryRun, "d", cfg.DryRun, "Same as --dry-run")
	fs.BoolVar(&cfg.AnalyzeOnly, "analyze", false, "Detect and report source pitch, then exit")
	fs.BoolVar(&cfg.AnalyzeOnly, "a", false, "Same as --analyze")
}

// defineToolFlags registers external binary paths.
func defineToolFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.FFmpegBin, "ffmpeg", cfg.FFmpegBin, "Path to ffmpeg")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe", cfg.FFprobeBin, "Path to ffprobe")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log, --no-progress, --config.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
	fs.BoolVar(&n.noProgress, "no-progress", false, "Disable the progress bar")
	// Already consumed by findConfigArg; registered so Parse accepts it.
	fs.String("config", cfg.ConfigFile, "Load settings from a TOML file")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, _ *Config, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg (e.g. noProgress -> Progress=false).
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noAutoPitch {
		cfg.Encode.AutoDetectPitch = false
	}
	if n.noRoundPitch {
		cfg.Encode.RoundPitch = false
	}
	if n.noProgress {
		cfg.Progress = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets Destination and Inputs. In analyze mode every
// positional is an input; otherwise the first one is the output directory.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if cfg.AnalyzeOnly {
		if len(args) == 0 {
			return fmt.Errorf("need at least one input to analyze")
		}
		cfg.Inputs = append(cfg.Inputs[:0], args...)
		return nil
	}
	switch {
	case len(args) >= 2:
		cfg.Destination = NormalizeDirArg(args[0])
		cfg.Inputs = append(cfg.Inputs[:0], args[1:]...)
	case len(args) == 1 && cfg.Destination != "":
		// Destination came from the config file.
		cfg.Inputs = append(cfg.Inputs[:0], args[0])
	default:
		return fmt.Errorf("need an output_dir and at least one input")
	}
	return nil
}

// printUsage writes the help text to w. Column-aligned for readability.
func printUsage(w io.Writer, version string) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "Retuner v" + version + ": batch audio pitch converter"},
		{"", ""},
		{"  retuner [OPTIONS] <output_dir> <input>...", ""},
		{"  retuner --analyze [OPTIONS] <input>...", ""},
		{"", ""},
		{"Encoding", ""},
		{"  -f, --format <fmt>", "mp3 | aac | wav | flac | ogg | opus (default: mp3)"},
		{"  -b, --bitrate <kbps>", "Bitrate, 0 = source (mp3/aac/ogg/opus)"},
		{"  --cbr", "Constant bitrate"},
		{"  --bits <n>", "Bits per sample 0/8/16/24/32 (wav/flac, default: 16)"},
		{"  --sample-rate <hz>", "Output sample rate, 0 = source"},
		{"  --anti-alias", "Enable anti-alias filter"},
		{"  --anti-alias-length <n>", "Anti-alias filter length 8-128 (default: 32)"},
		{"  -q, --quality <0-5>", "0 = fastest ... 5 = best (default: 5)"},
		{"", ""},
		{"Pitch & tempo", ""},
		{"  --from <hz>", "Source pitch (default: 440)"},
		{"  --to <hz>", "Target pitch (default: 432)"},
		{"  --no-auto-pitch", "Do not detect source pitch"},
		{"  --no-round-pitch", "Use the exact pitch ratio"},
		{"  --speed <x>", "Tempo multiplier (default: 1)"},
		{"  --rate <x>", "Playback rate multiplier (default: 1)"},
		{"  --skip-tempo", "Pitch-shift with rubberband, keep duration"},
		{"", ""},
		{"Batch", ""},
		{"  -j, --jobs <n>", "Files in parallel (default: " + strconv.Itoa(DefaultConcurrency) + ")"},
		{"  -e, --exists <action>", "ask | skip | overwrite | rename | cancel (default: rename)"},
		{"  -d, --dry-run", "Preview only; do not encode"},
		{"  -a, --analyze", "Report detected pitch per file and exit"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  --no-progress", "Disable the progress bar"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  --config <path>", "Load settings from a TOML file"},
		{"  --ffmpeg <path>", "ffmpeg binary (default: ffmpeg)"},
		{"  --ffprobe <path>", "ffprobe binary (default: ffprobe)"},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, encoders, rubberband)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(w)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(w, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(w, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(w, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters so we can use enum types (Format, FileExistsAction) with flag.Var.

type formatValue struct{ p *Format }

func (f *formatValue) String() string {
	if f.p == nil {
		return ""
	}
	return string(*f.p)
}

func (f *formatValue) Set(s string) error {
	v := Format(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "m4a":
		v = FormatAAC
	case "vorbis":
		v = FormatOGG
	}
	if !v.Valid() {
		return fmt.Errorf("invalid format %q (use %s)", s, formatList())
	}
	*f.p = v
	return nil
}

type existsValue struct{ p *FileExistsAction }

func (e *existsValue) String() string {
	if e.p == nil {
		return ""
	}
	return string(*e.p)
}

func (e *existsValue) Set(s string) error {
	v := FileExistsAction(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return fmt.Errorf("invalid action %q (use ask, skip, overwrite, rename or cancel)", s)
	}
	*e.p = v
	return nil
}
