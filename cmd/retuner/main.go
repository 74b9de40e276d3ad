// Command retuner is the CLI entrypoint for the Retuner batch audio pitch
// converter.
//
// It parses flags, validates configuration and paths, and either runs
// system diagnostics (--check), the pitch analysis report (--analyze) or
// the conversion batch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/backmassage/retuner/internal/check"
	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/display"
	"github.com/backmassage/retuner/internal/ffmpeg"
	"github.com/backmassage/retuner/internal/logging"
	"github.com/backmassage/retuner/internal/pipeline"
	"github.com/backmassage/retuner/internal/pitch"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
	"github.com/backmassage/retuner/internal/source"
	"github.com/backmassage/retuner/internal/term"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:], version); err != nil {
		fmt.Fprintf(os.Stderr, "retuner: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "retuner: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retuner: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available. All output goes through log from here on.
	display.PrintBanner(os.Stdout)

	if cfg.CheckOnly {
		if !check.RunCheck(&cfg, log) {
			return 1
		}
		return 0
	}

	inputDirs, err := inspectInputs(cfg.Inputs)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	if !cfg.AnalyzeOnly {
		if err := prepareDestination(&cfg, inputDirs); err != nil {
			log.Error("%v", err)
			return 1
		}
	}

	log.Info("=== Retuner v%s (%s) ===", version, commit)
	if cfg.ConfigFile != "" {
		log.Info("Config: %s", cfg.ConfigFile)
	}
	if !cfg.AnalyzeOnly {
		log.Info("Out: %s", cfg.Destination)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: no files will be written")
	}

	if err := check.CheckDeps(&cfg); err != nil {
		log.Error("%v", err)
		return 1
	}

	prober := probe.FFprobe{Bin: cfg.FFprobeBin}
	detector := pitch.NewDetector(ffmpeg.Decoder{Bin: cfg.FFmpegBin})
	backend := &ffmpeg.Backend{
		Bin:     cfg.FFmpegBin,
		Verbose: cfg.Verbose,
		OnRetry: func(plan *planner.EncodePlan, action ffmpeg.RetryAction, attempt int) {
			log.Warn("Retry %d for %s: %s", attempt, filepath.Base(plan.InputPath), action)
		},
	}

	// --exists ask prompts on the terminal; without one every conflict is
	// skipped.
	var ask *prompter
	deps := pipeline.Deps{Backend: backend, Prober: prober, Detector: detector}
	if cfg.FileExists == config.ExistsAsk && !cfg.AnalyzeOnly {
		ask = newPrompter(os.Stdin, os.Stdout, term.Interactive())
		if !ask.interactive {
			log.Warn("--exists ask needs a terminal; existing files will be skipped")
		}
		deps.Resolver = ask.Resolve
	}

	enc := pipeline.New(pipeline.OptionsFromConfig(&cfg), deps, log)
	if err := addInputs(enc.Sources(), cfg.Inputs); err != nil {
		log.Error("%v", err)
		return 1
	}
	queued := len(enc.Sources().Flatten())
	if queued == 0 {
		log.Warn("No audio files found")
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AnalyzeOnly {
		stop := onSignal(func(bool) {
			log.Warn("Received interrupt, stopping analysis…")
			cancel()
		})
		defer stop()
		_, err := pipeline.Analyze(ctx, enc.Sources().Flatten(), pipeline.AnalyzeOptions{
			Encode:      cfg.Encode,
			Concurrency: cfg.Concurrency,
		}, prober, detector, log)
		if err != nil {
			return 1
		}
		return 0
	}

	// Phase 3: Signal handling. The first signal stops pitch detection or
	// dispatch and lets running files finish; the second aborts them.
	var interrupted atomic.Bool
	detectCtx, stopDetect := context.WithCancel(ctx)
	defer stopDetect()
	stop := onSignal(func(first bool) {
		if first {
			log.Warn("Received interrupt, finishing running files (interrupt again to abort)…")
			interrupted.Store(true)
			stopDetect()
			enc.Cancel()
			return
		}
		log.Warn("Aborting running files…")
		cancel()
	})
	defer stop()

	// Phase 4: Detect every source's pitch up front, like adding files in
	// an interactive session would. Failures are left to the per-file
	// fallback, which logs them.
	if cfg.Encode.AutoDetectPitch {
		log.Info("Detecting pitch of %d file(s)…", queued)
		_ = enc.Sources().DetectPitches(detectCtx, detector, cfg.Concurrency, nil)
		if interrupted.Load() {
			log.Warn("Interrupted during pitch detection, nothing was converted")
			return 0
		}
	}

	// Phase 5: Progress. Prompts and the bar would fight over the line.
	var bar *display.Progress
	if cfg.Progress && !cfg.Verbose && ask == nil && term.IsTerminal(os.Stdout) {
		bar = display.NewProgress(os.Stdout, "Converting", queued)
		log.SetQuiet(true)
		unsubscribe := enc.Subscribe(func(e pipeline.Event) {
			switch e.Kind {
			case pipeline.ItemCompleted, pipeline.ItemFailed, pipeline.ItemSkipped:
				bar.Increment()
			}
		})
		defer unsubscribe()
	}

	lastSeq := enc.Events().Last()
	rep, err := enc.Run(ctx)
	bar.Done()
	log.SetQuiet(false)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	if cfg.Verbose {
		logEventTrail(log, enc.Events().Since(lastSeq))
	}
	rep.Log(log)
	if rep.State == pipeline.Fatal || rep.Stats.Failed > 0 {
		return 1
	}
	return 0
}

// logEventTrail writes one debug line per batch event.
func logEventTrail(log *logging.Logger, events []pipeline.Event) {
	for _, e := range events {
		name := ""
		if e.Source != nil {
			name = filepath.Base(e.Source.Path)
		}
		log.Debug(true, "event #%d %s %s %s", e.Seq, e.Time.Format("15:04:05.000"), e.Kind, name)
	}
}

// onSignal calls fn on every SIGINT/SIGTERM, with first set for the first
// one. The returned func stops delivery.
func onSignal(fn func(first bool)) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		first := true
		for {
			select {
			case <-sigCh:
				fn(first)
				first = false
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// inspectInputs checks that every input exists and returns the absolute,
// symlink-resolved paths of those that are directories.
func inspectInputs(inputs []string) ([]string, error) {
	var dirs []string
	for _, in := range inputs {
		fi, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input not found: %s", in)
		}
		if fi.IsDir() {
			abs, err := absPath(in)
			if err != nil {
				return nil, fmt.Errorf("cannot resolve input path: %s", in)
			}
			dirs = append(dirs, abs)
		}
	}
	return dirs, nil
}

// prepareDestination creates the destination (unless dry-running) and
// makes sure it is not inside an input folder.
func prepareDestination(cfg *config.Config, inputDirs []string) error {
	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.Destination, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory: %s", cfg.Destination)
		}
	}
	destAbs, err := absPath(cfg.Destination)
	if err != nil {
		// Dry run with a destination that does not exist yet.
		destAbs, err = filepath.Abs(cfg.Destination)
		if err != nil {
			return fmt.Errorf("cannot resolve output path: %s", cfg.Destination)
		}
	}
	return cfg.ValidatePaths(destAbs, inputDirs)
}

// addInputs queues every input: folders are expanded recursively, anything
// else is added as a single file.
func addInputs(tree *source.Tree, inputs []string) error {
	for _, in := range inputs {
		fi, err := os.Stat(in)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if _, err := tree.AddFolder(in, source.FSLocator{}); err != nil {
				return err
			}
			continue
		}
		if _, err := tree.AddFile(in); err != nil {
			return err
		}
	}
	return nil
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of input vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
