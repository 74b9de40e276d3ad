package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/logging"
	"github.com/backmassage/retuner/internal/pipeline"
	"github.com/backmassage/retuner/internal/source"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want config.FileExistsAction
		ok   bool
	}{
		{"s\n", config.ExistsSkip, true},
		{"Overwrite\n", config.ExistsOverwrite, true},
		{" r ", config.ExistsRename, true},
		{"c", config.ExistsCancel, true},
		{"yes", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseAnswer(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseAnswer(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrompterRepromptsUntilValid(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("what\no\n"), &out, true)
	if got := p.Resolve(context.Background(), "/out/a.mp3"); got != config.ExistsOverwrite {
		t.Errorf("Resolve = %q, want overwrite", got)
	}
	if n := strings.Count(out.String(), "already exists"); n != 2 {
		t.Errorf("prompted %d times, want 2", n)
	}
}

func TestPrompterSkipsWithoutAnswer(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		interactive bool
		cancel      bool
	}{
		{"not interactive", "o\n", false, false},
		{"eof", "", true, false},
		{"cancelled", "o\n", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			p := newPrompter(strings.NewReader(tt.input), &bytes.Buffer{}, tt.interactive)
			if got := p.Resolve(ctx, "/out/a.mp3"); got != config.ExistsSkip {
				t.Errorf("Resolve = %q, want skip", got)
			}
		})
	}
}

func TestAddInputs(t *testing.T) {
	dir := t.TempDir()
	album := filepath.Join(dir, "album")
	if err := os.MkdirAll(filepath.Join(album, "cd1"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"album/cd1/01.flac", "album/notes.txt", "single.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var tree source.Tree
	if err := addInputs(&tree, []string{album, filepath.Join(dir, "single.mp3")}); err != nil {
		t.Fatalf("addInputs: %v", err)
	}
	srcs := tree.Flatten()
	if len(srcs) != 2 {
		t.Fatalf("got %d sources, want 2", len(srcs))
	}
	if srcs[0].RelativePath != "album/cd1/01.flac" {
		t.Errorf("folder rel = %q", srcs[0].RelativePath)
	}
	if srcs[1].RelativePath != "" {
		t.Errorf("file rel = %q, want empty", srcs[1].RelativePath)
	}

	if err := addInputs(&tree, []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for a missing input")
	}
}

func TestInspectInputs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirs, err := inspectInputs([]string{dir, file})
	if err != nil {
		t.Fatalf("inspectInputs: %v", err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	if len(dirs) != 1 || dirs[0] != want {
		t.Errorf("dirs = %v, want [%s]", dirs, want)
	}
	if _, err := inspectInputs([]string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("expected error for a missing input")
	}
}

func TestPrepareDestinationRejectsNested(t *testing.T) {
	dir := t.TempDir()
	in, _ := filepath.EvalSymlinks(dir)
	cfg := config.DefaultConfig()
	cfg.Destination = filepath.Join(dir, "out")
	if err := prepareDestination(&cfg, []string{in}); err == nil {
		t.Error("expected error for a destination inside an input folder")
	}

	cfg.Destination = filepath.Join(t.TempDir(), "out")
	if err := prepareDestination(&cfg, []string{in}); err != nil {
		t.Errorf("prepareDestination: %v", err)
	}
	if _, err := os.Stat(cfg.Destination); err != nil {
		t.Errorf("destination not created: %v", err)
	}
}

func TestLogEventTrail(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	log.SetOutput(&out, &out)

	bus := pipeline.NewEventBus(0)
	bus.Publish(pipeline.Event{Kind: pipeline.ItemStarted})
	since := bus.Last()
	bus.Publish(pipeline.Event{Kind: pipeline.ItemCompleted, Source: source.NewAudioSource("/in/a.wav", "")})
	bus.Publish(pipeline.Event{Kind: pipeline.BatchCompleted})

	logEventTrail(log, bus.Since(since))
	got := out.String()
	if strings.Contains(got, "event #1 ") {
		t.Errorf("trail includes events before the batch:\n%s", got)
	}
	for _, want := range []string{"event #2", "a.wav", "event #3"} {
		if !strings.Contains(got, want) {
			t.Errorf("trail missing %q:\n%s", want, got)
		}
	}
}
