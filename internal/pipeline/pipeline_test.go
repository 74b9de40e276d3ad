package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/ffmpeg"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
	"github.com/backmassage/retuner/internal/source"
)

// --- Fakes ---

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Info(f string, a ...interface{})    { l.add("INFO", f, a...) }
func (l *recordingLogger) Success(f string, a ...interface{}) { l.add("SUCCESS", f, a...) }
func (l *recordingLogger) Warn(f string, a ...interface{})    { l.add("WARN", f, a...) }
func (l *recordingLogger) Error(f string, a ...interface{})   { l.add("ERROR", f, a...) }
func (l *recordingLogger) Plan(f string, a ...interface{})    { l.add("PLAN", f, a...) }
func (l *recordingLogger) Outlier(f string, a ...interface{}) { l.add("OUTLIER", f, a...) }
func (l *recordingLogger) Debug(v bool, f string, a ...interface{}) {
	if v {
		l.add("DEBUG", f, a...)
	}
}

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// fakeBackend writes "encoded <input>" to the output path.
type fakeBackend struct {
	delay   time.Duration
	fail    map[string]bool // input base names that fail
	block   chan struct{}   // if set, every Encode waits on it (or ctx)
	started chan string     // if set, receives each input base name

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu      sync.Mutex
	pitches map[string]float64
}

func (b *fakeBackend) Encode(ctx context.Context, plan *planner.EncodePlan) error {
	b.calls.Add(1)
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	base := filepath.Base(plan.InputPath)
	b.mu.Lock()
	if b.pitches == nil {
		b.pitches = make(map[string]float64)
	}
	b.pitches[base] = plan.SourcePitch
	b.mu.Unlock()
	if b.started != nil {
		b.started <- base
	}

	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return &ffmpeg.BackendError{Path: plan.InputPath, Err: ctx.Err()}
		}
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return &ffmpeg.BackendError{Path: plan.InputPath, Err: ctx.Err()}
		}
	}
	if b.fail[base] {
		return &ffmpeg.BackendError{Path: plan.InputPath, Stderr: "Conversion failed!", Err: errors.New("exit status 1")}
	}
	return os.WriteFile(plan.OutputPath, []byte("encoded "+plan.InputPath), 0o644)
}

func (b *fakeBackend) pitch(base string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pitches[base]
}

type fakeDetector struct {
	hz   float64
	err  error
	hits atomic.Int32
}

func (d *fakeDetector) DetectFile(context.Context, string) (float64, error) {
	d.hits.Add(1)
	return d.hz, d.err
}

type fakeProber struct {
	info probe.AudioInfo
	fail map[string]bool
}

func (p *fakeProber) AudioInfo(_ context.Context, path string) (probe.AudioInfo, error) {
	if p.fail[filepath.Base(path)] {
		return probe.AudioInfo{}, probe.ErrNoAudio
	}
	return p.info, nil
}

// --- Helpers ---

type fixture struct {
	in, out string
	log     *recordingLogger
	backend *fakeBackend
	enc     *Encoder
}

func newFixture(t *testing.T, files []string, mutate func(*Options, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		in:      t.TempDir(),
		out:     t.TempDir(),
		log:     &recordingLogger{},
		backend: &fakeBackend{},
	}
	opts := Options{
		Destination: f.out,
		Concurrency: 2,
		FileExists:  config.ExistsRename,
		Encode:      config.DefaultEncodeSettings(),
	}
	opts.Encode.AutoDetectPitch = false
	deps := Deps{Backend: f.backend}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	f.enc = New(opts, deps, f.log)
	for _, name := range files {
		writeFile(t, filepath.Join(f.in, name), "source "+name)
		if _, err := f.enc.Sources().AddFile(filepath.Join(f.in, name)); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	rep, err := f.enc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func itemByBase(t *testing.T, rep *Report, base string) ItemReport {
	t.Helper()
	for _, it := range rep.Items {
		if filepath.Base(it.Path) == base {
			return it
		}
	}
	t.Fatalf("no item %s in report", base)
	return ItemReport{}
}

func waitState(t *testing.T, e *Encoder, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", e.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

// --- Orchestration tests ---

func TestRun_ThreeFilesConcurrencyTwo(t *testing.T) {
	f := newFixture(t, []string{"a.flac", "b.flac", "c.flac"}, nil)
	f.backend.delay = 100 * time.Millisecond

	rep := f.run(t)
	if rep.State != Completed || f.enc.State() != Completed {
		t.Fatalf("state = %v", rep.State)
	}
	for _, it := range rep.Items {
		if it.Status != source.Completed {
			t.Errorf("%s: %v (%s)", it.Path, it.Status, it.Detail)
		}
	}
	if got := f.backend.maxSeen.Load(); got != 2 {
		t.Errorf("max concurrent = %d, want 2", got)
	}
	if rep.Stats.Total != 3 || rep.Stats.Completed != 3 || !rep.OK() {
		t.Errorf("stats = %+v", rep.Stats)
	}
	if got := readFile(t, filepath.Join(f.out, "b.mp3")); !strings.HasSuffix(got, "b.flac") {
		t.Errorf("b.mp3 = %q", got)
	}
	if rep.Stats.TotalInputBytes == 0 || rep.Stats.TotalOutputBytes == 0 {
		t.Errorf("byte totals not recorded: %+v", rep.Stats)
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("%02d.wav", i)
	}
	f := newFixture(t, names, func(o *Options, _ *Deps) { o.Concurrency = 3 })
	f.backend.delay = 10 * time.Millisecond

	rep := f.run(t)
	if got := f.backend.maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent = %d, limit 3", got)
	}
	if rep.Stats.Completed != 10 {
		t.Errorf("completed = %d", rep.Stats.Completed)
	}
}

func TestRun_ConcurrencyClamped(t *testing.T) {
	f := newFixture(t, []string{"a.mp3", "b.mp3"}, func(o *Options, _ *Deps) { o.Concurrency = 0 })
	f.backend.delay = 20 * time.Millisecond
	f.run(t)
	if got := f.backend.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent = %d, want 1", got)
	}
}

func TestRun_ExistsSkip(t *testing.T) {
	f := newFixture(t, []string{"a.flac", "b.flac"}, func(o *Options, _ *Deps) { o.FileExists = config.ExistsSkip })
	existing := filepath.Join(f.out, "a.mp3")
	writeFile(t, existing, "old")

	rep := f.run(t)
	if it := itemByBase(t, rep, "a.flac"); it.Status != source.Skipped || it.Detail != detailExists {
		t.Errorf("a: %v %q", it.Status, it.Detail)
	}
	if got := readFile(t, existing); got != "old" {
		t.Errorf("existing file overwritten: %q", got)
	}
	if it := itemByBase(t, rep, "b.flac"); it.Status != source.Completed {
		t.Errorf("b: %v", it.Status)
	}
	if rep.State != Completed {
		t.Errorf("state = %v", rep.State)
	}
}

func TestRun_ExistsOverwrite(t *testing.T) {
	f := newFixture(t, []string{"a.flac"}, func(o *Options, _ *Deps) { o.FileExists = config.ExistsOverwrite })
	existing := filepath.Join(f.out, "a.mp3")
	writeFile(t, existing, "old")

	rep := f.run(t)
	it := itemByBase(t, rep, "a.flac")
	if it.Status != source.Completed || it.OutputPath != existing {
		t.Errorf("a: %v -> %s", it.Status, it.OutputPath)
	}
	if got := readFile(t, existing); got == "old" {
		t.Error("existing file not replaced")
	}
}

func TestRun_SameFileAddedTwice(t *testing.T) {
	for _, action := range []config.FileExistsAction{config.ExistsRename, config.ExistsSkip, config.ExistsOverwrite} {
		t.Run(string(action), func(t *testing.T) {
			f := newFixture(t, []string{"a.wav"}, func(o *Options, _ *Deps) {
				o.FileExists = action
			})
			f.backend.delay = 20 * time.Millisecond
			if _, err := f.enc.Sources().AddFile(filepath.Join(f.in, "a.wav")); err != nil {
				t.Fatal(err)
			}

			rep := f.run(t)
			if len(rep.Items) != 2 {
				t.Fatalf("got %d items, want 2", len(rep.Items))
			}
			outs := map[string]bool{}
			for _, it := range rep.Items {
				if it.Status != source.Completed {
					t.Fatalf("%s: %v %s", it.Path, it.Status, it.Detail)
				}
				outs[it.OutputPath] = true
			}
			for _, want := range []string{"a.mp3", "a (1).mp3"} {
				if !outs[filepath.Join(f.out, want)] {
					t.Errorf("outputs %v, missing %s", outs, want)
				}
				if _, err := os.Stat(filepath.Join(f.out, want)); err != nil {
					t.Errorf("%s not written: %v", want, err)
				}
			}
		})
	}
}

func TestRun_ExistsRename(t *testing.T) {
	f := newFixture(t, []string{"one.flac", "two.flac"}, nil)
	natural := filepath.Join(f.out, "one.mp3")
	writeFile(t, natural, "old")
	writeFile(t, filepath.Join(f.out, "one (1).mp3"), "older")

	rep := f.run(t)
	one := itemByBase(t, rep, "one.flac")
	if one.Status != source.Completed {
		t.Fatalf("one: %v %s", one.Status, one.Detail)
	}
	if one.OutputPath == natural {
		t.Error("renamed output equals the natural name")
	}
	if want := filepath.Join(f.out, "one (2).mp3"); one.OutputPath != want {
		t.Errorf("one -> %s, want %s", one.OutputPath, want)
	}
	if readFile(t, natural) != "old" || readFile(t, filepath.Join(f.out, "one (1).mp3")) != "older" {
		t.Error("rename clobbered an existing file")
	}
	if two := itemByBase(t, rep, "two.flac"); two.OutputPath != filepath.Join(f.out, "two.mp3") {
		t.Errorf("two -> %s", two.OutputPath)
	}
}

func TestRun_ExistsCancel(t *testing.T) {
	f := newFixture(t, []string{"1.wav", "2.wav", "3.wav", "4.wav"}, func(o *Options, _ *Deps) {
		o.Concurrency = 1
		o.FileExists = config.ExistsCancel
	})
	writeFile(t, filepath.Join(f.out, "2.mp3"), "old")

	rep := f.run(t)
	if rep.State != Cancelled {
		t.Fatalf("state = %v, want cancelled", rep.State)
	}
	want := map[string]source.Status{
		"1.wav": source.Completed, "2.wav": source.Skipped,
		"3.wav": source.Skipped, "4.wav": source.Skipped,
	}
	for base, st := range want {
		if it := itemByBase(t, rep, base); it.Status != st {
			t.Errorf("%s: %v, want %v", base, it.Status, st)
		}
	}
	if itemByBase(t, rep, "3.wav").Detail != "cancelled" {
		t.Error("undispatched item not marked cancelled")
	}
	if f.backend.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", f.backend.calls.Load())
	}
}

func TestRun_CancelLetsRunningItemsFinish(t *testing.T) {
	f := newFixture(t, []string{"a.wav", "b.wav", "c.wav"}, func(o *Options, _ *Deps) { o.Concurrency = 1 })
	f.backend.block = make(chan struct{})
	f.backend.started = make(chan string, 3)

	done := make(chan *Report, 1)
	go func() {
		rep, _ := f.enc.Run(context.Background())
		done <- rep
	}()
	<-f.backend.started
	f.enc.Cancel()
	f.enc.Cancel() // idempotent
	close(f.backend.block)

	rep := <-done
	if rep.State != Cancelled {
		t.Fatalf("state = %v", rep.State)
	}
	if it := itemByBase(t, rep, "a.wav"); it.Status != source.Completed {
		t.Errorf("running item: %v", it.Status)
	}
	for _, base := range []string{"b.wav", "c.wav"} {
		if it := itemByBase(t, rep, base); it.Status != source.Skipped {
			t.Errorf("%s: %v", base, it.Status)
		}
	}
	f.enc.Cancel() // safe after completion
	if f.enc.State() != Cancelled {
		t.Errorf("Cancel after completion changed state to %v", f.enc.State())
	}
}

func TestRun_ContextCancelAborts(t *testing.T) {
	f := newFixture(t, []string{"a.wav", "b.wav", "c.wav"}, func(o *Options, _ *Deps) { o.Concurrency = 2 })
	f.backend.block = make(chan struct{})
	f.backend.started = make(chan string, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *Report, 1)
	go func() {
		rep, _ := f.enc.Run(ctx)
		done <- rep
	}()
	<-f.backend.started
	<-f.backend.started
	cancel()

	rep := <-done
	if rep.State != Cancelled {
		t.Fatalf("state = %v", rep.State)
	}
	aborted := 0
	for _, it := range rep.Items {
		switch {
		case it.Status == source.Failed && it.Detail == detailAborted:
			aborted++
			if !errors.Is(it.Err, context.Canceled) {
				t.Errorf("%s: err %v does not wrap context.Canceled", it.Path, it.Err)
			}
		case it.Status == source.Skipped:
		default:
			t.Errorf("%s: %v %q", it.Path, it.Status, it.Detail)
		}
	}
	if aborted != 2 {
		t.Errorf("aborted = %d, want 2", aborted)
	}
	entries, _ := os.ReadDir(f.out)
	if len(entries) != 0 {
		t.Errorf("outputs written after abort: %v", entries)
	}
}

func TestRun_BackendFailureIsIsolated(t *testing.T) {
	f := newFixture(t, []string{"bad.flac", "good1.flac", "good2.flac"}, nil)
	f.backend.fail = map[string]bool{"bad.flac": true}

	rep := f.run(t)
	if rep.State != Completed {
		t.Fatalf("state = %v", rep.State)
	}
	bad := itemByBase(t, rep, "bad.flac")
	var be *ffmpeg.BackendError
	if bad.Status != source.Failed || !errors.As(bad.Err, &be) {
		t.Errorf("bad: %v %v", bad.Status, bad.Err)
	}
	if !strings.Contains(bad.Detail, "Conversion failed!") {
		t.Errorf("detail = %q", bad.Detail)
	}
	if rep.Stats.Completed != 2 || rep.Stats.Failed != 1 || rep.OK() {
		t.Errorf("stats = %+v", rep.Stats)
	}
	if len(rep.Failed()) != 1 {
		t.Errorf("Failed() = %v", rep.Failed())
	}
}

func TestRun_ProbeFailureIsDecodeError(t *testing.T) {
	f := newFixture(t, []string{"broken.mp3", "fine.mp3"}, func(_ *Options, d *Deps) {
		d.Prober = &fakeProber{info: probe.AudioInfo{SampleRate: 48000}, fail: map[string]bool{"broken.mp3": true}}
	})
	rep := f.run(t)
	broken := itemByBase(t, rep, "broken.mp3")
	var de *ffmpeg.DecodeError
	if broken.Status != source.Failed || !errors.As(broken.Err, &de) {
		t.Errorf("broken: %v %v", broken.Status, broken.Err)
	}
	if itemByBase(t, rep, "fine.mp3").Status != source.Completed {
		t.Error("probe failure affected another item")
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	f := newFixture(t, []string{"a.wav"}, nil)
	f.backend.block = make(chan struct{})
	f.backend.started = make(chan string, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.enc.Run(context.Background())
	}()
	<-f.backend.started

	rep, err := f.enc.Run(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) || rep != nil {
		t.Errorf("second Run = %v, %v", rep, err)
	}
	if f.enc.State() != Running {
		t.Errorf("misuse changed state to %v", f.enc.State())
	}
	close(f.backend.block)
	<-done
	waitState(t, f.enc, Completed)

	// A finished encoder can run again.
	f.backend.block = nil
	f.backend.started = nil
	rep2, err := f.enc.Run(context.Background())
	if err != nil || rep2.State != Completed {
		t.Errorf("rerun = %v, %v", rep2, err)
	}
	if it := rep2.Items[0]; it.OutputPath != filepath.Join(f.out, "a (1).mp3") {
		t.Errorf("rerun output = %s", it.OutputPath)
	}
}

func TestRun_ValidationIsFatal(t *testing.T) {
	f := newFixture(t, []string{"a.wav"}, func(o *Options, _ *Deps) { o.Encode.Speed = 0 })
	var kinds []EventKind
	f.enc.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })

	rep, err := f.enc.Run(context.Background())
	if !config.IsValidationError(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if rep.State != Fatal || f.enc.State() != Fatal {
		t.Errorf("state = %v", rep.State)
	}
	if len(kinds) != 1 || kinds[0] != BatchFatal {
		t.Errorf("events = %v", kinds)
	}
	if f.backend.calls.Load() != 0 || rep.Items[0].Status != source.Pending {
		t.Error("item dispatched despite invalid settings")
	}
}

func TestRun_AskWithoutResolver(t *testing.T) {
	f := newFixture(t, []string{"a.wav"}, func(o *Options, _ *Deps) { o.FileExists = config.ExistsAsk })
	if _, err := f.enc.Run(context.Background()); !config.IsValidationError(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestRun_Ask(t *testing.T) {
	var asked sync.Map
	f := newFixture(t, []string{"keep.wav", "redo.wav", "new.wav"}, func(o *Options, d *Deps) {
		o.FileExists = config.ExistsAsk
		d.Resolver = func(_ context.Context, dest string) config.FileExistsAction {
			asked.Store(filepath.Base(dest), true)
			if strings.HasPrefix(filepath.Base(dest), "keep") {
				return config.ExistsSkip
			}
			return config.ExistsRename
		}
	})
	writeFile(t, filepath.Join(f.out, "keep.mp3"), "old")
	writeFile(t, filepath.Join(f.out, "redo.mp3"), "old")

	rep := f.run(t)
	if itemByBase(t, rep, "keep.wav").Status != source.Skipped {
		t.Error("keep not skipped")
	}
	if got := itemByBase(t, rep, "redo.wav").OutputPath; got != filepath.Join(f.out, "redo (1).mp3") {
		t.Errorf("redo -> %s", got)
	}
	if _, ok := asked.Load("new.mp3"); ok {
		t.Error("resolver asked about a free destination")
	}
	if _, ok := asked.Load("keep.mp3"); !ok {
		t.Error("resolver not asked about keep.mp3")
	}
}

func TestRun_AskDoesNotBlockOtherWorkers(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, []string{"a.wav", "b.wav", "c.wav"}, func(o *Options, d *Deps) {
		o.FileExists = config.ExistsAsk
		d.Resolver = func(context.Context, string) config.FileExistsAction {
			<-release
			return config.ExistsOverwrite
		}
	})
	writeFile(t, filepath.Join(f.out, "a.mp3"), "old")

	done := make(chan *Report, 1)
	go func() {
		rep, _ := f.enc.Run(context.Background())
		done <- rep
	}()
	deadline := time.Now().Add(5 * time.Second)
	for f.backend.calls.Load() < 2 {
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("other items did not progress while a resolver was pending")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	if rep := <-done; rep.Stats.Completed != 3 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}

func TestRun_DuplicateDestinationsRenamed(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	log := &recordingLogger{}
	backend := &fakeBackend{}
	opts := Options{Destination: out, Concurrency: 1, FileExists: config.ExistsOverwrite, Encode: config.DefaultEncodeSettings()}
	enc := New(opts, Deps{Backend: backend}, log)
	for _, p := range []string{"x/song.flac", "y/song.wav"} {
		writeFile(t, filepath.Join(in, p), p)
		if _, err := enc.Sources().AddFile(filepath.Join(in, p)); err != nil {
			t.Fatal(err)
		}
	}
	rep, err := enc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := []string{rep.Items[0].OutputPath, rep.Items[1].OutputPath}
	want := []string{filepath.Join(out, "song.mp3"), filepath.Join(out, "song (1).mp3")}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("outputs = %v, want %v", got, want)
	}
}

func TestRun_FolderLayoutMirrored(t *testing.T) {
	f := newFixture(t, nil, nil)
	writeFile(t, filepath.Join(f.in, "Album", "CD1", "01.flac"), "x")
	writeFile(t, filepath.Join(f.in, "Album", "02.flac"), "x")
	if _, err := f.enc.Sources().AddFolder(filepath.Join(f.in, "Album"), nil); err != nil {
		t.Fatal(err)
	}
	rep := f.run(t)
	for _, rel := range []string{"Album/CD1/01.mp3", "Album/02.mp3"} {
		if _, err := os.Stat(filepath.Join(f.out, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if rep.Stats.Completed != 2 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}

func TestRun_PitchPrecedence(t *testing.T) {
	det := &fakeDetector{hz: 444}
	f := newFixture(t, []string{"manual.wav", "prefilled.wav", "detect.wav"}, func(o *Options, d *Deps) {
		o.Encode.AutoDetectPitch = true
		d.Detector = det
	})
	srcs := f.enc.Sources().Flatten()
	srcs[0].SetPitch(450)
	srcs[0].SetDetectedPitch(430)
	srcs[1].SetDetectedPitch(436)

	f.run(t)
	for base, want := range map[string]float64{"manual.wav": 450, "prefilled.wav": 436, "detect.wav": 444} {
		if got := f.backend.pitch(base); got != want {
			t.Errorf("%s: source pitch %v, want %v", base, got, want)
		}
	}
	if det.hits.Load() != 1 {
		t.Errorf("detector called %d times, want 1", det.hits.Load())
	}
	if hz, _ := srcs[2].DetectedPitch(); hz != 444 {
		t.Errorf("detection not recorded: %v", hz)
	}
}

func TestRun_DetectionFailureFallsBack(t *testing.T) {
	det := &fakeDetector{err: errors.New("insufficient audio data")}
	f := newFixture(t, []string{"a.wav"}, func(o *Options, d *Deps) {
		o.Encode.AutoDetectPitch = true
		o.Encode.PitchFrom = 442
		d.Detector = det
	})
	rep := f.run(t)
	if got := f.backend.pitch("a.wav"); got != 442 {
		t.Errorf("source pitch %v, want PitchFrom 442", got)
	}
	if rep.Items[0].Status != source.Completed {
		t.Errorf("status = %v", rep.Items[0].Status)
	}
	if !f.log.contains("Pitch detection failed") {
		t.Error("detection failure not logged")
	}
}

func TestRun_NoAutoDetectUsesPitchFrom(t *testing.T) {
	det := &fakeDetector{hz: 444}
	f := newFixture(t, []string{"a.wav"}, func(o *Options, d *Deps) { d.Detector = det })
	f.enc.Sources().Flatten()[0].SetDetectedPitch(436)
	f.run(t)
	if got := f.backend.pitch("a.wav"); got != 440 {
		t.Errorf("source pitch %v, want 440", got)
	}
	if det.hits.Load() != 0 {
		t.Error("detector called with auto-detection off")
	}
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t, []string{"a.flac", "b.flac"}, func(o *Options, d *Deps) {
		o.DryRun = true
		d.Backend = nil
	})
	rep := f.run(t)
	for _, it := range rep.Items {
		if it.Status != source.Completed || it.Detail != detailDryRun {
			t.Errorf("%s: %v %q", it.Path, it.Status, it.Detail)
		}
		if _, err := os.Stat(it.OutputPath); !os.IsNotExist(err) {
			t.Errorf("dry run wrote %s", it.OutputPath)
		}
	}
	var buf recordingLogger
	rep.Log(&buf)
	if !buf.contains("n/a (dry run)") {
		t.Error("summary does not mention dry run")
	}
}

// --- Events ---

func TestRun_Events(t *testing.T) {
	f := newFixture(t, []string{"a.wav", "b.wav", "c.wav"}, nil)
	f.backend.fail = map[string]bool{"b.wav": true}
	var (
		mu     sync.Mutex
		events []Event
	)
	unsub := f.enc.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer unsub()

	rep := f.run(t)
	if len(events) != 7 {
		t.Fatalf("got %d events, want 7", len(events))
	}
	started := map[*source.AudioSource]bool{}
	counts := map[EventKind]int{}
	for i, e := range events {
		if e.Seq != events[0].Seq+uint64(i) {
			t.Errorf("event %d seq %d not consecutive", i, e.Seq)
		}
		if e.BatchID != rep.BatchID {
			t.Errorf("event %d batch %v, want %v", i, e.BatchID, rep.BatchID)
		}
		counts[e.Kind]++
		switch e.Kind {
		case ItemStarted:
			started[e.Source] = true
		case ItemCompleted, ItemFailed, ItemSkipped:
			if !started[e.Source] {
				t.Errorf("terminal event for %s before start", e.Source.Path)
			}
		}
	}
	if last := events[len(events)-1]; last.Kind != BatchCompleted || last.Source != nil {
		t.Errorf("last event = %v", last.Kind)
	}
	if counts[ItemStarted] != 3 || counts[ItemCompleted] != 2 || counts[ItemFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if got := f.enc.Events().Since(events[4].Seq); len(got) != 2 {
		t.Errorf("Since returned %d events, want 2", len(got))
	}
}

func TestRun_SubscriberUnsubscribesInCallback(t *testing.T) {
	f := newFixture(t, []string{"a.flac", "b.flac"}, func(o *Options, _ *Deps) {
		o.Concurrency = 1
	})
	var (
		unsub func()
		seen  atomic.Int32
	)
	unsub = f.enc.Subscribe(func(e Event) {
		seen.Add(1)
		if e.Kind == ItemStarted {
			unsub()
		}
	})

	done := make(chan *Report, 1)
	go func() {
		rep, _ := f.enc.Run(context.Background())
		done <- rep
	}()
	select {
	case rep := <-done:
		if rep.State != Completed {
			t.Errorf("state = %v", rep.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if n := seen.Load(); n != 1 {
		t.Errorf("subscriber saw %d events after unsubscribing, want 1", n)
	}
}

func TestEventBus_ConcurrentPublishKeepsOrder(t *testing.T) {
	b := NewEventBus(0)
	var (
		mu  sync.Mutex
		got []uint64
	)
	b.Subscribe(func(e Event) {
		// Reading the bus from a callback must not block.
		_ = b.Last()
		mu.Lock()
		got = append(got, e.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				b.Publish(Event{Kind: ItemStarted})
			}
		}()
	}
	wg.Wait()

	if len(got) != 400 {
		t.Fatalf("delivered %d events, want 400", len(got))
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("event %d delivered with seq %d", i, seq)
		}
	}
}

func TestEventBus(t *testing.T) {
	b := NewEventBus(3)
	var got []uint64
	unsub := b.Subscribe(func(e Event) { got = append(got, e.Seq) })
	for range 5 {
		b.Publish(Event{Kind: ItemStarted})
	}
	unsub()
	unsub()
	b.Publish(Event{Kind: BatchCompleted})

	if len(got) != 5 || got[4] != 5 {
		t.Errorf("delivered %v", got)
	}
	hist := b.Since(0)
	if len(hist) != 3 || hist[0].Seq != 4 || hist[2].Seq != 6 {
		t.Errorf("history = %v", hist)
	}
	if b.Last() != 6 || !hist[2].Kind.Terminal() || hist[0].Kind.Terminal() {
		t.Errorf("Last = %d", b.Last())
	}
}

func TestStateAndKindStrings(t *testing.T) {
	if Cancelled.String() != "cancelled" || State(99).String() != "unknown" {
		t.Error("State.String")
	}
	if ItemSkipped.String() != "item-skipped" || BatchFatal.String() != "batch-fatal" {
		t.Error("EventKind.String")
	}
}

// --- RunStats tests ---

func TestRunStats_SizeDelta(t *testing.T) {
	s := RunStats{TotalInputBytes: 1000, TotalOutputBytes: 600}
	if got := s.SizeDelta(); got != 400 {
		t.Errorf("SizeDelta: got %d, want 400", got)
	}

	s2 := RunStats{TotalInputBytes: 100, TotalOutputBytes: 150}
	if got := s2.SizeDelta(); got != -50 {
		t.Errorf("SizeDelta (negative): got %d, want -50", got)
	}
}

// --- Analyze tests ---

func TestComputeStats(t *testing.T) {
	b := computeStats([]float64{431, 432, 432, 432.5, 433, 434.5})
	if !b.valid {
		t.Fatal("stats not valid")
	}
	cases := map[float64]string{432: "", 431: "", 434.5: "outlier", 440: "extreme", 0: ""}
	for v, want := range cases {
		if got := b.classify(v); got != want {
			t.Errorf("classify(%v) = %q, want %q", v, got, want)
		}
	}
	if s := computeStats([]float64{1, 2, 3}); s.valid {
		t.Error("fewer than 4 values should not produce bounds")
	}
}

type tableDetector map[string]float64

func (d tableDetector) DetectFile(_ context.Context, path string) (float64, error) {
	hz, ok := d[filepath.Base(path)]
	if !ok {
		return 0, errors.New("insufficient audio data")
	}
	return hz, nil
}

func TestAnalyze(t *testing.T) {
	det := tableDetector{"a.mp3": 431, "b.mp3": 432, "c.mp3": 432, "d.mp3": 432.5, "e.mp3": 433, "f.mp3": 434.5}
	var srcs []*source.AudioSource
	for _, n := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3", "f.mp3", "silent.mp3"} {
		srcs = append(srcs, source.NewAudioSource("/music/"+n, ""))
	}
	var out bytes.Buffer
	log := &recordingLogger{}
	prober := &fakeProber{info: probe.AudioInfo{Codec: "mp3", SampleRate: 44100, BitRate: 320000}}

	rows, err := Analyze(context.Background(), srcs, AnalyzeOptions{
		Encode: config.DefaultEncodeSettings(), Concurrency: 3, Out: &out,
	}, prober, det, log)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 7 || rows[0].Name != "a.mp3" || rows[6].Name != "silent.mp3" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[5].Class != "outlier" || rows[1].Class != "" {
		t.Errorf("classes: f=%q b=%q", rows[5].Class, rows[1].Class)
	}
	if rows[6].Pitch != 0 || rows[6].Err == nil {
		t.Errorf("silent row = %+v", rows[6])
	}
	if rows[1].Ratio != 1 {
		t.Errorf("432 Hz source ratio = %v, want 1", rows[1].Ratio)
	}
	table := out.String()
	for _, s := range []string{"File", "Pitch", "431.00 Hz", "44.1 kHz", "[*]", "n/a"} {
		if !strings.Contains(table, s) {
			t.Errorf("table missing %q:\n%s", s, table)
		}
	}
	if !log.contains("1 outlier(s)") {
		t.Error("summary does not report the outlier")
	}
	if hz, ok := srcs[0].DetectedPitch(); !ok || hz != 431 {
		t.Error("Analyze did not record detections")
	}
}

func TestRun_DryRunEstimate(t *testing.T) {
	f := newFixture(t, []string{"a.flac", "b.flac"}, func(o *Options, d *Deps) {
		o.DryRun = true
		o.Encode.Format = config.FormatWAV
		d.Backend = nil
		d.Prober = &fakeProber{info: probe.AudioInfo{SampleRate: 44100, Channels: 2, BitsPerSample: 16, Duration: 10}}
	})
	rep := f.run(t)
	s := rep.Stats
	if s.Estimated != 2 || s.EstimatedLowBytes != 2*1764000 || s.EstimatedHighBytes != s.EstimatedLowBytes {
		t.Errorf("estimate stats = %+v", s)
	}
	var buf recordingLogger
	rep.Log(&buf)
	if !buf.contains("Estimated output") {
		t.Error("summary does not show the estimate")
	}
}
