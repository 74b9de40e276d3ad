package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/naming"
	"github.com/backmassage/retuner/internal/planner"
	"github.com/backmassage/retuner/internal/probe"
	"github.com/backmassage/retuner/internal/source"
)

// ErrAlreadyRunning is returned by Run while a batch is in progress.
var ErrAlreadyRunning = errors.New("batch already running")

// State is the batch-level lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Fatal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Logger is the minimal logging interface the pipeline needs.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Plan(string, ...interface{})
	Outlier(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Backend encodes one plan. Implementations must honor ctx cancellation
// by aborting the encode and returning once it has stopped.
type Backend interface {
	Encode(ctx context.Context, plan *planner.EncodePlan) error
}

// Prober reads the audio properties of a source.
type Prober interface {
	AudioInfo(ctx context.Context, path string) (probe.AudioInfo, error)
}

// ConflictResolver decides what to do with an existing destination when
// the policy is Ask. It may block; it is called concurrently for
// independent items and never with a lock held. Returning Ask or an
// unknown action is treated as Skip.
type ConflictResolver func(ctx context.Context, dest string) config.FileExistsAction

// Options are the per-batch settings.
type Options struct {
	Destination string
	Concurrency int
	FileExists  config.FileExistsAction
	Encode      config.EncodeSettings
	DryRun      bool
	Verbose     bool
	History     int // events kept by the bus; DefaultHistory if < 1
}

// OptionsFromConfig copies the batch settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Destination: cfg.Destination,
		Concurrency: cfg.Concurrency,
		FileExists:  cfg.FileExists,
		Encode:      cfg.Encode,
		DryRun:      cfg.DryRun,
		Verbose:     cfg.Verbose,
	}
}

// Deps are the collaborators of an Encoder. Backend is required, and
// Resolver is required when FileExists is Ask. Without a Prober the
// planner falls back to default source properties; without a Detector
// pitch detection is unavailable and PitchFrom is used.
type Deps struct {
	Backend  Backend
	Prober   Prober
	Detector source.Detector
	Resolver ConflictResolver
	Rounder  planner.Rounder
}

// Encoder is the batch orchestrator. It owns the source tree; callers add
// inputs through Sources() and then call Run.
type Encoder struct {
	opts Options
	deps Deps
	log  Logger

	tree *source.Tree
	bus  *EventBus

	mu        sync.Mutex // serializes Run start/finish
	state     atomic.Int32
	cancelled atomic.Bool
	batchID   uuid.UUID
}

// New returns an idle Encoder with an empty source tree.
func New(opts Options, deps Deps, log Logger) *Encoder {
	return &Encoder{
		opts: opts,
		deps: deps,
		log:  log,
		tree: &source.Tree{},
		bus:  NewEventBus(opts.History),
	}
}

// Sources returns the tree the next Run will process.
func (e *Encoder) Sources() *source.Tree { return e.tree }

// Events returns the encoder's event bus.
func (e *Encoder) Events() *EventBus { return e.bus }

// Subscribe registers fn for every future event.
func (e *Encoder) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.bus.Subscribe(fn)
}

// State returns the current batch state.
func (e *Encoder) State() State { return State(e.state.Load()) }

// Cancel stops dispatch of items not yet started; running items finish.
// It is idempotent and a no-op when no batch is running.
func (e *Encoder) Cancel() {
	if e.State() != Running {
		return
	}
	if e.cancelled.CompareAndSwap(false, true) {
		e.log.Warn("Cancel requested: finishing running items")
	}
}

// run holds the mutable state of one batch.
type run struct {
	id      uuid.UUID
	claims  *naming.CollisionResolver
	stopped atomic.Bool // a Cancel conflict decision was taken
	aborted atomic.Bool // an in-flight item was aborted by ctx

	mu    sync.Mutex
	stats RunStats
}

// Run processes every source in the tree and blocks until the batch is
// terminal. Cancelling ctx also aborts in-flight encodes; aborted items
// end Failed with detail "aborted".
//
// Misuse (ErrAlreadyRunning) returns without touching any state. Invalid
// options make the batch Fatal before anything is dispatched and return a
// *config.ValidationError with the Fatal report.
func (e *Encoder) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.State() == Running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.batchID = uuid.New()
	e.cancelled.Store(false)
	e.state.Store(int32(Running))
	r := &run{id: e.batchID, claims: naming.NewCollisionResolver()}
	e.mu.Unlock()

	items := e.tree.Flatten()
	r.stats.Total = len(items)

	if err := e.validate(); err != nil {
		e.log.Error("%v", err)
		e.finish(r, Fatal, err)
		return e.report(r, Fatal, items), err
	}

	for _, src := range items {
		src.Reset()
	}

	workers := min(config.ClampConcurrency(e.opts.Concurrency), max(len(items), 1))
	e.log.Info("Batch %s: %d file(s), %d worker(s), %s", r.id, len(items), workers, e.describeSettings())

	q := newQueue(items)
	var g errgroup.Group
	g.SetLimit(workers)
	for range workers {
		g.Go(func() error {
			for !e.stopRequested(ctx, r) {
				src, ok := q.pop()
				if !ok {
					return nil
				}
				e.process(ctx, r, src)
			}
			return nil
		})
	}
	_ = g.Wait()

	rest := q.drain()
	for _, src := range rest {
		e.finishItem(r, src, source.Skipped, source.Outcome{Detail: "cancelled"})
	}

	state := Completed
	var cause error
	if len(rest) > 0 || r.stopped.Load() || r.aborted.Load() {
		state = Cancelled
		cause = ctx.Err()
	}
	e.finish(r, state, cause)
	return e.report(r, state, items), nil
}

func (e *Encoder) stopRequested(ctx context.Context, r *run) bool {
	return ctx.Err() != nil || e.cancelled.Load() || r.stopped.Load()
}

func (e *Encoder) validate() error {
	if err := e.opts.Encode.Validate(); err != nil {
		return err
	}
	if !e.opts.FileExists.Valid() {
		return &config.ValidationError{Field: "exists", Message: fmt.Sprintf("unknown action %q", e.opts.FileExists)}
	}
	if e.opts.FileExists == config.ExistsAsk && e.deps.Resolver == nil {
		return &config.ValidationError{Field: "exists", Message: "ask needs a conflict resolver"}
	}
	if e.opts.Destination == "" {
		return &config.ValidationError{Field: "destination", Message: "must be set"}
	}
	if e.deps.Backend == nil && !e.opts.DryRun {
		return &config.ValidationError{Field: "backend", Message: "no encoder backend"}
	}
	return nil
}

func (e *Encoder) describeSettings() string {
	s := e.opts.Encode
	from := fmt.Sprintf("%g Hz", s.PitchFrom)
	if s.AutoDetectPitch {
		from = "detected"
	}
	desc := fmt.Sprintf("%s, %s -> %g Hz", s.Format, from, s.PitchTo)
	if e.opts.DryRun {
		desc += " [dry run]"
	}
	return desc
}

// finishItem moves src to a terminal state, records it and publishes the
// matching event.
func (e *Encoder) finishItem(r *run, src *source.AudioSource, st source.Status, o source.Outcome) {
	if !src.Finish(st, o) {
		return
	}
	r.mu.Lock()
	r.stats.add(st)
	r.mu.Unlock()

	kind := ItemCompleted
	switch st {
	case source.Failed:
		kind = ItemFailed
	case source.Skipped:
		kind = ItemSkipped
	}
	e.bus.Publish(Event{BatchID: r.id, Kind: kind, Source: src, Detail: o.Detail, Err: o.Err})
}

func (e *Encoder) finish(r *run, st State, err error) {
	kind := BatchCompleted
	switch st {
	case Cancelled:
		kind = BatchCancelled
	case Fatal:
		kind = BatchFatal
	}
	detail := st.String()
	if err != nil {
		detail = err.Error()
	}
	e.mu.Lock()
	e.state.Store(int32(st))
	e.mu.Unlock()
	e.bus.Publish(Event{BatchID: r.id, Kind: kind, Detail: detail, Err: err})
}

func (e *Encoder) report(r *run, st State, items []*source.AudioSource) *Report {
	rep := &Report{BatchID: r.id, State: st, DryRun: e.opts.DryRun}
	r.mu.Lock()
	rep.Stats = r.stats
	r.mu.Unlock()
	for _, src := range items {
		o := src.Outcome()
		rep.Items = append(rep.Items, ItemReport{
			Path:         src.Path,
			RelativePath: src.RelativePath,
			Status:       src.Status(),
			OutputPath:   o.OutputPath,
			Detail:       o.Detail,
			Err:          o.Err,
		})
	}
	return rep
}
