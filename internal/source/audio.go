package source

import (
	"math"
	"sync/atomic"
)

// Status is the lifecycle state of one AudioSource.
type Status int32

const (
	Pending Status = iota
	Running
	Completed
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether s is Completed, Failed or Skipped.
func (s Status) Terminal() bool { return s >= Completed }

// Outcome is the result detail of a finished item.
type Outcome struct {
	OutputPath string
	Detail     string // human-readable cause or note
	Err        error
}

// AudioSource is one unit of work: one input file, one eventual output.
type AudioSource struct {
	Path         string // absolute input path
	RelativePath string // "<folder>/<rel>" for folder children, empty for single files

	status   atomic.Int32
	pitch    atomic.Uint64 // float64 bits, 0 = unset
	detected atomic.Uint64
	outcome  atomic.Pointer[Outcome]
}

// NewAudioSource returns a Pending source.
func NewAudioSource(path, rel string) *AudioSource {
	return &AudioSource{Path: path, RelativePath: rel}
}

// Status returns the current state.
func (s *AudioSource) Status() Status { return Status(s.status.Load()) }

// Outcome returns the detail published by Finish. It is the zero value
// until the source reaches a terminal state.
func (s *AudioSource) Outcome() Outcome {
	if o := s.outcome.Load(); o != nil {
		return *o
	}
	return Outcome{}
}

// SetPitch sets a manual source pitch in Hz that wins over detection.
// Values <= 0 clear it.
func (s *AudioSource) SetPitch(hz float64) { storeHz(&s.pitch, hz) }

// Pitch returns the manual override, if set.
func (s *AudioSource) Pitch() (float64, bool) { return loadHz(&s.pitch) }

// SetDetectedPitch records a detection result. Values <= 0 clear it.
func (s *AudioSource) SetDetectedPitch(hz float64) { storeHz(&s.detected, hz) }

// DetectedPitch returns the pre-filled detection result, if any.
func (s *AudioSource) DetectedPitch() (float64, bool) { return loadHz(&s.detected) }

// Reset returns the source to Pending and clears its outcome. Called when
// a new batch starts.
func (s *AudioSource) Reset() {
	s.outcome.Store(nil)
	s.status.Store(int32(Pending))
}

// Start moves a Pending source to Running. It returns false if the source
// was not Pending.
func (s *AudioSource) Start() bool {
	return s.status.CompareAndSwap(int32(Pending), int32(Running))
}

// Finish publishes o and moves the source to the terminal state st. A
// source that is already terminal is left untouched and Finish returns
// false.
func (s *AudioSource) Finish(st Status, o Outcome) bool {
	if !st.Terminal() {
		return false
	}
	for {
		cur := Status(s.status.Load())
		if cur.Terminal() {
			return false
		}
		// The outcome is stored before the status so a reader that sees
		// the terminal status also sees its detail.
		s.outcome.Store(&o)
		if s.status.CompareAndSwap(int32(cur), int32(st)) {
			return true
		}
	}
}

func storeHz(v *atomic.Uint64, hz float64) {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		v.Store(0)
		return
	}
	v.Store(math.Float64bits(hz))
}

func loadHz(v *atomic.Uint64) (float64, bool) {
	b := v.Load()
	if b == 0 {
		return 0, false
	}
	return math.Float64frombits(b), true
}
