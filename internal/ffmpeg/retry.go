package ffmpeg

import "github.com/backmassage/retuner/internal/planner"

// RetryAction identifies which fix was applied (or none).
type RetryAction int

const (
	RetryNone           RetryAction = iota
	RetryNoRubberband               // Replace rubberband with the asetrate/atempo chain.
	RetryDropSampleRate             // Omit -ar and let the encoder pick.
	RetryDropBitrate                // Omit bitrate options.
	RetryDropSampleFmt              // Omit -sample_fmt and -bits_per_raw_sample.
)

func (a RetryAction) String() string {
	switch a {
	case RetryNoRubberband:
		return "rubberband unavailable, using resample chain"
	case RetryDropSampleRate:
		return "sample rate rejected, using encoder default"
	case RetryDropBitrate:
		return "bitrate rejected, using encoder default"
	case RetryDropSampleFmt:
		return "sample format rejected, using encoder default"
	}
	return "none"
}

const maxAttempts = 5

// RetryState tracks which fallback fixes have been applied across ffmpeg
// retry attempts for a single file.
type RetryState struct {
	Attempt     int
	MaxAttempts int

	Filters    string
	Rubberband bool
	SampleRate int // 0 = omit -ar
	Params     []planner.Param

	plan *planner.EncodePlan
}

// NewRetryState initializes a RetryState from the plan's initial values.
func NewRetryState(plan *planner.EncodePlan) *RetryState {
	return &RetryState{
		MaxAttempts: maxAttempts,
		Filters:     plan.Filters,
		Rubberband:  plan.SkipTempo,
		SampleRate:  plan.SampleRate,
		Params:      append([]planner.Param(nil), plan.Params...),
		plan:        plan,
	}
}

// Advance inspects stderr from a failed ffmpeg run, finds the first matching
// error pattern whose fix has not yet been applied, applies that fix, and
// returns the action taken. Returns RetryNone when no fixable pattern matches
// or the attempt limit is reached.
//
// Pattern evaluation order: rubberband → sample rate → bitrate → sample format.
// Only one fix is applied per call (one fix per retry attempt).
func (s *RetryState) Advance(stderr string) RetryAction {
	s.Attempt++
	if s.Attempt >= s.MaxAttempts {
		return RetryNone
	}

	if s.Rubberband && MatchRubberbandMissing(stderr) {
		s.Rubberband = false
		p := *s.plan
		if s.SampleRate == 0 {
			p.SampleRate = p.SourceRate
		}
		s.Filters = planner.ResampleChain(&p)
		return RetryNoRubberband
	}
	if s.SampleRate != 0 && MatchSampleRateIssue(stderr) {
		// Keep the source rate end to end so the filter graph does not
		// hand the encoder the rejected rate either.
		p := *s.plan
		p.SampleRate = p.SourceRate
		p.SkipTempo = s.Rubberband
		s.Filters = planner.BuildFilterChain(&p)
		s.SampleRate = 0
		return RetryDropSampleRate
	}
	if s.has("b:a") && MatchBitrateIssue(stderr) {
		s.drop("b:a", "minrate", "maxrate", "abr")
		return RetryDropBitrate
	}
	if s.has("sample_fmt") && MatchSampleFmtIssue(stderr) {
		s.drop("sample_fmt", "bits_per_raw_sample")
		return RetryDropSampleFmt
	}

	return RetryNone
}

func (s *RetryState) has(name string) bool {
	for _, p := range s.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (s *RetryState) drop(names ...string) {
	kept := s.Params[:0]
	for _, p := range s.Params {
		drop := false
		for _, n := range names {
			if p.Name == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, p)
		}
	}
	s.Params = kept
}
