package planner

import "github.com/backmassage/retuner/internal/config"

// Param is one encoder option, rendered by the ffmpeg builder as "-Name Value".
type Param struct {
	Name  string
	Value string
}

// EncodePlan holds the complete set of decisions for converting a single
// audio file. It is produced by BuildPlan and consumed by the ffmpeg package
// to construct command arguments and by the retry engine for initial state.
type EncodePlan struct {
	InputPath  string
	OutputPath string

	Format config.Format
	Codec  string  // ffmpeg encoder, e.g. "libmp3lame"
	Params []Param // encoder options, already gated by Format

	// SampleRate is the output rate; 0 lets the encoder decide.
	SampleRate int
	SourceRate int

	// Pitch, tempo and rate.
	SourcePitch float64 // Hz, the pitch the ratio was computed from
	RawRatio    float64 // PitchTo / SourcePitch
	PitchRatio  float64 // RawRatio after optional rounding
	Speed       float64
	Rate        float64
	SkipTempo   bool

	// AntiAliasLength is the resampler filter length; 0 uses the default.
	AntiAliasLength int

	// Filters is the comma-joined -af chain.
	Filters string

	// Note is a human-readable summary for logs and dry runs.
	Note string
}

// Param returns the value of the named encoder option.
func (p *EncodePlan) Param(name string) (string, bool) {
	for _, o := range p.Params {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}
