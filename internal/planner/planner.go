package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/probe"
)

// BuildPlan produces a complete EncodePlan from the batch settings, the
// pitch of this particular file, and its probed audio properties. This is
// the derivation the pipeline calls for every file. InputPath and
// OutputPath are left for the caller.
//
// Flow:
//  1. Pitch ratio = PitchTo / sourcePitch, snapped by rounder when RoundPitch is set
//  2. Output sample rate (requested or source, snapped to the format)
//  3. Encoder and format-gated options
//  4. Filter chain for pitch, rate and tempo
//
// sourcePitch outside [1, 10000] (including 0 for "unknown") falls back to
// s.PitchFrom. A nil rounder uses DefaultFractions.
func BuildPlan(s config.EncodeSettings, sourcePitch float64, src probe.AudioInfo, rounder Rounder) *EncodePlan {
	if !(sourcePitch >= config.PitchMin && sourcePitch <= config.PitchMax) {
		sourcePitch = s.PitchFrom
	}
	if rounder == nil {
		rounder = DefaultFractions
	}

	plan := &EncodePlan{
		Format:      s.Format,
		SourceRate:  src.SampleRate,
		SourcePitch: sourcePitch,
		Speed:       s.Speed,
		Rate:        s.Rate,
		SkipTempo:   s.SkipTempo,
	}
	if plan.SourceRate <= 0 {
		plan.SourceRate = DefaultSourceRate
	}

	// --- 1. Pitch ratio ---
	plan.RawRatio = s.PitchTo / sourcePitch
	plan.PitchRatio = plan.RawRatio
	if s.RoundPitch {
		plan.PitchRatio = rounder.Round(plan.RawRatio)
	}

	// --- 2. Sample rate ---
	plan.SampleRate = outputRate(s.Format, s.SampleRate, src.SampleRate)

	// --- 3. Encoder ---
	plan.Codec, plan.Params = encoderParams(&s, src)

	// --- 4. Filters ---
	if s.AntiAlias {
		plan.AntiAliasLength = s.AntiAliasLength
	}
	plan.Filters = BuildFilterChain(plan)

	plan.Note = describe(plan)
	return plan
}

// describe summarizes the plan for logs, e.g.
// "440.00 Hz → ×0.981818 (54/55), flac 48000 Hz, compression_level=8 sample_fmt=s16".
func describe(p *EncodePlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.2f Hz → ×%s", p.SourcePitch, formatFloat(p.PitchRatio))
	if f, ok := DefaultFractions.Nearest(p.PitchRatio); ok && math.Abs(f.Value()-p.PitchRatio) < ratioEpsilon {
		fmt.Fprintf(&b, " (%s)", f)
	}
	if !unity(p.Speed) {
		fmt.Fprintf(&b, ", speed ×%s", formatFloat(p.Speed))
	}
	if !unity(p.Rate) {
		fmt.Fprintf(&b, ", rate ×%s", formatFloat(p.Rate))
	}
	if p.SkipTempo {
		b.WriteString(", rubberband")
	}
	fmt.Fprintf(&b, ", %s %d Hz", p.Format, p.SampleRate)
	for _, o := range p.Params {
		fmt.Fprintf(&b, " %s=%s", o.Name, o.Value)
	}
	return b.String()
}
