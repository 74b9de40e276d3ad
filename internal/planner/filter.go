package planner

import (
	"math"
	"strconv"
	"strings"
)

// ratioEpsilon is the distance from 1 below which a ratio is treated as unity.
const ratioEpsilon = 1e-9

// BuildFilterChain returns the comma-joined -af chain for p. With SkipTempo
// the rubberband filter shifts pitch while keeping duration and formants;
// otherwise see [ResampleChain]. Returns "" when nothing needs changing.
func BuildFilterChain(p *EncodePlan) string {
	if !p.SkipTempo {
		return ResampleChain(p)
	}
	pitch := p.PitchRatio * p.Rate
	tempo := p.Speed * p.Rate
	var filters []string
	if !unity(pitch) || !unity(tempo) {
		filters = append(filters, "rubberband=pitch="+formatFloat(pitch)+
			":tempo="+formatFloat(tempo)+":formant=preserved")
	}
	if f := resampleFilter(p, p.SampleRate != p.SourceRate); f != "" {
		filters = append(filters, f)
	}
	return strings.Join(filters, ",")
}

// ResampleChain applies pitch and rate by reinterpreting the sample rate
// (asetrate) and resampling back (aresample), then restores the intended
// tempo with atempo. Pitch ends up multiplied by PitchRatio*Rate and tempo
// by Speed*Rate. It is also the fallback when rubberband is unavailable.
func ResampleChain(p *EncodePlan) string {
	src := p.SourceRate
	if src <= 0 {
		src = DefaultSourceRate
	}
	shift := p.PitchRatio * p.Rate

	var filters []string
	if !unity(shift) {
		filters = append(filters, "asetrate="+strconv.Itoa(int(math.Round(float64(src)*shift))))
	}
	if f := resampleFilter(p, !unity(shift) || p.SampleRate != src); f != "" {
		filters = append(filters, f)
	}
	filters = append(filters, atempoChain(p.Speed/p.PitchRatio)...)
	return strings.Join(filters, ",")
}

// resampleFilter returns the aresample stage, or "" when not needed. With
// anti-aliasing on it carries the configured filter length.
func resampleFilter(p *EncodePlan, needed bool) string {
	if !needed {
		return ""
	}
	out := p.SampleRate
	if out <= 0 {
		out = p.SourceRate
	}
	if out <= 0 {
		out = DefaultSourceRate
	}
	f := "aresample=" + strconv.Itoa(out)
	if p.AntiAliasLength > 0 {
		f += ":filter_size=" + strconv.Itoa(p.AntiAliasLength)
	}
	return f
}

// atempoChain splits factor into atempo stages within [0.5, 2], the range
// every ffmpeg version accepts.
func atempoChain(factor float64) []string {
	if unity(factor) || !(factor > 0) {
		return nil
	}
	var out []string
	for factor > 2 {
		out = append(out, "atempo=2")
		factor /= 2
	}
	for factor < 0.5 {
		out = append(out, "atempo=0.5")
		factor /= 0.5
	}
	if !unity(factor) {
		out = append(out, "atempo="+formatFloat(factor))
	}
	return out
}

func unity(v float64) bool { return math.Abs(v-1) < ratioEpsilon }

// formatFloat renders v with at most six decimals and no trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}
