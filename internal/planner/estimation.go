package planner

import (
	"strconv"
	"strings"

	"github.com/backmassage/retuner/internal/probe"
)

// SizeEstimate holds the estimated output size range for display.
type SizeEstimate struct {
	LowBytes  int64
	HighBytes int64
	Known     bool
}

// EstimateSize predicts the output file size of plan for a source with the
// given properties. The output runs for Duration / (Speed × Rate) seconds.
// PCM output is exact; bitrate targets get a range for VBR modes and FLAC
// uses typical lossless compression ratios. Unknown when the duration is
// unknown or the encoder picks its own bitrate.
func EstimateSize(plan *EncodePlan, src probe.AudioInfo) SizeEstimate {
	tempo := plan.Speed * plan.Rate
	if src.Duration <= 0 || !(tempo > 0) {
		return SizeEstimate{}
	}
	seconds := src.Duration / tempo

	channels := src.Channels
	if channels <= 0 {
		channels = 2
	}
	rate := plan.SampleRate
	if rate <= 0 {
		rate = plan.SourceRate
	}

	switch plan.Codec {
	case CodecFLAC:
		pcm := pcmBytes(seconds, rate, channels, flacBits(plan))
		return SizeEstimate{
			LowBytes:  pcm * 450 / 1000,
			HighBytes: pcm * 750 / 1000,
			Known:     true,
		}
	}
	if bits, ok := pcmBits[plan.Codec]; ok {
		pcm := pcmBytes(seconds, rate, channels, bits)
		return SizeEstimate{LowBytes: pcm, HighBytes: pcm, Known: true}
	}

	kbps := paramKbps(paramValue(plan, "b:a"))
	if kbps <= 0 {
		return SizeEstimate{}
	}
	exact := int64(float64(kbps) * 1000 / 8 * seconds)
	lowRatio, highRatio := int64(1000), int64(1000)
	if !constantBitrate(plan) {
		lowRatio, highRatio = 850, 1150
	}
	return SizeEstimate{
		LowBytes:  exact * lowRatio / 1000,
		HighBytes: exact * highRatio / 1000,
		Known:     true,
	}
}

// pcmBits maps the PCM encoders to their sample width.
var pcmBits = map[string]int{
	"pcm_u8":    8,
	"pcm_s16le": 16,
	"pcm_s24le": 24,
	"pcm_f32le": 32,
}

func pcmBytes(seconds float64, rate, channels, bits int) int64 {
	return int64(seconds * float64(rate) * float64(channels) * float64(bits) / 8)
}

func flacBits(plan *EncodePlan) int {
	if paramValue(plan, "sample_fmt") == "s16" {
		return 16
	}
	return 24
}

// constantBitrate reports whether the encoder was told to hold b:a exactly.
func constantBitrate(plan *EncodePlan) bool {
	switch plan.Codec {
	case CodecMP3:
		return paramValue(plan, "abr") == ""
	case CodecVorbis:
		return paramValue(plan, "minrate") != ""
	case CodecOpus:
		return paramValue(plan, "vbr") == "off"
	}
	return false
}

func paramValue(plan *EncodePlan, name string) string {
	v, _ := plan.Param(name)
	return v
}

// paramKbps parses "192k" style bitrates.
func paramKbps(v string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(v, "k"))
	if err != nil {
		return 0
	}
	return n
}
