package planner

import "github.com/backmassage/retuner/internal/config"

// DefaultSourceRate is assumed when the source sample rate is unknown.
const DefaultSourceRate = 44100

// Sample rates accepted by the fixed-rate encoders.
var (
	mp3Rates  = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}
	aacRates  = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000, 64000, 88200, 96000}
	opusRates = []int{8000, 12000, 16000, 24000, 48000}

	// Offered for WAV, FLAC and OGG, which accept any rate.
	commonRates = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}
)

// SupportedSampleRates lists the output sample rates offered for f, in
// ascending order. The slice is shared; do not modify it.
func SupportedSampleRates(f config.Format) []int {
	switch f {
	case config.FormatMP3:
		return mp3Rates
	case config.FormatAAC:
		return aacRates
	case config.FormatOpus:
		return opusRates
	default:
		return commonRates
	}
}

// fixedRates reports whether f only accepts the rates in SupportedSampleRates.
func fixedRates(f config.Format) bool {
	switch f {
	case config.FormatMP3, config.FormatAAC, config.FormatOpus:
		return true
	}
	return false
}

// NearestSampleRate returns the rate in rates closest to hz. Ties go to the
// higher rate so that no bandwidth is lost.
func NearestSampleRate(hz int, rates []int) int {
	if len(rates) == 0 {
		return hz
	}
	best := rates[0]
	for _, r := range rates[1:] {
		if abs(r-hz) <= abs(best-hz) {
			best = r
		}
	}
	return best
}

// outputRate picks the output sample rate: the requested rate, else the
// source's, snapped to what the format accepts.
func outputRate(f config.Format, requested, source int) int {
	rate := requested
	if rate <= 0 {
		rate = source
	}
	if rate <= 0 {
		rate = DefaultSourceRate
	}
	if fixedRates(f) {
		return NearestSampleRate(rate, SupportedSampleRates(f))
	}
	return rate
}

// bitrateRange is the accepted range in kbps for each lossy format.
type bitrateRange struct{ min, max int }

var bitrateRanges = map[config.Format]bitrateRange{
	config.FormatMP3:  {32, 320},
	config.FormatAAC:  {32, 512},
	config.FormatOGG:  {45, 500},
	config.FormatOpus: {6, 510},
}

// Bitrates offered for lossy formats; 0 means "same as source".
var Bitrates = []int{0, 96, 128, 192, 256, 320}

// resolveBitrate returns the bitrate in kbps to request, or 0 to let the
// encoder choose. Zero in settings means the source bitrate, clamped to the
// format's range; unknown source bitrate yields 0.
func resolveBitrate(f config.Format, kbps int, sourceBps int64) int {
	if kbps <= 0 {
		kbps = int(sourceBps / 1000)
	}
	if kbps <= 0 {
		return 0
	}
	r, ok := bitrateRanges[f]
	if !ok {
		return kbps
	}
	return clamp(kbps, r.min, r.max)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
