package pitch

import (
	"context"
	"fmt"
)

// Defaults for file analysis. 11025 Hz keeps the 5 kHz band below Nyquist
// while quartering the work of a 44.1 kHz decode.
const (
	DefaultAnalysisRate = 11025
	DefaultMaxSeconds   = 120
)

// Decoder yields mono float samples in [-1, 1] from an audio file.
type Decoder interface {
	DecodeMono(ctx context.Context, path string, sampleRate int, maxSeconds float64) ([]float64, error)
}

// Detector runs tuning analysis on files. It holds no per-call state and is
// safe for concurrent use if its Decoder is.
type Detector struct {
	Decoder    Decoder
	SampleRate int     // Analysis rate; DefaultAnalysisRate if zero.
	MaxSeconds float64 // Decode at most this much audio; DefaultMaxSeconds if zero.
}

// NewDetector returns a Detector with the default analysis settings.
func NewDetector(dec Decoder) *Detector {
	return &Detector{Decoder: dec, SampleRate: DefaultAnalysisRate, MaxSeconds: DefaultMaxSeconds}
}

// DetectFile returns the tuning reference of the recording at path: the
// median of every voiced frame's [TuningReference]. Decode failures are
// returned as the Decoder reports them; analysis failures wrap
// [ErrInsufficientAudio].
func (d *Detector) DetectFile(ctx context.Context, path string) (float64, error) {
	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultAnalysisRate
	}
	maxSec := d.MaxSeconds
	if maxSec <= 0 {
		maxSec = DefaultMaxSeconds
	}

	samples, err := d.Decoder.DecodeMono(ctx, path, rate, maxSec)
	if err != nil {
		return 0, err
	}
	peaks, err := framePeaks(samples, rate)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i, f := range peaks {
		peaks[i] = TuningReference(f)
	}
	return median(peaks), nil
}
