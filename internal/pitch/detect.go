package pitch

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analysis constants.
const (
	FrameSize = 4096
	HopSize   = FrameSize / 2
	MinFreq   = 20.0
	MaxFreq   = 5000.0

	// Frames quieter than this RMS (full scale = 1.0, about -60 dBFS) are
	// treated as silence and skipped.
	silenceRMS = 1e-3
)

// ErrInsufficientAudio is returned when there are fewer samples than one
// analysis frame, or no frame rises above the silence floor.
var ErrInsufficientAudio = errors.New("insufficient audio data")

var window = sync.OnceValue(func() []float64 { return hann(FrameSize) })

// DetectPitch returns the dominant frequency in Hz of mono samples in
// [-1, 1] at sampleRate. The result is always positive.
func DetectPitch(samples []float64, sampleRate int) (float64, error) {
	peaks, err := framePeaks(samples, sampleRate)
	if err != nil {
		return 0, err
	}
	return median(peaks), nil
}

// framePeaks returns the refined peak frequency of every voiced frame.
func framePeaks(samples []float64, sampleRate int) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(samples) < FrameSize {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientAudio, len(samples), FrameSize)
	}

	binHz := float64(sampleRate) / FrameSize
	lo := max(1, int(math.Ceil(MinFreq/binHz)))
	hi := min(int(math.Floor(MaxFreq/binHz)), FrameSize/2-1)
	if lo > hi {
		return nil, fmt.Errorf("%w: sample rate %d leaves no bins in range", ErrInsufficientAudio, sampleRate)
	}

	win := window()
	fft := fourier.NewFFT(FrameSize)
	buf := make([]float64, FrameSize)
	var coeffs []complex128
	frames := 1 + (len(samples)-FrameSize)/HopSize
	peaks := make([]float64, 0, frames)

	for i := 0; i < frames; i++ {
		frame := samples[i*HopSize : i*HopSize+FrameSize]
		if rms(frame) < silenceRMS {
			continue
		}
		for k, v := range frame {
			buf[k] = v * win[k]
		}
		coeffs = fft.Coefficients(coeffs, buf)

		best := lo
		for k := lo + 1; k <= hi; k++ {
			if cmplx.Abs(coeffs[k]) > cmplx.Abs(coeffs[best]) {
				best = k
			}
		}
		if cmplx.Abs(coeffs[best]) == 0 {
			continue
		}
		peaks = append(peaks, (float64(best)+refine(coeffs, best))*binHz)
	}

	if len(peaks) == 0 {
		return nil, fmt.Errorf("%w: no frame above the silence floor", ErrInsufficientAudio)
	}
	return peaks, nil
}

// refine returns the sub-bin offset in [-0.5, 0.5] of the vertex of the
// parabola through the log magnitudes at k-1, k and k+1.
func refine(coeffs []complex128, k int) float64 {
	const floor = 1e-12
	a := math.Log(cmplx.Abs(coeffs[k-1]) + floor)
	b := math.Log(cmplx.Abs(coeffs[k]) + floor)
	c := math.Log(cmplx.Abs(coeffs[k+1]) + floor)
	den := a - 2*b + c
	if den == 0 {
		return 0
	}
	d := 0.5 * (a - c) / den
	return math.Max(-0.5, math.Min(0.5, d))
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// median of a non-empty slice; xs is left untouched.
func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
