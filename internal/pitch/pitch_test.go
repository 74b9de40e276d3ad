package pitch

import (
	"context"
	"errors"
	"math"
	"testing"
)

func sine(freq float64, sampleRate int, seconds float64, amp float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestDetectPitch_Sine(t *testing.T) {
	tests := []struct {
		name string
		freq float64
		rate int
		tol  float64
	}{
		{"A4 at analysis rate", 440, 11025, 1},
		{"432 at 44.1k", 432, 44100, 2},
		{"1 kHz at 44.1k", 1000, 44100, 5},
		{"low E at 48k", 82.41, 48000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectPitch(sine(tt.freq, tt.rate, 2, 0.5), tt.rate)
			if err != nil {
				t.Fatalf("DetectPitch: %v", err)
			}
			if math.Abs(got-tt.freq) > tt.tol {
				t.Errorf("DetectPitch = %.3f Hz, want %.2f ± %.1f", got, tt.freq, tt.tol)
			}
		})
	}
}

func TestDetectPitch_Deterministic(t *testing.T) {
	samples := sine(440, 11025, 3, 0.8)
	// Add a quieter overtone so the spectrum is not trivial.
	for i, v := range sine(1320, 11025, 3, 0.2) {
		samples[i] += v
	}
	a, err := DetectPitch(samples, 11025)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DetectPitch(samples, 11025)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("DetectPitch not deterministic: %v vs %v", a, b)
	}
	if math.Abs(a-440) > 1 {
		t.Errorf("DetectPitch = %.3f, want the louder 440 Hz partial", a)
	}
}

func TestDetectPitch_IgnoresSilentFrames(t *testing.T) {
	samples := make([]float64, 11025*2)
	copy(samples[11025:], sine(440, 11025, 1, 0.5))
	got, err := DetectPitch(samples, 11025)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-440) > 1 {
		t.Errorf("DetectPitch = %.3f, want 440", got)
	}
}

func TestDetectPitch_Insufficient(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
	}{
		{"empty", nil},
		{"shorter than a frame", sine(440, 11025, 0.1, 0.5)},
		{"all silence", make([]float64, FrameSize*4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectPitch(tt.samples, 11025)
			if !errors.Is(err, ErrInsufficientAudio) {
				t.Errorf("err = %v, want ErrInsufficientAudio", err)
			}
		})
	}
}

func TestDetectPitch_BadRate(t *testing.T) {
	if _, err := DetectPitch(make([]float64, FrameSize), 0); err == nil {
		t.Error("DetectPitch accepted sample rate 0")
	}
}

func TestTuningReference(t *testing.T) {
	semitone := math.Pow(2, 1.0/12)
	tests := []struct {
		name string
		freq float64
		want float64
	}{
		{"A4 standard", 440, 440},
		{"A5 standard", 880, 440},
		{"A#4 standard", 440 * semitone, 440},
		{"C4 standard", 440 * math.Pow(2, -9.0/12), 440},
		{"A4 at 432", 432, 432},
		{"A3 at 432", 216, 432},
		{"E5 at 432", 432 * math.Pow(2, 7.0/12), 432},
		{"A4 at 444", 444, 444},
		{"invalid input", 0, ConcertA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TuningReference(tt.freq); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("TuningReference(%g) = %.6f, want %.6f", tt.freq, got, tt.want)
			}
		})
	}
}

func TestTuningReference_Range(t *testing.T) {
	for f := 30.0; f < 5000; f *= 1.013 {
		got := TuningReference(f)
		if got < 427.4 || got > 452.9 {
			t.Fatalf("TuningReference(%g) = %g, outside ±50 cents of 440", f, got)
		}
	}
}

type fakeDecoder struct {
	samples []float64
	err     error
	gotRate int
}

func (f *fakeDecoder) DecodeMono(_ context.Context, _ string, sampleRate int, _ float64) ([]float64, error) {
	f.gotRate = sampleRate
	return f.samples, f.err
}

func TestDetector_DetectFile(t *testing.T) {
	// C#5 in a 432 Hz tuning: the folded reference should land on 432.
	dec := &fakeDecoder{samples: sine(432*math.Pow(2, 4.0/12), DefaultAnalysisRate, 2, 0.5)}
	d := NewDetector(dec)
	got, err := d.DetectFile(context.Background(), "song.flac")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-432) > 1 {
		t.Errorf("DetectFile = %.3f, want ~432", got)
	}
	if dec.gotRate != DefaultAnalysisRate {
		t.Errorf("decode rate = %d, want %d", dec.gotRate, DefaultAnalysisRate)
	}
}

func TestDetector_Errors(t *testing.T) {
	decodeErr := errors.New("corrupt")
	d := &Detector{Decoder: &fakeDecoder{err: decodeErr}}
	if _, err := d.DetectFile(context.Background(), "bad.mp3"); !errors.Is(err, decodeErr) {
		t.Errorf("decode failure: err = %v", err)
	}

	d = &Detector{Decoder: &fakeDecoder{samples: make([]float64, 100)}}
	if _, err := d.DetectFile(context.Background(), "short.mp3"); !errors.Is(err, ErrInsufficientAudio) {
		t.Errorf("short input: err = %v", err)
	}
}
