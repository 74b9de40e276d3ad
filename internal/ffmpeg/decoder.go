package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os/exec"
	"strconv"
)

// Decoder decodes audio files to mono float PCM with the ffmpeg CLI.
type Decoder struct {
	Bin string // ffmpeg executable; "ffmpeg" if empty
}

// DecodeMono returns up to maxSeconds (0 = all) of path as mono samples in
// [-1, 1] at sampleRate. Failures are *DecodeError.
func (d Decoder) DecodeMono(ctx context.Context, path string, sampleRate int, maxSeconds float64) ([]float64, error) {
	bin := d.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if maxSeconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(maxSeconds, 'f', -1, 64))
	}
	args = append(args,
		"-i", path,
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &DecodeError{Path: path, Stderr: stderr.String(), Err: err}
	}

	samples := PCMFloat32(stdout.Bytes())
	if len(samples) == 0 {
		return nil, &DecodeError{Path: path, Stderr: stderr.String(), Err: errors.New("no audio decoded")}
	}
	return samples, nil
}

// PCMFloat32 converts little-endian f32 PCM to float64 samples. A trailing
// partial sample is ignored.
func PCMFloat32(raw []byte) []float64 {
	n := len(raw) / 4
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return out
}
