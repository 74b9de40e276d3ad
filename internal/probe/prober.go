package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Probe runs a single ffprobe JSON call against path and returns the
// parsed result. bin is the ffprobe executable ("ffprobe" if empty).
func Probe(ctx context.Context, bin, path string) (*ProbeResult, error) {
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe %q: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	return ParseJSON(out)
}

// FFprobe adapts [Probe] to the per-file AudioInfo lookup used by the pipeline.
type FFprobe struct {
	Bin string
}

// AudioInfo probes path and returns its primary audio stream.
func (f FFprobe) AudioInfo(ctx context.Context, path string) (AudioInfo, error) {
	pr, err := Probe(ctx, f.Bin, path)
	if err != nil {
		return AudioInfo{}, err
	}
	info, err := pr.Audio()
	if err != nil {
		return AudioInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// ParseJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index            int            `json:"index"`
	CodecName        string         `json:"codec_name"`
	CodecType        string         `json:"codec_type"`
	SampleFmt        string         `json:"sample_fmt"`
	Channels         int            `json:"channels"`
	ChannelLayout    string         `json:"channel_layout"`
	SampleRate       string         `json:"sample_rate"`
	BitRate          string         `json:"bit_rate"`
	BitsPerSample    int            `json:"bits_per_sample"`
	BitsPerRawSample string         `json:"bits_per_raw_sample"`
	Duration         string         `json:"duration"`
	Disposition      map[string]int `json:"disposition"`
}

// --- Conversion from wire types to domain types ---

func buildResult(raw *ffprobeOutput) *ProbeResult {
	pr := &ProbeResult{
		Format: FormatInfo{
			Filename:   raw.Format.Filename,
			FormatName: raw.Format.FormatName,
			Duration:   parseFloat(raw.Format.Duration),
			Size:       parseInt64(raw.Format.Size),
			BitRate:    parseInt64(raw.Format.BitRate),
			Tags:       raw.Format.Tags,
		},
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "audio":
			pr.AudioStreams = append(pr.AudioStreams, convertAudio(s))
		case "video":
			if s.Disposition["attached_pic"] == 1 {
				pr.HasCoverArt = true
			}
		}
	}
	return pr
}

func convertAudio(s *ffprobeStream) AudioStream {
	bits := s.BitsPerSample
	if raw := parseInt(s.BitsPerRawSample); raw > 0 {
		bits = raw
	}
	return AudioStream{
		Index:         s.Index,
		Codec:         s.CodecName,
		SampleFmt:     s.SampleFmt,
		Channels:      s.Channels,
		ChannelLayout: s.ChannelLayout,
		SampleRate:    parseInt(s.SampleRate),
		BitRate:       parseInt64(s.BitRate),
		BitsPerSample: bits,
		Duration:      parseFloat(s.Duration),
		IsDefault:     s.Disposition["default"] == 1,
	}
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
