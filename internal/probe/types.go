package probe

import "errors"

// ErrNoAudio is returned by [ProbeResult.Audio] when the file has no audio stream.
var ErrNoAudio = errors.New("no audio stream")

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64 // seconds
	Size       int64   // bytes
	BitRate    int64   // bits/sec
	Tags       map[string]string
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index         int
	Codec         string
	SampleFmt     string
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitRate       int64
	BitsPerSample int
	Duration      float64
	IsDefault     bool
}

// ProbeResult is the fully parsed output of a single ffprobe JSON call.
type ProbeResult struct {
	Format       FormatInfo
	AudioStreams []AudioStream
	HasCoverArt  bool
}

// AudioInfo is the flattened description of the primary audio stream, with
// container-level fallbacks applied. Zero values mean unknown.
type AudioInfo struct {
	Codec         string
	SampleRate    int
	Channels      int
	BitRate       int64 // bits/sec
	BitsPerSample int
	Duration      float64 // seconds
	Size          int64   // bytes
}

// Audio returns the primary audio stream: the first one flagged default,
// else the first. Bitrate and duration fall back to the format section
// when the stream does not report them.
func (p *ProbeResult) Audio() (AudioInfo, error) {
	if len(p.AudioStreams) == 0 {
		return AudioInfo{}, ErrNoAudio
	}
	s := p.AudioStreams[0]
	for _, a := range p.AudioStreams {
		if a.IsDefault {
			s = a
			break
		}
	}
	info := AudioInfo{
		Codec:         s.Codec,
		SampleRate:    s.SampleRate,
		Channels:      s.Channels,
		BitRate:       s.BitRate,
		BitsPerSample: s.BitsPerSample,
		Duration:      s.Duration,
		Size:          p.Format.Size,
	}
	// The format bitrate includes cover art and tags, but it is the only
	// figure for VBR MP3 and most Vorbis files. Only trust it for single-stream files.
	if info.BitRate <= 0 && len(p.AudioStreams) == 1 && !p.HasCoverArt {
		info.BitRate = p.Format.BitRate
	}
	if info.Duration <= 0 {
		info.Duration = p.Format.Duration
	}
	return info, nil
}
