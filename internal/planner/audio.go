package planner

import (
	"strconv"

	"github.com/backmassage/retuner/internal/config"
	"github.com/backmassage/retuner/internal/probe"
)

// Encoder names per format.
const (
	CodecMP3    = "libmp3lame"
	CodecAAC    = "aac"
	CodecFLAC   = "flac"
	CodecVorbis = "libvorbis"
	CodecOpus   = "libopus"
)

// wavCodecs maps bits per sample to the PCM encoder.
var wavCodecs = map[int]string{
	8:  "pcm_u8",
	16: "pcm_s16le",
	24: "pcm_s24le",
	32: "pcm_f32le",
}

// encoderParams picks the encoder and its options for s.Format. Options that
// do not apply to the format are never emitted.
func encoderParams(s *config.EncodeSettings, src probe.AudioInfo) (string, []Param) {
	var params []Param
	add := func(name, value string) { params = append(params, Param{name, value}) }

	switch s.Format {
	case config.FormatMP3:
		add("compression_level", strconv.Itoa(s.Mp3QualitySpeed()))
		if kbps := resolveBitrate(s.Format, s.Bitrate, src.BitRate); kbps > 0 {
			add("b:a", strconv.Itoa(kbps)+"k")
			if !s.FixedBitrate {
				add("abr", "1")
			}
		}
		return CodecMP3, params

	case config.FormatAAC:
		if kbps := resolveBitrate(s.Format, s.Bitrate, src.BitRate); kbps > 0 {
			add("b:a", strconv.Itoa(kbps)+"k")
		}
		return CodecAAC, params

	case config.FormatOGG:
		if kbps := resolveBitrate(s.Format, s.Bitrate, src.BitRate); kbps > 0 {
			rate := strconv.Itoa(kbps) + "k"
			add("b:a", rate)
			if s.FixedBitrate {
				add("minrate", rate)
				add("maxrate", rate)
			}
		}
		return CodecVorbis, params

	case config.FormatOpus:
		if kbps := resolveBitrate(s.Format, s.Bitrate, src.BitRate); kbps > 0 {
			add("b:a", strconv.Itoa(kbps)+"k")
		}
		if s.FixedBitrate {
			add("vbr", "off")
		} else {
			add("vbr", "on")
		}
		return CodecOpus, params

	case config.FormatWAV:
		return wavCodecs[bitDepth(s.BitsPerSample, src)], nil

	case config.FormatFLAC:
		add("compression_level", strconv.Itoa(s.FlacCompression()))
		// The FLAC encoder takes 16-bit or 32-bit containers; deeper
		// sources are written as 24-bit.
		if bitDepth(s.BitsPerSample, src) <= 16 {
			add("sample_fmt", "s16")
		} else {
			add("sample_fmt", "s32")
			add("bits_per_raw_sample", "24")
		}
		return CodecFLAC, params
	}
	return "", nil
}

// bitDepth resolves BitsPerSample 0 to the source depth, defaulting to 16
// and rounding odd depths up to the next supported one.
func bitDepth(bits int, src probe.AudioInfo) int {
	if bits == 0 {
		bits = src.BitsPerSample
	}
	switch {
	case bits <= 0:
		return 16
	case bits <= 8:
		return 8
	case bits <= 16:
		return 16
	case bits <= 24:
		return 24
	default:
		return 32
	}
}
