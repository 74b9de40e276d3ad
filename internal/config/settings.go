package config

import (
	"fmt"
	"strings"
)

// Format is the target audio encoding format.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatAAC  Format = "aac" // AAC in an M4A container.
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg" // Vorbis in an Ogg container.
	FormatOpus Format = "opus"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatMP3, FormatAAC, FormatWAV, FormatFLAC, FormatOGG, FormatOpus}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}

// Extension returns the output file extension with leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatAAC:
		return ".m4a"
	case "":
		return ""
	default:
		return "." + string(f)
	}
}

// UsesBitrate reports whether Bitrate/FixedBitrate apply to f.
func (f Format) UsesBitrate() bool {
	switch f {
	case FormatMP3, FormatAAC, FormatOGG, FormatOpus:
		return true
	}
	return false
}

// UsesBitsPerSample reports whether BitsPerSample applies to f.
func (f Format) UsesBitsPerSample() bool {
	return f == FormatWAV || f == FormatFLAC
}

// Pitch bounds shared by PitchFrom and PitchTo.
const (
	PitchMin = 1.0
	PitchMax = 10000.0
)

// Anti-alias filter length bounds.
const (
	AntiAliasLengthMin = 8
	AntiAliasLengthMax = 128
)

// QualityOrSpeed bounds. 0 = fastest, 5 = best quality.
const (
	QualityOrSpeedMin = 0
	QualityOrSpeedMax = 5
)

// EncodeSettings holds the user's encoding intent. It is read-only while a
// batch runs; per-file values (detected pitch) are applied to a copy.
type EncodeSettings struct {
	Format          Format  `toml:"format"`
	Bitrate         int     `toml:"bitrate"` // kbps; 0 = use source.
	FixedBitrate    bool    `toml:"fixed_bitrate"`
	BitsPerSample   int     `toml:"bits_per_sample"` // 0 (source), 8, 16, 24 or 32. WAV/FLAC only.
	SampleRate      int     `toml:"sample_rate"`     // Hz; 0 = use source.
	AntiAlias       bool    `toml:"anti_alias"`
	AntiAliasLength int     `toml:"anti_alias_length"` // 8–128.
	Speed           float64 `toml:"speed"`             // Tempo multiplier, > 0.
	Rate            float64 `toml:"rate"`              // Playback rate multiplier, > 0.
	PitchFrom       float64 `toml:"pitch_from"`        // Hz, [1, 10000].
	PitchTo         float64 `toml:"pitch_to"`          // Hz, [1, 10000].
	AutoDetectPitch bool    `toml:"auto_detect_pitch"`
	QualityOrSpeed  int     `toml:"quality"` // 0–5.
	RoundPitch      bool    `toml:"round_pitch"`
	SkipTempo       bool    `toml:"skip_tempo"`
}

// DefaultEncodeSettings returns the baseline settings: MP3, 440 Hz → 432 Hz
// with auto-detection, best quality.
func DefaultEncodeSettings() EncodeSettings {
	return EncodeSettings{
		Format:          FormatMP3,
		BitsPerSample:   16,
		AntiAliasLength: 32,
		Speed:           1,
		Rate:            1,
		PitchFrom:       440,
		PitchTo:         432,
		AutoDetectPitch: true,
		QualityOrSpeed:  5,
		RoundPitch:      true,
	}
}

// Pitch returns the multiplicative pitch-shift ratio PitchTo / PitchFrom.
func (s *EncodeSettings) Pitch() float64 {
	return s.PitchTo / s.PitchFrom
}

// SetPitchFrom sets the source pitch after range validation.
func (s *EncodeSettings) SetPitchFrom(hz float64) error {
	if err := checkPitch("pitch_from", hz); err != nil {
		return err
	}
	s.PitchFrom = hz
	return nil
}

// SetPitchTo sets the target pitch after range validation.
func (s *EncodeSettings) SetPitchTo(hz float64) error {
	if err := checkPitch("pitch_to", hz); err != nil {
		return err
	}
	s.PitchTo = hz
	return nil
}

// SetSpeed sets the tempo multiplier; it must be strictly positive.
func (s *EncodeSettings) SetSpeed(v float64) error {
	if err := checkPositive("speed", v); err != nil {
		return err
	}
	s.Speed = v
	return nil
}

// SetRate sets the playback rate multiplier; it must be strictly positive.
func (s *EncodeSettings) SetRate(v float64) error {
	if err := checkPositive("rate", v); err != nil {
		return err
	}
	s.Rate = v
	return nil
}

// Validate checks every invariant and returns the first violation as a
// *ValidationError.
func (s *EncodeSettings) Validate() error {
	if !s.Format.Valid() {
		return &ValidationError{Field: "format", Message: fmt.Sprintf("unknown format %q (use %s)", s.Format, formatList())}
	}
	if s.Bitrate < 0 {
		return &ValidationError{Field: "bitrate", Message: "must not be negative"}
	}
	if s.SampleRate < 0 {
		return &ValidationError{Field: "sample_rate", Message: "must not be negative"}
	}
	switch s.BitsPerSample {
	case 0, 8, 16, 24, 32:
	default:
		return &ValidationError{Field: "bits_per_sample", Message: fmt.Sprintf("%d is not one of 0, 8, 16, 24, 32", s.BitsPerSample)}
	}
	if s.AntiAliasLength < AntiAliasLengthMin || s.AntiAliasLength > AntiAliasLengthMax {
		return &ValidationError{Field: "anti_alias_length", Message: fmt.Sprintf("%d is outside [%d, %d]", s.AntiAliasLength, AntiAliasLengthMin, AntiAliasLengthMax)}
	}
	if err := checkPositive("speed", s.Speed); err != nil {
		return err
	}
	if err := checkPositive("rate", s.Rate); err != nil {
		return err
	}
	if err := checkPitch("pitch_from", s.PitchFrom); err != nil {
		return err
	}
	if err := checkPitch("pitch_to", s.PitchTo); err != nil {
		return err
	}
	if s.QualityOrSpeed < QualityOrSpeedMin || s.QualityOrSpeed > QualityOrSpeedMax {
		return &ValidationError{Field: "quality", Message: fmt.Sprintf("%d is outside [%d, %d]", s.QualityOrSpeed, QualityOrSpeedMin, QualityOrSpeedMax)}
	}
	return nil
}

// Lookup tables indexed by QualityOrSpeed. The values were measured against
// the encoders and are not a formula.
var (
	// LAME algorithm quality: 0 = slowest/best, 9 = fastest/worst.
	mp3QualitySpeed = [...]int{
		0: 7,
		1: 5,
		2: 3,
		3: 2,
		4: 1,
		5: 0,
	}
	// FLAC compression level: 0 = fastest, 8 = smallest.
	flacCompression = [...]int{
		0: 3,
		1: 4,
		2: 5,
		3: 6,
		4: 7,
		5: 8,
	}
)

// Defaults returned for QualityOrSpeed values outside the tables.
const (
	DefaultMp3QualitySpeed = 3
	DefaultFlacCompression = 5
)

// Mp3QualitySpeed maps a QualityOrSpeed value to the LAME quality setting.
func Mp3QualitySpeed(q int) int {
	if q < 0 || q >= len(mp3QualitySpeed) {
		return DefaultMp3QualitySpeed
	}
	return mp3QualitySpeed[q]
}

// FlacCompression maps a QualityOrSpeed value to the FLAC compression level.
func FlacCompression(q int) int {
	if q < 0 || q >= len(flacCompression) {
		return DefaultFlacCompression
	}
	return flacCompression[q]
}

// Mp3QualitySpeed returns the LAME quality for s.QualityOrSpeed.
func (s *EncodeSettings) Mp3QualitySpeed() int { return Mp3QualitySpeed(s.QualityOrSpeed) }

// FlacCompression returns the FLAC compression level for s.QualityOrSpeed.
func (s *EncodeSettings) FlacCompression() int { return FlacCompression(s.QualityOrSpeed) }

func checkPitch(field string, hz float64) error {
	// NaN fails both comparisons, so test the accepted range positively.
	if !(hz >= PitchMin && hz <= PitchMax) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%g Hz is outside [%g, %g]", hz, PitchMin, PitchMax)}
	}
	return nil
}

func checkPositive(field string, v float64) error {
	if !(v > 0) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be greater than 0 (got %g)", v)}
	}
	return nil
}

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
