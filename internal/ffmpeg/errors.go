package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regexes for classifying ffmpeg stderr output into retryable
// error categories. Checked in order by [RetryState.Advance]; the first
// matching pattern whose fix has not yet been applied wins.
var (
	reRubberbandMissing = regexp.MustCompile(
		`(?i)No such filter: '?rubberband|Filter '?rubberband'? not found`)

	reSampleRateIssue = regexp.MustCompile(
		`(?i)Specified sample rate \d+ is not supported|` +
			`sample rate .*(?:not supported|unsupported)|` +
			`Invalid sample rate`)

	reBitrateIssue = regexp.MustCompile(
		`(?i)bit ?rate .*(?:not supported|unsupported|out of range|too (?:high|low))|` +
			`Invalid bit ?rate`)

	reSampleFmtIssue = regexp.MustCompile(
		`(?i)Specified sample format \w+ is (?:invalid or )?not supported|` +
			`Invalid sample format`)
)

// MatchRubberbandMissing reports whether ffmpeg was built without the rubberband filter.
func MatchRubberbandMissing(stderr string) bool {
	return reRubberbandMissing.MatchString(stderr)
}

// MatchSampleRateIssue reports whether the encoder rejected the output sample rate.
func MatchSampleRateIssue(stderr string) bool {
	return reSampleRateIssue.MatchString(stderr)
}

// MatchBitrateIssue reports whether the encoder rejected the requested bitrate.
func MatchBitrateIssue(stderr string) bool {
	return reBitrateIssue.MatchString(stderr)
}

// MatchSampleFmtIssue reports whether the encoder rejected the sample format.
func MatchSampleFmtIssue(stderr string) bool {
	return reSampleFmtIssue.MatchString(stderr)
}

// DecodeError reports a source that ffmpeg or ffprobe could not read.
type DecodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	return formatError("decode", e.Path, e.Err, e.Stderr)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *DecodeError) Unwrap() error { return e.Err }

// BackendError reports a failed encode after all retry fixes were tried.
type BackendError struct {
	Path     string // input file
	Attempts int
	Stderr   string
	Err      error
}

func (e *BackendError) Error() string {
	return formatError("encode", e.Path, e.Err, e.Stderr)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *BackendError) Unwrap() error { return e.Err }

func formatError(op, path string, err error, stderr string) string {
	msg := fmt.Sprintf("%s %s: %v", op, path, err)
	if line := LastLine(stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

// LastLine returns the last non-empty line of ffmpeg's stderr, which is
// usually the one naming the failure.
func LastLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
