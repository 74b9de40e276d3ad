// Package ffmpeg builds and executes ffmpeg commands for the encode path,
// decodes audio to PCM for pitch analysis, and classifies ffmpeg failures.
//
// Encoding goes through [Backend.Encode]: [Build] renders a
// planner.EncodePlan into arguments, [Execute] runs them with stderr
// captured, and on failure [RetryState.Advance] applies at most one fix per
// attempt (rubberband missing → resample chain; sample rate, bitrate or
// sample format rejected → let the encoder default it). Output is written to
// a temporary sibling file and renamed into place only on success, so a
// failed or aborted encode never leaves a truncated file behind.
package ffmpeg
