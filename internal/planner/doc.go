// Package planner turns the user's EncodeSettings, a file's source pitch and
// its probed audio properties into an EncodePlan that the ffmpeg package
// consumes.
//
// Derivation is pure: BuildPlan performs no I/O and is called once per file.
//
//   - Codec and encoder parameters, gated by format (audio.go)
//   - Bitrate ranges and supported sample rates per format (rates.go)
//   - Pitch-ratio rounding to musically meaningful fractions (rounding.go)
//   - The pitch/tempo/rate filter chain (filter.go)
package planner
