// Package probe provides ffprobe-based audio inspection and typed result
// structures. One JSON call per file yields the container format and every
// audio stream; [ProbeResult.Audio] collapses that into the single
// [AudioInfo] the planner needs.
//
// Cover art (attached pictures) and other non-audio streams are ignored.
package probe
