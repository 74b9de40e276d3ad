// Package pitch estimates the dominant frequency and tuning reference of a
// recording.
//
// Analysis is a short-time FFT: 4096-sample Hann-windowed frames with a
// 2048-sample hop. In each voiced frame the strongest bin between 20 Hz and
// 5 kHz is refined to sub-bin precision by fitting a parabola through the
// log magnitudes of the peak and its two neighbours. Per-frame results are
// aggregated by median.
//
// [DetectPitch] reports the dominant frequency itself. [Detector.DetectFile]
// folds each frame's peak onto the A4 reference it implies ([TuningReference])
// before taking the median, which is the figure a 440 → 432 conversion needs.
package pitch
