// Package pipeline runs a batch: it flattens the source tree into a FIFO
// queue, processes items on a bounded pool of workers (destination and
// conflict policy, pitch, plan, encode) and reports per-item and aggregate
// outcomes through an [EventBus] and a final [Report].
//
// Per-item failures never stop the batch. Only invalid settings and API
// misuse are fatal, and both are rejected before any item is dispatched.
//
// [Analyze] is the read-only counterpart: it probes and detects every input
// and prints a pitch table with outlier flags.
package pipeline
