// Package source holds the queueable inputs of a batch: single audio files
// and folders expanded to the audio files they contain.
//
// A [Tree] keeps entries in insertion order and [Tree.Flatten] yields the
// work queue in that order, folder children in discovery order. Each
// [AudioSource] carries its own status, pitch override, detected pitch and
// outcome; all of these are atomic so progress readers never take a lock.
package source
