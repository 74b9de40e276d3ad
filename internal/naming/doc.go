// Package naming builds destination paths and resolves collisions between
// them.
//
// A folder item keeps its path relative to the added folder (the folder's
// own name included), so the input layout is mirrored under the
// destination. A single file lands directly in the destination. The
// extension always becomes the target format's.
//
// [CollisionResolver] tracks which input owns each destination during one
// run. Two inputs never share an output: the second one is renamed with a
// " (N)" suffix, the same scheme used for the Rename file-exists action.
package naming
