package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrIndexOutOfRange is returned by RemoveAt for a bad index.
var ErrIndexOutOfRange = errors.New("source: index out of range")

// Folder is a named container of sources discovered below Root. Its
// children are fixed once the folder is added.
type Folder struct {
	Name     string
	Root     string
	children []*AudioSource
}

// Sources returns the folder's children in discovery order.
func (f *Folder) Sources() []*AudioSource {
	return append([]*AudioSource(nil), f.children...)
}

// Len returns the number of children.
func (f *Folder) Len() int { return len(f.children) }

// Entry is one top-level item of a Tree: either a single file or a folder.
type Entry struct {
	File   *AudioSource
	Folder *Folder
}

// Name returns the file's base name or the folder name.
func (e Entry) Name() string {
	if e.Folder != nil {
		return e.Folder.Name
	}
	return filepath.Base(e.File.Path)
}

// Sources returns the sources this entry contributes to the queue.
func (e Entry) Sources() []*AudioSource {
	if e.Folder != nil {
		return e.Folder.Sources()
	}
	return []*AudioSource{e.File}
}

// Tree is the ordered collection of queued entries. It is safe for
// concurrent use.
type Tree struct {
	mu      sync.RWMutex
	entries []Entry
}

// AddFile appends a single file. The path must name an existing regular
// file.
func (t *Tree) AddFile(p string) (*AudioSource, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", abs)
	}
	src := NewAudioSource(abs, "")
	t.mu.Lock()
	t.entries = append(t.entries, Entry{File: src})
	t.mu.Unlock()
	return src, nil
}

// AddFolder discovers audio files below dir with loc and appends them as
// one folder entry. Each child's RelativePath is "<folder name>/<rel>" so
// the folder itself is recreated at the destination. An empty folder is
// still added.
func (t *Tree) AddFolder(dir string, loc Locator) (*Folder, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", abs)
	}
	if loc == nil {
		loc = FSLocator{}
	}

	f := &Folder{Name: filepath.Base(abs), Root: abs}
	for found, err := range loc.DiscoverAudioFiles(abs) {
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", abs, err)
		}
		f.children = append(f.children, NewAudioSource(found.Path, path.Join(f.Name, found.Rel)))
	}

	t.mu.Lock()
	t.entries = append(t.entries, Entry{Folder: f})
	t.mu.Unlock()
	return f, nil
}

// RemoveAt removes the entry at index i.
func (t *Tree) RemoveAt(i int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.entries) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(t.entries))
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return nil
}

// Clear removes every entry.
func (t *Tree) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

// Len returns the number of top-level entries.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a snapshot of the top-level entries.
func (t *Tree) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Flatten returns every source in queue order: entries in insertion order,
// folder children in discovery order.
func (t *Tree) Flatten() []*AudioSource {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*AudioSource
	for _, e := range t.entries {
		out = append(out, e.Sources()...)
	}
	return out
}

// Detector estimates the source pitch of a file.
type Detector interface {
	DetectFile(ctx context.Context, path string) (float64, error)
}

// DetectPitches pre-fills DetectedPitch for every source that has neither
// a manual pitch nor a detection result, running up to limit detections at
// once. Per-file failures are reported to onError (if non-nil) and
// otherwise ignored. Only a cancelled ctx makes it return an error.
func (t *Tree) DetectPitches(ctx context.Context, d Detector, limit int, onError func(*AudioSource, error)) error {
	if limit < 1 {
		limit = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, src := range t.Flatten() {
		if _, ok := src.Pitch(); ok {
			continue
		}
		if _, ok := src.DetectedPitch(); ok {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			hz, err := d.DetectFile(gctx, src.Path)
			if err != nil {
				if onError != nil && gctx.Err() == nil {
					mu.Lock()
					onError(src, err)
					mu.Unlock()
				}
				return nil
			}
			src.SetDetectedPitch(hz)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
