package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CollisionResolver tracks output paths claimed by the items of one run
// and produces " (N)" variants for paths that are taken, either on disk or
// by another item. Owners are compared with ==, so the same input file
// queued twice needs two distinct owner values (e.g. two item pointers).
// All methods are goroutine-safe.
type CollisionResolver struct {
	mu     sync.Mutex
	owners map[string]any // output path → owning item
	exists func(string) bool
}

// NewCollisionResolver creates a ready-to-use resolver that checks the
// local filesystem.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{
		owners: make(map[string]any),
		exists: Exists,
	}
}

// Exists reports whether anything (file, directory, symlink) is at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Claim reserves path for owner. It returns false when another owner
// already holds it; claiming a path twice for the same owner succeeds.
func (cr *CollisionResolver) Claim(owner any, path string) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	held, ok := cr.owners[path]
	if ok && held != owner {
		return false
	}
	cr.owners[path] = owner
	return true
}

// Release drops owner's claim on path. Claims held by other owners are
// left alone.
func (cr *CollisionResolver) Release(owner any, path string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if held, ok := cr.owners[path]; ok && held == owner {
		delete(cr.owners, path)
	}
}

// Rename claims and returns the first "<stem> (N)<ext>" variant of path,
// N counting from 1, that exists neither on disk nor among this run's
// claims. Any claim owner held on path itself is released.
func (cr *CollisionResolver) Rename(owner any, path string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if held, ok := cr.owners[path]; ok && held == owner {
		delete(cr.owners, path)
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, taken := cr.owners[candidate]; taken {
			continue
		}
		if cr.exists(candidate) {
			continue
		}
		cr.owners[candidate] = owner
		return candidate
	}
}
