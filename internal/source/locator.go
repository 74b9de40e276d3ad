package source

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// AudioExtensions lists the file extensions (lowercase, with leading dot)
// the default locator treats as audio.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".wma":  true,
	".aif":  true,
	".aiff": true,
	".ape":  true,
	".wv":   true,
	".mka":  true,
	".mp2":  true,
	".ac3":  true,
}

// Found is one discovered file.
type Found struct {
	Path string // absolute
	Rel  string // relative to the searched folder, slash-separated
}

// Locator discovers audio files below a folder.
type Locator interface {
	DiscoverAudioFiles(dir string) iter.Seq2[Found, error]
}

// FSLocator walks the local filesystem.
type FSLocator struct {
	// Extensions overrides AudioExtensions when non-nil.
	Extensions map[string]bool
}

// DiscoverAudioFiles walks dir recursively in lexical order and yields
// every file whose extension matches (case-insensitively). Walk errors are
// yielded and end the sequence. Symlinked directories are not followed.
func (l FSLocator) DiscoverAudioFiles(dir string) iter.Seq2[Found, error] {
	exts := l.Extensions
	if exts == nil {
		exts = AudioExtensions
	}
	return func(yield func(Found, error) bool) {
		root, err := filepath.Abs(dir)
		if err != nil {
			yield(Found{}, err)
			return
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !exts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if !yield(Found{Path: path, Rel: filepath.ToSlash(rel)}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(Found{}, err)
		}
	}
}
