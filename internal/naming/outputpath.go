package naming

import (
	"path/filepath"
	"strings"

	"github.com/backmassage/retuner/internal/config"
)

// OutputPath builds the destination path for an input.
//
//	folder item: <dest>/<rel without extension><format ext>
//	single file: <dest>/<input base without extension><format ext>
//
// rel uses either separator; it is cleaned and may not climb above dest.
func OutputPath(dest, input, rel string, f config.Format) string {
	name := rel
	if name == "" {
		name = filepath.Base(input)
	}
	name = filepath.FromSlash(name)
	name = strings.TrimLeft(filepath.Clean(string(filepath.Separator)+name), string(filepath.Separator))
	return filepath.Join(dest, ReplaceExt(name, f.Extension()))
}

// ReplaceExt swaps the extension of name for ext (with leading dot).
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
