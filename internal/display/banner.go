package display

import (
	"fmt"
	"io"

	"github.com/backmassage/retuner/internal/term"
)

// PrintBanner writes the ASCII art banner to w; uses Magenta if colors are enabled.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, term.Magenta)
	fmt.Fprint(w, ` ____      _
|  _ \ ___| |_ _   _ _ __   ___ _ __
| |_) / _ \ __| | | | '_ \ / _ \ '__|
|  _ <  __/ |_| |_| | | | |  __/ |
|_| \_\___|\__|\__,_|_| |_|\___|_|
`)
	if term.Enabled() {
		fmt.Fprintln(w, term.NC)
	}
}
