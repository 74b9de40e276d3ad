package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/backmassage/retuner/internal/config"
)

// prompter asks the user what to do with an existing destination. Workers
// call Resolve concurrently; prompts are shown one at a time.
type prompter struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newPrompter(in io.Reader, out io.Writer, interactive bool) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, interactive: interactive}
}

// Resolve implements pipeline.ConflictResolver. Without a terminal, on
// EOF, or once ctx is done it answers Skip.
func (p *prompter) Resolve(ctx context.Context, dest string) config.FileExistsAction {
	if !p.interactive {
		return config.ExistsSkip
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return config.ExistsSkip
		}
		fmt.Fprintf(p.out, "%s already exists. [s]kip, [o]verwrite, [r]ename, [c]ancel? ", dest)
		line, err := p.in.ReadString('\n')
		if action, ok := parseAnswer(line); ok {
			return action
		}
		if err != nil {
			fmt.Fprintln(p.out)
			return config.ExistsSkip
		}
	}
}

func parseAnswer(line string) (config.FileExistsAction, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "skip":
		return config.ExistsSkip, true
	case "o", "overwrite":
		return config.ExistsOverwrite, true
	case "r", "rename":
		return config.ExistsRename, true
	case "c", "cancel":
		return config.ExistsCancel, true
	}
	return "", false
}
