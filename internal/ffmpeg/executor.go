package ffmpeg

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"
)

// ExecResult holds the outcome of a single ffmpeg invocation.
type ExecResult struct {
	Stderr string
	Err    error
}

// Execute runs args (args[0] is the binary). When verbose, stderr is tee'd
// to os.Stderr in real time; otherwise it is captured silently for retry
// classification.
//
// Cancelling ctx interrupts ffmpeg so it can finalize and exit; it is killed
// if it has not exited shortly after.
func Execute(ctx context.Context, args []string, verbose bool) ExecResult {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	var stderrBuf bytes.Buffer
	if verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	return ExecResult{
		Stderr: stderrBuf.String(),
		Err:    err,
	}
}
