package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/retuner/internal/planner"
)

// Backend encodes plans with the ffmpeg CLI.
type Backend struct {
	Bin     string // ffmpeg executable; "ffmpeg" if empty
	Verbose bool

	// OnRetry, if set, is called before each retry with the fix applied.
	OnRetry func(plan *planner.EncodePlan, action RetryAction, attempt int)
}

// Encode converts plan.InputPath to plan.OutputPath. The output appears
// only when the encode succeeds. Errors are *BackendError; when ctx was
// cancelled the error wraps ctx.Err().
func (b *Backend) Encode(ctx context.Context, plan *planner.EncodePlan) error {
	bin := b.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	tmp := TempPath(plan.OutputPath)
	rs := NewRetryState(plan)

	for {
		res := Execute(ctx, Build(bin, plan, rs, tmp, b.Verbose), b.Verbose)
		if res.Err == nil {
			if err := os.Rename(tmp, plan.OutputPath); err != nil {
				_ = os.Remove(tmp)
				return &BackendError{Path: plan.InputPath, Attempts: rs.Attempt + 1, Err: err}
			}
			return nil
		}
		_ = os.Remove(tmp)

		if ctx.Err() != nil {
			return &BackendError{Path: plan.InputPath, Attempts: rs.Attempt + 1, Stderr: res.Stderr, Err: ctx.Err()}
		}
		action := rs.Advance(res.Stderr)
		if action == RetryNone {
			return &BackendError{Path: plan.InputPath, Attempts: rs.Attempt, Stderr: res.Stderr, Err: res.Err}
		}
		if b.OnRetry != nil {
			b.OnRetry(plan, action, rs.Attempt)
		}
	}
}

// TempPath returns the in-progress name for out: a hidden sibling that
// keeps the extension so ffmpeg still infers the container.
func TempPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf(".%s.part%s", strings.TrimSuffix(base, ext), ext))
}
