package errutil

import (
	"context"
	"errors"
	"os/exec"
)

// IsContext reports whether ctx itself is done, as opposed to an operation
// failing with a context error of its own.
func IsContext(ctx context.Context) bool {
	err := ctx.Err()
	return nil != err && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// ExitCode reports the exit status of a finished external process, or -1.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
