package resolver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/xeptore/lplay/errutil"
)

type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type RunError struct {
	ExitCode int
	Stderr   string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("yt-dlp exited with code %d: %s", e.ExitCode, e.Stderr)
}

var transientMarkers = []string{
	"HTTP Error 429",
	"HTTP Error 5",
	"timed out",
	"Temporary failure in name resolution",
	"Connection reset",
}

// Transient reports whether the failure looks like a network hiccup.
func (e *RunError) Transient() bool {
	for _, m := range transientMarkers {
		if strings.Contains(e.Stderr, m) {
			return true
		}
	}
	return false
}

func Args(url string) []string {
	return []string{"-J", "--no-playlist", "--no-warnings", "--", url}
}

type YtDlp struct {
	path string
}

func NewYtDlp(path string) *YtDlp {
	return &YtDlp{path: path}
}

func (y *YtDlp) Run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	//nolint:gosec
	cmd := exec.CommandContext(ctx, y.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		return nil, &RunError{ExitCode: errutil.ExitCode(err), Stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.Bytes(), nil
}
