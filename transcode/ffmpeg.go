// Package transcode converts downloaded payloads into Ogg/Vorbis files.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
)

type FFmpeg struct {
	path   string
	logger zerolog.Logger
}

func NewFFmpeg(path string, logger zerolog.Logger) *FFmpeg {
	return &FFmpeg{path: path, logger: logger}
}

func Args(in, out string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", in,
		"-vn",
		"-acodec", "libvorbis",
		"-y",
		out,
	}
}

func (f *FFmpeg) Transcode(ctx context.Context, in, out string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, Args(in, out)...)
	cmd.Stderr = &stderr

	f.logger.Debug().Str("input", in).Str("output", out).Msg("Transcoding payload")
	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		return flaw.From(fmt.Errorf("failed to transcode %q: %v", in, err)).Append(errutil.ProcessFlawPayload(cmd, stderr.String(), err))
	}
	return nil
}
