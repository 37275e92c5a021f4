package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
)

type FFprobe struct {
	path string
}

func NewFFprobe(path string) *FFprobe {
	return &FFprobe{path: path}
}

func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	}
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ProbeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	//nolint:gosec
	cmd := exec.CommandContext(ctx, p.path, ProbeArgs(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		return nil, flaw.From(fmt.Errorf("failed to probe audio file: %v", err)).Append(errutil.ProcessFlawPayload(cmd, stderr.String(), err))
	}

	return ParseProbe(stdout.Bytes())
}

// ParseProbe reads the first audio stream of an ffprobe JSON document.
func ParseProbe(data []byte) (*Stream, error) {
	if !gjson.ValidBytes(data) {
		return nil, flaw.From(fmt.Errorf("invalid ffprobe output")).Append(flaw.P{"output": string(data)})
	}
	doc := gjson.ParseBytes(data)

	audio := doc.Get(`streams.#(codec_type=="audio")`)
	if !audio.Exists() {
		return nil, ErrUnsupported
	}

	seconds := doc.Get("format.duration").Float()
	if seconds <= 0 {
		seconds = audio.Get("duration").Float()
	}
	bitrate := doc.Get("format.bit_rate").Int()
	if bitrate <= 0 {
		bitrate = audio.Get("bit_rate").Int()
	}

	return &Stream{
		Duration:   time.Duration(seconds * float64(time.Second)),
		Channels:   int(audio.Get("channels").Int()),
		SampleRate: int(audio.Get("sample_rate").Int()),
		Bitrate:    int(bitrate / 1000),
	}, nil
}
