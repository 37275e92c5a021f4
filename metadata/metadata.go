// Package metadata reads tags and stream properties of local audio files.
package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupported  = errors.New("unsupported audio format")
	ErrZeroDuration = errors.New("audio has zero duration")
)

type Info struct {
	Title      string
	Artist     string
	Album      string
	Year       string
	Ext        string
	Duration   time.Duration
	Channels   int
	SampleRate int
	// Bitrate in kbit/s.
	Bitrate int
	Cover   []byte
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*Info, error)
}

// StreamProber reads stream properties that tags do not carry.
type StreamProber interface {
	Probe(ctx context.Context, path string) (*Stream, error)
}

type Stream struct {
	Duration   time.Duration
	Channels   int
	SampleRate int
	Bitrate    int
}

func baseTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
