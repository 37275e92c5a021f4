package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dhowden/tag"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/must"
)

type MP3 struct{ prober StreamProber }

type Ogg struct{ prober StreamProber }

type FLAC struct{ prober StreamProber }

type M4A struct{ prober StreamProber }

func (e MP3) Extract(ctx context.Context, path string) (*Info, error) {
	return extract(ctx, e.prober, path, "mp3", func(m tag.Metadata, info *Info) {
		info.Year = formatYear(m.Year())
	})
}

func (e Ogg) Extract(ctx context.Context, path string) (*Info, error) {
	return extract(ctx, e.prober, path, "ogg", func(m tag.Metadata, info *Info) {
		info.Year = firstNonEmpty(formatYear(m.Year()), rawString(m, "year"), rawString(m, "date"))
	})
}

func (e FLAC) Extract(ctx context.Context, path string) (*Info, error) {
	info, err := extract(ctx, e.prober, path, "flac", func(m tag.Metadata, info *Info) {
		info.Album = firstNonEmpty(m.Album(), rawString(m, "albumtitle"))
		info.Year = firstNonEmpty(formatYear(m.Year()), rawString(m, "year"))
	})
	if nil != err {
		return nil, err
	}
	// Lossless bitrate varies too much to be meaningful.
	info.Bitrate = 0
	return info, nil
}

func (e M4A) Extract(ctx context.Context, path string) (*Info, error) {
	return extract(ctx, e.prober, path, "m4a", func(m tag.Metadata, info *Info) {
		info.Year = formatYear(m.Year())
	})
}

func formatYear(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func rawString(m tag.Metadata, key string) string {
	if v, ok := m.Raw()[key].(string); ok {
		return v
	}
	return ""
}

func extract(ctx context.Context, prober StreamProber, path, ext string, fill func(m tag.Metadata, info *Info)) (*Info, error) {
	info := &Info{
		Title:      baseTitle(path),
		Artist:     "",
		Album:      "",
		Year:       "",
		Ext:        ext,
		Duration:   0,
		Channels:   0,
		SampleRate: 0,
		Bitrate:    0,
		Cover:      nil,
	}

	if err := readTags(path, info, fill); nil != err {
		return nil, err
	}

	stream, err := prober.Probe(ctx, path)
	if nil != err {
		return nil, err
	}
	if stream.Duration <= 0 {
		return nil, ErrZeroDuration
	}
	info.Duration = stream.Duration
	info.Channels = stream.Channels
	info.SampleRate = stream.SampleRate
	info.Bitrate = stream.Bitrate
	return info, nil
}

func readTags(path string, info *Info, fill func(m tag.Metadata, info *Info)) (err error) {
	f, err := os.Open(path)
	if nil != err {
		return flaw.From(fmt.Errorf("failed to open audio file: %v", err)).Append(flaw.P{
			"path":           path,
			"err_debug_tree": errutil.Tree(err).FlawP(),
		})
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			closeErr = flaw.From(fmt.Errorf("failed to close audio file: %v", closeErr)).Append(flaw.P{"path": path})
			if nil != err {
				err = must.BeFlaw(err).Join(closeErr)
			} else {
				err = closeErr
			}
		}
	}()

	m, err := tag.ReadFrom(f)
	if nil != err {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil
		}
		return flaw.From(fmt.Errorf("failed to read audio tags: %v", err)).Append(flaw.P{
			"path":           path,
			"err_debug_tree": errutil.Tree(err).FlawP(),
		})
	}

	info.Title = firstNonEmpty(m.Title(), info.Title)
	info.Artist = m.Artist()
	info.Album = m.Album()
	if p := m.Picture(); nil != p && len(p.Data) > 0 {
		info.Cover = p.Data
	}
	fill(m, info)
	return nil
}
