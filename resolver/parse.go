package resolver

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/track"
)

type audioFormat struct {
	ext  string
	url  string
	size int64
}

func formatSize(f gjson.Result) int64 {
	if size := f.Get("filesize").Int(); size > 0 {
		return size
	}
	return f.Get("filesize_approx").Int()
}

func isAudioOnly(f gjson.Result) bool {
	return f.Get("vcodec").String() == "none" || strings.Contains(f.Get("format").String(), "audio only")
}

// Parse builds a remote track from a yt-dlp JSON dump, choosing the
// smallest audio only format of known size.
func Parse(sourceURL string, data []byte) (*Resolved, error) {
	if !gjson.ValidBytes(data) {
		return nil, flaw.From(fmt.Errorf("invalid yt-dlp output")).Append(flaw.P{"url": sourceURL, "output": string(data)})
	}
	doc := gjson.ParseBytes(data)

	formats := lo.FilterMap(doc.Get("formats").Array(), func(f gjson.Result, _ int) (audioFormat, bool) {
		if !isAudioOnly(f) {
			return audioFormat{}, false
		}
		size := formatSize(f)
		if size <= 0 || f.Get("url").String() == "" {
			return audioFormat{}, false
		}
		return audioFormat{ext: f.Get("ext").String(), url: f.Get("url").String(), size: size}, true
	})
	if len(formats) == 0 {
		return nil, ErrNoAudioFormat
	}
	selected := lo.MinBy(formats, func(a, b audioFormat) bool { return a.size < b.size })

	id := doc.Get("display_id").String()
	if id == "" {
		id = doc.Get("id").String()
	}
	if id == "" {
		return nil, flaw.From(fmt.Errorf("yt-dlp output has no id")).Append(flaw.P{"url": sourceURL})
	}

	uploadDate := doc.Get("upload_date").String()
	var year string
	if len(uploadDate) >= 4 {
		year = uploadDate[:4]
	}

	t := &track.Track{
		ID:          id,
		Kind:        track.KindRemote,
		FilePath:    "",
		Title:       lo.CoalesceOrEmpty(doc.Get("title").String(), id),
		Artist:      lo.CoalesceOrEmpty(doc.Get("creator").String(), doc.Get("uploader").String()),
		Album:       "",
		Year:        year,
		Duration:    doc.Get("duration").Float(),
		Ext:         selected.ext,
		Channels:    0,
		SampleRate:  0,
		Bitrate:     0,
		Position:    0,
		Listened:    false,
		Thumbnail:   "",
		SourceURL:   sourceURL,
		DownloadURL: selected.url,
		Downloaded:  false,
		FileSize:    selected.size,
		Description: doc.Get("description").String(),
		UploadDate:  uploadDate,
	}
	return &Resolved{Track: t, ThumbnailURL: doc.Get("thumbnail").String()}, nil
}
