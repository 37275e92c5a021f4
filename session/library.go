package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeptore/lplay/download"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/metadata"
	"github.com/xeptore/lplay/resolver"
	"github.com/xeptore/lplay/track"
)

// RejectedError reports an input that cannot become a catalog entry. The
// catalog is left unchanged.
type RejectedError struct {
	Input string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected %q: %v", e.Input, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

func (c *Controller) lookup(ctx context.Context, id string) (*track.Track, bool, error) {
	var (
		existing *track.Track
		ok       bool
	)
	err := c.Call(ctx, func() error {
		if t, found := c.catalog.Get(id); found {
			existing, ok = t.Clone(), true
		}
		return nil
	})
	return existing, ok, err
}

func (c *Controller) insert(ctx context.Context, t *track.Track) (*track.Track, bool, error) {
	var (
		entry *track.Track
		added bool
	)
	err := c.Call(ctx, func() error {
		var e *track.Track
		e, added = c.catalog.Add(t)
		entry = e.Clone()
		if !added {
			return nil
		}
		c.logger.Info().Str("id", t.ID).Str("kind", string(t.Kind)).Str("title", t.Title).Msg("Track added")
		if t.IsRemote() && c.settings.DownloadOnAdded {
			c.submitDownload(t)
		}
		c.persist()
		return nil
	})
	return entry, added, err
}

// AddFile adds a local audio file. Adding a file whose content is already
// in the catalog returns the existing entry and false.
func (c *Controller) AddFile(ctx context.Context, path string) (*track.Track, bool, error) {
	abs, err := filepath.Abs(path)
	if nil != err {
		return nil, false, &RejectedError{Input: path, Err: err}
	}
	if _, err := os.Stat(abs); nil != err {
		return nil, false, &RejectedError{Input: path, Err: err}
	}

	id, err := track.HashFile(abs)
	if nil != err {
		return nil, false, err
	}
	if existing, ok, err := c.lookup(ctx, id); nil != err {
		return nil, false, err
	} else if ok {
		return existing, false, nil
	}

	info, err := c.extractor.Extract(ctx, abs)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, false, ctx.Err()
		}
		c.logger.Warn().Func(log.Flaw(err)).Str("path", abs).Msg("Failed to extract audio metadata")
		return nil, false, &RejectedError{Input: path, Err: err}
	}

	t := newLocalTrack(id, abs, info)
	if len(info.Cover) > 0 && nil != c.thumbnails {
		if thumb, err := c.thumbnails.FromBytes(id, info.Cover); nil != err {
			c.logger.Warn().Func(log.Flaw(err)).Str("id", id).Msg("Failed to store embedded cover")
		} else {
			t.Thumbnail = thumb
		}
	}
	return c.insert(ctx, t)
}

func newLocalTrack(id, path string, info *metadata.Info) *track.Track {
	return &track.Track{
		ID:          id,
		Kind:        track.KindLocal,
		FilePath:    path,
		Title:       info.Title,
		Artist:      info.Artist,
		Album:       info.Album,
		Year:        info.Year,
		Duration:    info.Duration.Seconds(),
		Ext:         info.Ext,
		Channels:    info.Channels,
		SampleRate:  info.SampleRate,
		Bitrate:     info.Bitrate,
		Position:    0,
		Listened:    false,
		Thumbnail:   "",
		SourceURL:   "",
		DownloadURL: "",
		Downloaded:  false,
		FileSize:    0,
		Description: "",
		UploadDate:  "",
	}
}

// AddURL resolves a remote URL and adds it. Resolution runs on the caller
// goroutine.
func (c *Controller) AddURL(ctx context.Context, url string) (*track.Track, bool, error) {
	res, err := c.resolver.Resolve(ctx, url)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, false, ctx.Err()
		case errors.Is(err, resolver.ErrInvalidURL), errors.Is(err, resolver.ErrNoAudioFormat):
			return nil, false, &RejectedError{Input: url, Err: err}
		default:
			return nil, false, err
		}
	}

	t := res.Track
	if existing, ok, err := c.lookup(ctx, t.ID); nil != err {
		return nil, false, err
	} else if ok {
		return existing, false, nil
	}

	if res.ThumbnailURL != "" && nil != c.thumbnails {
		if thumb, err := c.thumbnails.FromURL(ctx, t.ID, res.ThumbnailURL); nil != err {
			c.logger.Warn().Func(log.Flaw(err)).Str("id", t.ID).Msg("Failed to fetch thumbnail")
		} else {
			t.Thumbnail = thumb
		}
	}
	return c.insert(ctx, t)
}

// Remove deletes tracks by id and returns how many were removed.
func (c *Controller) Remove(ctx context.Context, ids ...string) (int, error) {
	var n int
	err := c.Call(ctx, func() error {
		n = c.remove(ids)
		return nil
	})
	return n, err
}

func (c *Controller) remove(ids []string) int {
	removed := 0
	for _, id := range ids {
		t, ok := c.catalog.Remove(id)
		if !ok {
			continue
		}
		removed++

		if id == c.active {
			c.stopTicker()
			if nil != c.player {
				if err := c.player.Unload(); nil != err {
					c.logger.Warn().Func(log.Flaw(err)).Str("id", id).Msg("Failed to unload removed track")
				}
			}
			c.active = ""
		}
		if nil != c.downloads && c.downloads.Drop(id) {
			c.logger.Debug().Str("id", id).Msg("Dropped pending download of removed track")
		}
		if t.IsRemote() {
			c.deleteMedia(t)
		}
		if nil != c.thumbnails {
			if err := c.thumbnails.Remove(id); nil != err {
				c.logger.Warn().Func(log.Flaw(err)).Str("id", id).Msg("Failed to remove thumbnail")
			}
		}
		c.logger.Info().Str("id", id).Str("title", t.Title).Msg("Track removed")
	}

	if removed > 0 {
		c.settings.Row = 0
		c.persist()
	}
	return removed
}

// deleteMedia removes the downloaded file of a remote track.
func (c *Controller) deleteMedia(t *track.Track) {
	if t.FilePath == "" {
		return
	}
	if err := os.Remove(t.FilePath); nil != err && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn().Err(err).Str("id", t.ID).Str("path", t.FilePath).Msg("Failed to remove downloaded media")
	}
}

// Download queues the payload of a remote track. It returns false when the
// track is already downloaded or queued.
func (c *Controller) Download(ctx context.Context, id string) (bool, error) {
	var queued bool
	err := c.Call(ctx, func() error {
		if nil == c.downloads {
			return ErrNoDownloads
		}
		t, ok := c.catalog.Get(id)
		if !ok {
			return ErrNotFound
		}
		if !t.IsRemote() {
			return ErrNotRemote
		}
		if t.Downloaded {
			if _, err := os.Stat(t.FilePath); nil == err {
				return nil
			}
			t.Downloaded = false
			t.FilePath = ""
		}
		queued = c.submitDownload(t)
		return nil
	})
	return queued, err
}

func (c *Controller) submitDownload(t *track.Track) bool {
	if nil == c.downloads {
		return false
	}
	return c.downloads.Submit(download.Request{
		TrackID: t.ID,
		URL:     t.DownloadURL,
		Ext:     t.Ext,
		Size:    t.FileSize,
	})
}

// ToggleListened flips the listened flag of id and returns the new value.
func (c *Controller) ToggleListened(ctx context.Context, id string) (bool, error) {
	var listened bool
	err := c.Call(ctx, func() error {
		t, ok := c.catalog.Get(id)
		if !ok {
			return ErrNotFound
		}
		t.Listened = !t.Listened
		listened = t.Listened
		c.persist()
		return nil
	})
	return listened, err
}

func (c *Controller) Tracks(ctx context.Context) ([]*track.Track, error) {
	var out []*track.Track
	err := c.Call(ctx, func() error {
		out = c.catalog.Tracks()
		return nil
	})
	return out, err
}

func (c *Controller) onDownloadEvent(ev download.Event) {
	logger := c.logger.With().Str("id", ev.TrackID).Str("job_id", ev.JobID).Int("attempt", ev.Attempt).Logger()

	t, ok := c.catalog.Get(ev.TrackID)
	switch ev.Kind {
	case download.EventStarted:
		logger.Debug().Msg("Download started")
		return
	case download.EventCompleted:
		if !ok {
			logger.Warn().Str("path", ev.Path).Msg("Download completed for a removed track. Deleting payload")
			if err := os.Remove(ev.Path); nil != err && !errors.Is(err, os.ErrNotExist) {
				logger.Warn().Err(err).Msg("Failed to delete orphaned payload")
			}
			return
		}
		t.Downloaded = true
		t.FilePath = ev.Path
		logger.Info().Str("path", ev.Path).Msg("Download completed")
	case download.EventFailed:
		if !ok {
			return
		}
		t.Downloaded = false
		logger.Warn().Func(log.Flaw(ev.Err)).Msg("Download failed")
	case download.EventAbandoned:
		logger.Error().Func(log.Flaw(ev.Err)).Msg("Download abandoned after repeated failures")
		return
	}
	c.persist()
}
