package session

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/mathutil"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/track"
)

func (c *Controller) activeTrack() (*track.Track, bool) {
	if c.active == "" {
		return nil, false
	}
	return c.catalog.Get(c.active)
}

// PlayTrack toggles playback of the active track, or switches to id
// resuming from its stored position.
func (c *Controller) PlayTrack(ctx context.Context, id string) error {
	return c.Call(ctx, func() error { return c.playTrack(id, true) })
}

func (c *Controller) Next(ctx context.Context) error {
	return c.Call(ctx, c.next)
}

func (c *Controller) Previous(ctx context.Context) error {
	return c.Call(ctx, c.previous)
}

func (c *Controller) Pause(ctx context.Context) error {
	return c.Call(ctx, c.pause)
}

// Resume continues the active track, or starts the selected one.
func (c *Controller) Resume(ctx context.Context) error {
	return c.Call(ctx, func() error {
		if nil == c.player {
			return ErrNoPlayer
		}
		if _, ok := c.activeTrack(); ok {
			if c.player.Status() == player.StatusPlaying {
				return nil
			}
			return c.resume()
		}
		t, ok := c.catalog.At(c.settings.Row)
		if !ok {
			return ErrNotFound
		}
		return c.playTrack(t.ID, false)
	})
}

// TogglePlayback pauses when playing, and resumes otherwise.
func (c *Controller) TogglePlayback(ctx context.Context) error {
	return c.Call(ctx, func() error {
		if nil != c.player && c.player.Status() == player.StatusPlaying {
			return c.pause()
		}
		if t, ok := c.activeTrack(); ok {
			return c.playTrack(t.ID, true)
		}
		t, ok := c.catalog.At(c.settings.Row)
		if !ok {
			return ErrNotFound
		}
		return c.playTrack(t.ID, false)
	})
}

func (c *Controller) Stop(ctx context.Context) error {
	return c.Call(ctx, func() error {
		if nil == c.player {
			return ErrNoPlayer
		}
		t, ok := c.activeTrack()
		if !ok {
			return nil
		}
		c.recordPosition(t)
		c.stopTicker()
		if err := c.player.Stop(); nil != err {
			return err
		}
		c.persist()
		return nil
	})
}

// SeekFraction moves the active track to fraction f of its duration.
func (c *Controller) SeekFraction(ctx context.Context, f float64) error {
	return c.Call(ctx, func() error {
		if nil == c.player {
			return ErrNoPlayer
		}
		t, ok := c.activeTrack()
		if !ok {
			return ErrNotFound
		}
		f = mathutil.Clamp(f, 0, 1)
		if err := c.player.SetFraction(f); nil != err {
			return err
		}
		t.Position = f
		c.persist()
		return nil
	})
}

func (c *Controller) playTrack(id string, toggle bool) error {
	if nil == c.player {
		return ErrNoPlayer
	}
	t, ok := c.catalog.Get(id)
	if !ok {
		return ErrNotFound
	}

	if id == c.active && c.player.Source() == t.FilePath && t.FilePath != "" {
		switch c.player.Status() {
		case player.StatusPlaying:
			if toggle {
				return c.pause()
			}
			if err := c.player.Stop(); nil != err {
				return err
			}
			return c.resume()
		case player.StatusPaused:
			return c.resume()
		case player.StatusStopped:
			if t.Position > 0 && t.Position < 1 {
				c.restorePosition(t)
			}
			return c.resume()
		}
	}

	if !t.Playable() {
		return ErrNotPlayable
	}
	if _, err := os.Stat(t.FilePath); nil != err && errors.Is(err, os.ErrNotExist) {
		c.logger.Warn().Str("id", t.ID).Str("path", t.FilePath).Msg("Track file is missing. Removing it from the catalog")
		c.remove([]string{t.ID})
		return ErrMissingFile
	}

	if prev, ok := c.activeTrack(); ok && c.player.Status() != player.StatusStopped {
		c.recordPosition(prev)
		if c.player.Status() == player.StatusPlaying {
			if err := c.player.Pause(); nil != err {
				c.logger.Warn().Func(log.Flaw(err)).Str("id", prev.ID).Msg("Failed to pause previous track")
			}
		}
	}
	c.stopTicker()

	if err := c.player.SetSource(t.FilePath); nil != err {
		return err
	}
	c.active = t.ID
	c.settings.Row = c.catalog.IndexOf(t.ID)

	if t.Position > 0 && t.Position < 1 {
		c.restorePosition(t)
	}
	if err := c.resume(); nil != err {
		return err
	}
	c.persist()
	return nil
}

func (c *Controller) restorePosition(t *track.Track) {
	if err := c.player.SetFraction(t.Position); nil != err {
		c.logger.Warn().Func(log.Flaw(err)).Str("id", t.ID).Float64("position", t.Position).Msg("Failed to restore track position")
	}
}

func (c *Controller) resume() error {
	if err := c.player.Play(); nil != err {
		return err
	}
	c.startTicker()
	return nil
}

func (c *Controller) pause() error {
	if nil == c.player {
		return ErrNoPlayer
	}
	t, ok := c.activeTrack()
	if !ok || c.player.Status() != player.StatusPlaying {
		return nil
	}
	c.recordPosition(t)
	c.stopTicker()
	if err := c.player.Pause(); nil != err {
		return err
	}
	c.persist()
	return nil
}

func (c *Controller) next() error {
	i := c.catalog.NextIndex(c.catalog.IndexOf(c.active))
	t, ok := c.catalog.At(i)
	if !ok {
		return ErrNotFound
	}
	return c.playTrack(t.ID, false)
}

func (c *Controller) previous() error {
	i := c.catalog.PreviousIndex(c.catalog.IndexOf(c.active))
	t, ok := c.catalog.At(i)
	if !ok {
		return ErrNotFound
	}
	return c.playTrack(t.ID, false)
}

// recordPosition stores the current player position of t as a fraction.
func (c *Controller) recordPosition(t *track.Track) {
	pos := c.player.Position()
	if t.Duration <= 0 {
		if d := c.player.Duration(); d > 0 {
			t.Duration = d.Seconds()
		}
	}
	if t.Duration <= 0 {
		return
	}
	t.Position = mathutil.Clamp(pos.Seconds()/t.Duration, 0, 1)
}

func (c *Controller) sample() {
	t, ok := c.activeTrack()
	if !ok || nil == c.player || c.player.Status() != player.StatusPlaying {
		c.stopTicker()
		return
	}

	c.recordPosition(t)
	if t.Duration <= 0 {
		return
	}
	c.notify(Progress{
		TrackID:  t.ID,
		Position: time.Duration(t.Position * t.Duration * float64(time.Second)),
		Duration: time.Duration(t.Duration * float64(time.Second)),
		Fraction: t.Position,
	})

	if t.Position >= EndFraction {
		c.trackEnded(t)
		return
	}

	c.samples++
	if c.samples%c.flushEvery == 0 {
		c.persist()
	}
}

func (c *Controller) onPlayerEvent(ev player.Event) {
	switch ev.Kind {
	case player.EventStarted:
		if _, ok := c.activeTrack(); ok {
			c.startTicker()
		}
	case player.EventPaused, player.EventStopped:
		c.stopTicker()
	case player.EventTrackEnd:
		t, ok := c.activeTrack()
		if !ok || t.FilePath != ev.Source || c.player.Status() != player.StatusPlaying {
			c.logger.Debug().Str("source", ev.Source).Msg("Ignoring end of an inactive track")
			return
		}
		if nil != ev.Err {
			c.logger.Warn().Func(log.Flaw(ev.Err)).Str("id", t.ID).Msg("Track ended with a pipeline error")
		}
		c.trackEnded(t)
	}
}

func (c *Controller) trackEnded(t *track.Track) {
	c.stopTicker()
	t.Listened = true
	t.Position = 0
	if err := c.player.Stop(); nil != err {
		c.logger.Warn().Func(log.Flaw(err)).Str("id", t.ID).Msg("Failed to stop finished track")
	}

	if c.settings.RemoveOnListened && t.IsRemote() && t.Downloaded {
		if err := c.player.Unload(); nil != err {
			c.logger.Warn().Func(log.Flaw(err)).Str("id", t.ID).Msg("Failed to unload listened track")
		}
		c.deleteMedia(t)
		t.Downloaded = false
		t.FilePath = ""
	}

	c.logger.Info().Str("id", t.ID).Str("title", t.Title).Msg("Track finished")
	c.persist()

	if c.settings.PlayContinuously {
		if err := c.next(); nil != err {
			c.logger.Warn().Func(log.Flaw(err)).Msg("Failed to continue with the next track")
		}
	}
}
