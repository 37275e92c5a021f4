package player_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/player/playertest"
)

func newPlayer(t *testing.T) (*player.Player, *playertest.Pipeline) {
	t.Helper()
	pipeline := playertest.New()
	p := player.New(pipeline, zerolog.Nop())
	t.Cleanup(func() { _ = p.Close() })
	return p, pipeline
}

func drain(p *player.Player) []player.EventKind {
	var out []player.EventKind
	for {
		select {
		case ev := <-p.Events():
			out = append(out, ev.Kind)
		default:
			return out
		}
	}
}

func waitEvent(t *testing.T, p *player.Player, kind player.EventKind) player.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for player event", kind.String())
		}
	}
}

func TestInitialState(t *testing.T) {
	t.Parallel()

	p, _ := newPlayer(t)
	assert.Equal(t, player.StatusStopped, p.Status())
	assert.Zero(t, p.Position())
	assert.Zero(t, p.Duration())
	require.ErrorIs(t, p.Play(), player.ErrNoSource)
	require.ErrorIs(t, p.Pause(), player.ErrNoSource)
	require.ErrorIs(t, p.SetPosition(time.Second), player.ErrNoSource)
}

func TestPlayPauseStop(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	pipeline.SetDuration("/a.ogg", 100*time.Second)

	require.NoError(t, p.SetSource("/a.ogg"))
	assert.Equal(t, player.StatusStopped, p.Status())

	require.NoError(t, p.Play())
	assert.Equal(t, player.StatusPlaying, p.Status())
	assert.Equal(t, player.PipelinePlaying, pipeline.State())

	require.NoError(t, p.Pause())
	assert.Equal(t, player.StatusPaused, p.Status())
	assert.Equal(t, player.PipelinePaused, pipeline.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, player.StatusStopped, p.Status())
	assert.Equal(t, player.PipelineReady, pipeline.State())

	assert.Equal(t, []player.EventKind{player.EventStarted, player.EventPaused, player.EventStopped}, drain(p))
}

func TestPlayAppliesParameters(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	require.NoError(t, p.SetSpeed(1.5))
	require.NoError(t, p.SetRemoveSilence(true))
	require.NoError(t, p.SetEqualizer([]float64{3, -2, 40}))

	require.NoError(t, p.SetSource("/a.ogg"))
	assert.False(t, pipeline.RemoveSilence(), "parameters are applied on play")

	require.NoError(t, p.Play())
	assert.InDelta(t, 1.5, pipeline.Rate(), 0)
	assert.True(t, pipeline.RemoveSilence())
	assert.InDelta(t, 3.0, pipeline.Band(0), 0)
	assert.InDelta(t, -2.0, pipeline.Band(1), 0)
	assert.InDelta(t, player.MaxGain, pipeline.Band(2), 0, "gains are clamped")
}

func TestSettersReplayWhilePlaying(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	require.NoError(t, p.SetSource("/a.ogg"))
	require.NoError(t, p.Play())
	drain(p)

	require.NoError(t, p.SetSpeed(2))
	assert.InDelta(t, 2.0, pipeline.Rate(), 0)
	require.NoError(t, p.SetEqualizerBand(4, -6))
	assert.InDelta(t, -6.0, pipeline.Band(4), 0)

	assert.Equal(t, []player.EventKind{player.EventStarted, player.EventStarted}, drain(p))
	assert.Equal(t, player.StatusPlaying, p.Status())

	require.NoError(t, p.Pause())
	drain(p)
	require.NoError(t, p.SetSpeed(0.5))
	assert.Empty(t, drain(p), "no replay while paused")
	assert.Equal(t, player.StatusPaused, p.Status())
}

func TestEqualizerBandOutOfRangeIsNoop(t *testing.T) {
	t.Parallel()

	p, _ := newPlayer(t)
	require.NoError(t, p.SetEqualizerBand(2, 5))

	require.NoError(t, p.SetEqualizerBand(10, 5))
	require.NoError(t, p.SetEqualizerBand(-1, 5))
	require.NoError(t, p.SetEqualizerBand(2, 12.5))
	require.NoError(t, p.SetEqualizerBand(2, -24.5))

	eq := p.Equalizer()
	assert.InDelta(t, 5.0, eq[2], 0)
	assert.Zero(t, eq[10])
}

func TestSpeedBounds(t *testing.T) {
	t.Parallel()

	p, _ := newPlayer(t)
	require.NoError(t, p.SetSpeed(0))
	assert.InDelta(t, 1.0, p.Speed(), 0)
	require.NoError(t, p.SetSpeed(-2))
	assert.InDelta(t, 1.0, p.Speed(), 0)
	require.NoError(t, p.SetSpeed(100))
	assert.InDelta(t, player.MaxSpeed, p.Speed(), 0)
}

func TestSetFractionSeeksWithinDuration(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	pipeline.SetDuration("/a.ogg", 100*time.Second)
	require.NoError(t, p.SetSource("/a.ogg"))

	require.NoError(t, p.SetFraction(0.5))
	require.NoError(t, p.Play())
	assert.Equal(t, 50*time.Second, p.Position())

	require.NoError(t, p.SetPosition(500*time.Second))
	assert.Equal(t, 100*time.Second, p.Position(), "clamped to duration")
	assert.Equal(t, player.StatusPlaying, p.Status(), "playing state is resumed")
	assert.Equal(t, player.PipelinePlaying, pipeline.State())

	require.NoError(t, p.SetPosition(-time.Second))
	assert.Zero(t, p.Position())
}

func TestSeekFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	pipeline.SetDuration("/a.ogg", 100*time.Second)
	require.NoError(t, p.SetSource("/a.ogg"))
	require.NoError(t, p.Play())

	pipeline.SetSeekError(errors.New("not seekable"))
	require.NoError(t, p.SetPosition(30*time.Second))
	assert.Equal(t, player.StatusPlaying, p.Status())
	assert.Zero(t, p.Position())
}

func TestSetSourceResets(t *testing.T) {
	t.Parallel()

	p, pipeline := newPlayer(t)
	require.NoError(t, p.SetSource("/a.ogg"))
	require.NoError(t, p.Play())

	require.NoError(t, p.SetSource("/b.ogg"))
	assert.Equal(t, player.StatusStopped, p.Status())
	assert.Equal(t, "/b.ogg", p.Source())
	assert.Equal(t, []string{"/a.ogg", "/b.ogg"}, pipeline.Binds())

	require.NoError(t, p.Unload())
	assert.Empty(t, p.Source())
	assert.Zero(t, p.Position())
}

func TestTrackEnd(t *testing.T) {
	t.Parallel()

	t.Run("EOS", func(t *testing.T) {
		t.Parallel()

		p, pipeline := newPlayer(t)
		require.NoError(t, p.SetSource("/a.ogg"))
		require.NoError(t, p.Play())

		pipeline.End()
		ev := waitEvent(t, p, player.EventTrackEnd)
		assert.Equal(t, "/a.ogg", ev.Source)
		assert.NoError(t, ev.Err)
	})

	t.Run("Error", func(t *testing.T) {
		t.Parallel()

		p, pipeline := newPlayer(t)
		require.NoError(t, p.SetSource("/a.ogg"))
		require.NoError(t, p.Play())

		pipeline.Fail("/a.ogg", errors.New("decoder error"))
		ev := waitEvent(t, p, player.EventTrackEnd)
		assert.EqualError(t, ev.Err, "decoder error")
	})

	t.Run("StaleSourceIgnored", func(t *testing.T) {
		t.Parallel()

		p, pipeline := newPlayer(t)
		require.NoError(t, p.SetSource("/b.ogg"))

		pipeline.Fail("/a.ogg", errors.New("late error"))
		pipeline.End()
		ev := waitEvent(t, p, player.EventTrackEnd)
		assert.Equal(t, "/b.ogg", ev.Source)
		assert.NoError(t, ev.Err)
	})
}

func TestPresets(t *testing.T) {
	t.Parallel()

	names := player.PresetNames()
	assert.Len(t, names, 19)
	assert.Contains(t, names, "none")
	assert.Contains(t, names, "full-bass-and-treble")
	assert.IsIncreasing(t, names)

	for name, gains := range player.Presets {
		for _, g := range gains {
			assert.GreaterOrEqual(t, g, player.MinGain, name)
			assert.LessOrEqual(t, g, player.MaxGain, name)
		}
	}
}

func TestCloseTwice(t *testing.T) {
	t.Parallel()

	p := player.New(playertest.New(), zerolog.Nop())
	require.NoError(t, p.Close())
	assert.NotPanics(t, func() { assert.NoError(t, p.Close()) })
}
