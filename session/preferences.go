package session

import (
	"context"

	"github.com/xeptore/lplay/mathutil"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/settings"
)

// update applies fn to the settings, forwards the change to the player
// when one is attached and persists.
func (c *Controller) update(ctx context.Context, fn func(s *settings.Settings) bool, apply func(p Player) error) error {
	return c.Call(ctx, func() error {
		if !fn(c.settings) {
			return nil
		}
		if nil != c.player && nil != apply {
			if err := apply(c.player); nil != err {
				return err
			}
		}
		c.persist()
		return nil
	})
}

// SetSpeed ignores non-positive multipliers.
func (c *Controller) SetSpeed(ctx context.Context, speed float64) error {
	speed = mathutil.Clamp(speed, 0, player.MaxSpeed)
	return c.update(ctx,
		func(s *settings.Settings) bool {
			if speed <= 0 {
				return false
			}
			s.Speed = max(speed, player.MinSpeed)
			return true
		},
		func(p Player) error { return p.SetSpeed(speed) },
	)
}

func (c *Controller) SetVolume(ctx context.Context, volume float64) error {
	volume = mathutil.Clamp(volume, 0, player.MaxVolume)
	return c.update(ctx,
		func(s *settings.Settings) bool { s.Volume = volume; return true },
		func(p Player) error { return p.SetVolume(volume) },
	)
}

func (c *Controller) SetAmplification(ctx context.Context, amplification float64) error {
	amplification = mathutil.Clamp(amplification, 0, player.MaxAmplification)
	return c.update(ctx,
		func(s *settings.Settings) bool { s.Amplification = amplification; return true },
		func(p Player) error { return p.SetAmplification(amplification) },
	)
}

func (c *Controller) SetRemoveSilence(ctx context.Context, enabled bool) error {
	return c.update(ctx,
		func(s *settings.Settings) bool { s.RemoveSilence = enabled; return true },
		func(p Player) error { return p.SetRemoveSilence(enabled) },
	)
}

// SetEqualizerBand is a no-op when band or gain is out of range.
func (c *Controller) SetEqualizerBand(ctx context.Context, band int, gain float64) error {
	return c.update(ctx,
		func(s *settings.Settings) bool {
			if !mathutil.InRange(band, 0, player.AddressableBands-1) || !mathutil.InRange(gain, player.MinGain, player.MaxGain) {
				return false
			}
			s.Equalizer.Set(band, gain)
			return true
		},
		func(p Player) error { return p.SetEqualizerBand(band, gain) },
	)
}

// ApplyPreset loads the gains of a named preset. Bands past the preset
// length are reset to 0.
func (c *Controller) ApplyPreset(ctx context.Context, name string) error {
	gains, ok := player.Presets[name]
	if !ok {
		return ErrUnknownPreset
	}
	all := make([]float64, player.NumBands)
	copy(all, gains[:])

	return c.update(ctx,
		func(s *settings.Settings) bool {
			for i, g := range all {
				s.Equalizer.Set(i, g)
			}
			s.Preset = name
			return true
		},
		func(p Player) error { return p.SetEqualizer(all) },
	)
}

func (c *Controller) SetPlayContinuously(ctx context.Context, enabled bool) error {
	return c.update(ctx, func(s *settings.Settings) bool { s.PlayContinuously = enabled; return true }, nil)
}

func (c *Controller) SetDownloadOnAdded(ctx context.Context, enabled bool) error {
	return c.update(ctx, func(s *settings.Settings) bool { s.DownloadOnAdded = enabled; return true }, nil)
}

func (c *Controller) SetRemoveOnListened(ctx context.Context, enabled bool) error {
	return c.update(ctx, func(s *settings.Settings) bool { s.RemoveOnListened = enabled; return true }, nil)
}
