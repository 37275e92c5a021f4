package mpv

import (
	"fmt"
	"math"
	"strings"

	"github.com/xeptore/lplay/player"
)

const (
	minBandFrequency = 20.0
	maxBandFrequency = 20000.0
)

// BandFrequency returns the center frequency of band i when the audible
// range is split into player.NumBands logarithmic bands.
func BandFrequency(i int) float64 {
	ratio := maxBandFrequency / minBandFrequency
	return minBandFrequency * math.Pow(ratio, (float64(i)+0.5)/player.NumBands)
}

func bandWidthOctaves() float64 {
	return math.Log2(maxBandFrequency/minBandFrequency) / player.NumBands
}

type filterChain struct {
	removeSilence bool
	amplification float64
	bands         [player.NumBands]float64
}

// String renders the chain as a value of the mpv "af" property.
func (f filterChain) String() string {
	var parts []string
	if f.removeSilence {
		parts = append(parts, "lavfi=[silenceremove=start_periods=1:stop_periods=-1:stop_duration=0.5:stop_threshold=-50dB]")
	}
	if f.amplification != 1 {
		parts = append(parts, fmt.Sprintf("lavfi=[volume=%.3f]", f.amplification))
	}
	for i, gain := range f.bands {
		if gain == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("lavfi=[equalizer=f=%.1f:t=o:w=%.3f:g=%.3f]", BandFrequency(i), bandWidthOctaves(), gain))
	}
	return strings.Join(parts, ",")
}
