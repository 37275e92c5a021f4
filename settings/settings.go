package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xeptore/lplay/constant"
	"github.com/xeptore/lplay/track"
)

const (
	NumBands      = 18
	DefaultSpeed  = 1.0
	DefaultPreset = "none"
)

// Equalizer maps band names (band0..band17) to gains in dB.
type Equalizer map[string]float64

func BandName(i int) string {
	return "band" + strconv.Itoa(i)
}

func parseBandName(name string) (int, bool) {
	n, found := strings.CutPrefix(name, "band")
	if !found {
		return 0, false
	}
	i, err := strconv.Atoi(n)
	if nil != err || i < 0 || i >= NumBands {
		return 0, false
	}
	return i, true
}

func (e Equalizer) Gains() []float64 {
	out := make([]float64, NumBands)
	for name, gain := range e {
		if i, ok := parseBandName(name); ok {
			out[i] = gain
		}
	}
	return out
}

func (e Equalizer) Set(i int, gain float64) {
	e[BandName(i)] = gain
}

func DefaultEqualizer() Equalizer {
	out := make(Equalizer, NumBands)
	for i := range NumBands {
		out[BandName(i)] = 0
	}
	return out
}

type Settings struct {
	Version          string         `json:"version"`
	Audios           []*track.Track `json:"audios"`
	Row              int            `json:"row"`
	Speed            float64        `json:"speed"`
	Volume           float64        `json:"volume"`
	Amplification    float64        `json:"amplification"`
	Equalizer        Equalizer      `json:"equalizer"`
	RemoveSilence    bool           `json:"remove_silence"`
	PlayContinuously bool           `json:"play_continuously"`
	DownloadOnAdded  bool           `json:"download_on_added"`
	RemoveOnListened bool           `json:"remove_on_listened"`
	Preset           string         `json:"preset"`
}

func Default() *Settings {
	return &Settings{
		Version:          constant.Version,
		Audios:           []*track.Track{},
		Row:              0,
		Speed:            DefaultSpeed,
		Volume:           1,
		Amplification:    1,
		Equalizer:        DefaultEqualizer(),
		RemoveSilence:    false,
		PlayContinuously: false,
		DownloadOnAdded:  false,
		RemoveOnListened: false,
		Preset:           DefaultPreset,
	}
}

// normalize fills in values missing from older files and drops records that
// fail validation.
func (s *Settings) normalize() []error {
	if s.Speed <= 0 {
		s.Speed = DefaultSpeed
	}
	// Zero is a valid stored volume or amplification (muted); absent keys keep
	// the defaults they were decoded over.
	if s.Volume < 0 {
		s.Volume = 1
	}
	if s.Amplification < 0 {
		s.Amplification = 1
	}
	if s.Preset == "" {
		s.Preset = DefaultPreset
	}
	if nil == s.Equalizer {
		s.Equalizer = DefaultEqualizer()
	}
	for i := range NumBands {
		if _, ok := s.Equalizer[BandName(i)]; !ok {
			s.Equalizer[BandName(i)] = 0
		}
	}

	var errs []error
	audios := make([]*track.Track, 0, len(s.Audios))
	for i, t := range s.Audios {
		if nil == t {
			continue
		}
		if err := t.Validate(); nil != err {
			errs = append(errs, fmt.Errorf("audio at index %d: %v", i, err))
			continue
		}
		audios = append(audios, t)
	}
	s.Audios = audios

	if s.Row < 0 || s.Row >= len(s.Audios) {
		s.Row = 0
	}
	s.Version = constant.Version
	return errs
}
