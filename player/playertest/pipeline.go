// Package playertest provides an in-memory player.Pipeline.
package playertest

import (
	"errors"
	"sync"
	"time"

	"github.com/xeptore/lplay/player"
)

var ErrNotBound = errors.New("pipeline has no source")

// Pipeline simulates a decoder clock. While playing, every position query
// advances the clock by Step scaled by the playback rate.
type Pipeline struct {
	mux           sync.Mutex
	path          string
	state         player.PipelineState
	rate          float64
	pos           time.Duration
	durations     map[string]time.Duration
	step          time.Duration
	volume        float64
	amplification float64
	bands         [player.NumBands]float64
	removeSilence bool
	seekErr       error
	binds         []string
	seeks         int
	closed        bool
	messages      chan player.Message
}

func New() *Pipeline {
	return &Pipeline{
		mux:           sync.Mutex{},
		path:          "",
		state:         player.PipelineNull,
		rate:          1,
		pos:           0,
		durations:     make(map[string]time.Duration),
		step:          0,
		volume:        1,
		amplification: 1,
		bands:         [player.NumBands]float64{},
		removeSilence: false,
		seekErr:       nil,
		binds:         nil,
		seeks:         0,
		closed:        false,
		messages:      make(chan player.Message, 4),
	}
}

func (p *Pipeline) SetDuration(path string, d time.Duration) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.durations[path] = d
}

func (p *Pipeline) SetStep(step time.Duration) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.step = step
}

func (p *Pipeline) SetSeekError(err error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.seekErr = err
}

func (p *Pipeline) Bind(path string) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.path = path
	p.pos = 0
	p.state = player.PipelineReady
	p.binds = append(p.binds, path)
	return nil
}

func (p *Pipeline) Unbind() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.path = ""
	p.pos = 0
	p.state = player.PipelineNull
	return nil
}

func (p *Pipeline) SetState(state player.PipelineState) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.path == "" && state != player.PipelineNull {
		return ErrNotBound
	}
	if state == player.PipelineReady {
		p.pos = 0
	}
	p.state = state
	return nil
}

func (p *Pipeline) Seek(rate float64, position time.Duration) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if nil != p.seekErr {
		return p.seekErr
	}
	if p.path == "" {
		return ErrNotBound
	}
	p.rate = rate
	p.pos = position
	p.seeks++
	return nil
}

func (p *Pipeline) QueryPosition() (time.Duration, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.path == "" {
		return 0, ErrNotBound
	}
	if p.state == player.PipelinePlaying {
		p.pos += time.Duration(float64(p.step) * p.rate)
		if dur := p.durations[p.path]; dur > 0 {
			p.pos = min(p.pos, dur)
		}
	}
	return p.pos, nil
}

func (p *Pipeline) QueryDuration() (time.Duration, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	dur, ok := p.durations[p.path]
	if p.path == "" || !ok {
		return 0, ErrNotBound
	}
	return dur, nil
}

func (p *Pipeline) SetVolume(volume float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.volume = volume
	return nil
}

func (p *Pipeline) SetAmplification(amplification float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.amplification = amplification
	return nil
}

func (p *Pipeline) SetEqualizerBand(band int, gain float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.bands[band] = gain
	return nil
}

func (p *Pipeline) SetRemoveSilence(enabled bool) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.removeSilence = enabled
	return nil
}

func (p *Pipeline) Messages() <-chan player.Message {
	return p.messages
}

func (p *Pipeline) Close() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if !p.closed {
		p.closed = true
		close(p.messages)
	}
	return nil
}

// End posts an end-of-stream message for the bound source.
func (p *Pipeline) End() {
	p.mux.Lock()
	path := p.path
	p.mux.Unlock()
	p.messages <- player.Message{Kind: player.MessageEOS, Source: path, Err: nil}
}

// Fail posts an error message for source.
func (p *Pipeline) Fail(source string, err error) {
	p.messages <- player.Message{Kind: player.MessageError, Source: source, Err: err}
}

func (p *Pipeline) Path() string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.path
}

func (p *Pipeline) State() player.PipelineState {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.state
}

func (p *Pipeline) Rate() float64 {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.rate
}

func (p *Pipeline) Band(i int) float64 {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.bands[i]
}

func (p *Pipeline) RemoveSilence() bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.removeSilence
}

func (p *Pipeline) Binds() []string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return append([]string(nil), p.binds...)
}

func (p *Pipeline) Seeks() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.seeks
}
