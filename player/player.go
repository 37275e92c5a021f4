package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/mathutil"
)

const (
	NumBands         = 18
	AddressableBands = 10
	MinGain          = -24.0
	MaxGain          = 12.0
	MinSpeed         = 0.25
	MaxSpeed         = 4.0
	MaxVolume        = 1.0
	MaxAmplification = 4.0
)

var ErrNoSource = errors.New("no source is bound to the player")

type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventPaused
	EventStopped
	EventTrackEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventTrackEnd:
		return "track_end"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind     EventKind
	Source   string
	Position time.Duration
	Err      error
}

// Player owns a single Pipeline and keeps the playback parameters that are
// reapplied every time playback starts.
type Player struct {
	mux           sync.Mutex
	pipeline      Pipeline
	source        string
	status        Status
	speed         float64
	volume        float64
	amplification float64
	removeSilence bool
	equalizer     [NumBands]float64
	position      time.Duration
	events        chan Event
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
	logger        zerolog.Logger
}

func New(pipeline Pipeline, logger zerolog.Logger) *Player {
	p := &Player{
		mux:           sync.Mutex{},
		pipeline:      pipeline,
		source:        "",
		status:        StatusStopped,
		speed:         1,
		volume:        1,
		amplification: 1,
		removeSilence: false,
		equalizer:     [NumBands]float64{},
		position:      0,
		events:        make(chan Event, 16),
		done:          make(chan struct{}),
		closeOnce:     sync.Once{},
		wg:            sync.WaitGroup{},
		logger:        logger,
	}
	p.wg.Add(1)
	go p.forward()
	return p
}

func (p *Player) Events() <-chan Event {
	return p.events
}

func (p *Player) forward() {
	defer p.wg.Done()
	for {
		select {
		case msg, ok := <-p.pipeline.Messages():
			if !ok {
				return
			}
			p.handleMessage(msg)
		case <-p.done:
			return
		}
	}
}

func (p *Player) handleMessage(msg Message) {
	p.mux.Lock()
	current := p.source
	p.mux.Unlock()

	if msg.Source != current {
		p.logger.Debug().Str("source", msg.Source).Str("current", current).Msg("Ignoring message of a stale source")
		return
	}

	if msg.Kind == MessageError {
		if nil != msg.Err && errutil.IsFlaw(msg.Err) {
			p.logger.Error().Func(log.Flaw(msg.Err)).Str("source", msg.Source).Msg("Pipeline reported an error")
		} else {
			p.logger.Error().Err(msg.Err).Str("source", msg.Source).Msg("Pipeline reported an error")
		}
	}

	select {
	case p.events <- Event{Kind: EventTrackEnd, Source: msg.Source, Position: 0, Err: msg.Err}:
	case <-p.done:
	}
}

func (p *Player) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn().Stringer("kind", ev.Kind).Msg("Player event channel is full. Dropping event")
	}
}

// Close stops event forwarding and closes the pipeline. Later calls are no-ops.
func (p *Player) Close() (err error) {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.pipeline.Close()
	})
	return err
}

// SetSource binds path and resets the status to stopped.
func (p *Player) SetSource(path string) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source != "" {
		if err := p.pipeline.SetState(PipelineNull); nil != err {
			p.logger.Warn().Err(err).Str("source", p.source).Msg("Failed to tear down previous source")
		}
	}

	p.status = StatusStopped
	p.position = 0
	if err := p.pipeline.Bind(path); nil != err {
		p.source = ""
		if errutil.IsFlaw(err) {
			return err
		}
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to bind source: %v", err)).Append(flawP)
	}
	p.source = path
	return nil
}

// Unload unbinds the current source, if any.
func (p *Player) Unload() error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return nil
	}
	source := p.source
	p.source = ""
	p.status = StatusStopped
	p.position = 0
	if err := p.pipeline.Unbind(); nil != err {
		flawP := flaw.P{"source": source, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to unbind source: %v", err)).Append(flawP)
	}
	return nil
}

func (p *Player) Play() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.playLocked()
}

func (p *Player) playLocked() error {
	if p.source == "" {
		return ErrNoSource
	}

	if err := p.pipeline.SetState(PipelinePlaying); nil != err {
		flawP := flaw.P{"source": p.source, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to start playback: %v", err)).Append(flawP)
	}
	p.applyLocked()

	pos := p.position
	if q, err := p.pipeline.QueryPosition(); nil == err {
		pos = q
	} else {
		p.logger.Debug().Err(err).Msg("Failed to query position before seek. Using last known position")
	}
	if err := p.pipeline.Seek(p.speed, pos); nil != err {
		p.logger.Warn().Err(err).Dur("position", pos).Float64("speed", p.speed).Msg("Failed to seek at playback speed")
	}

	p.position = pos
	p.status = StatusPlaying
	p.emit(Event{Kind: EventStarted, Source: p.source, Position: pos, Err: nil})
	return nil
}

func (p *Player) applyLocked() {
	if err := p.pipeline.SetRemoveSilence(p.removeSilence); nil != err {
		p.logger.Warn().Err(err).Msg("Failed to apply silence removal")
	}
	if err := p.pipeline.SetVolume(p.volume); nil != err {
		p.logger.Warn().Err(err).Msg("Failed to apply volume")
	}
	if err := p.pipeline.SetAmplification(p.amplification); nil != err {
		p.logger.Warn().Err(err).Msg("Failed to apply amplification")
	}
	for i, gain := range p.equalizer {
		if err := p.pipeline.SetEqualizerBand(i, gain); nil != err {
			p.logger.Warn().Err(err).Int("band", i).Msg("Failed to apply equalizer band")
		}
	}
}

func (p *Player) Pause() error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return ErrNoSource
	}
	if err := p.pipeline.SetState(PipelinePaused); nil != err {
		flawP := flaw.P{"source": p.source, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to pause playback: %v", err)).Append(flawP)
	}
	if q, err := p.pipeline.QueryPosition(); nil == err {
		p.position = q
	}
	p.status = StatusPaused
	p.emit(Event{Kind: EventPaused, Source: p.source, Position: p.position, Err: nil})
	return nil
}

func (p *Player) Stop() error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return ErrNoSource
	}
	pos := p.position
	if q, err := p.pipeline.QueryPosition(); nil == err {
		pos = q
	}
	if err := p.pipeline.SetState(PipelineReady); nil != err {
		flawP := flaw.P{"source": p.source, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to stop playback: %v", err)).Append(flawP)
	}
	p.position = 0
	p.status = StatusStopped
	p.emit(Event{Kind: EventStopped, Source: p.source, Position: pos, Err: nil})
	return nil
}

// SetPosition seeks to pos, clamped to the source duration. Playback resumes
// if it was playing. Seek failures are logged and leave the state unchanged.
func (p *Player) SetPosition(pos time.Duration) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return ErrNoSource
	}

	pos = max(pos, 0)
	if dur, err := p.pipeline.QueryDuration(); nil == err && dur > 0 {
		pos = min(pos, dur)
	}

	wasPlaying := p.status == StatusPlaying
	if err := p.pipeline.SetState(PipelinePaused); nil != err {
		p.logger.Warn().Err(err).Msg("Failed to pause pipeline before seek")
		return nil
	}
	if err := p.pipeline.Seek(p.speed, pos); nil != err {
		p.logger.Warn().Err(err).Dur("position", pos).Msg("Failed to seek")
	} else {
		p.position = pos
	}
	if wasPlaying {
		if err := p.pipeline.SetState(PipelinePlaying); nil != err {
			p.logger.Warn().Err(err).Msg("Failed to resume playback after seek")
		}
	}
	return nil
}

// SetFraction seeks to fraction f in [0, 1] of the source duration.
func (p *Player) SetFraction(f float64) error {
	dur := p.Duration()
	if dur <= 0 {
		p.logger.Debug().Float64("fraction", f).Msg("Source duration is unknown. Ignoring seek")
		return nil
	}
	f = mathutil.Clamp(f, 0, 1)
	return p.SetPosition(time.Duration(f * float64(dur)))
}

func (p *Player) replayIfPlayingLocked() error {
	if p.status != StatusPlaying {
		return nil
	}
	return p.playLocked()
}

// SetSpeed ignores non-positive multipliers.
func (p *Player) SetSpeed(speed float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if speed <= 0 {
		return nil
	}
	p.speed = mathutil.Clamp(speed, MinSpeed, MaxSpeed)
	return p.replayIfPlayingLocked()
}

func (p *Player) SetVolume(volume float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	p.volume = mathutil.Clamp(volume, 0, MaxVolume)
	return p.replayIfPlayingLocked()
}

func (p *Player) SetAmplification(amplification float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	p.amplification = mathutil.Clamp(amplification, 0, MaxAmplification)
	return p.replayIfPlayingLocked()
}

func (p *Player) SetRemoveSilence(enabled bool) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	p.removeSilence = enabled
	return p.replayIfPlayingLocked()
}

// SetEqualizer sets gains of up to NumBands bands, clamped to the valid range.
func (p *Player) SetEqualizer(gains []float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	for i := range min(len(gains), NumBands) {
		p.equalizer[i] = mathutil.Clamp(gains[i], MinGain, MaxGain)
	}
	return p.replayIfPlayingLocked()
}

// SetEqualizerBand is a no-op when band or gain is out of range.
func (p *Player) SetEqualizerBand(band int, gain float64) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if !mathutil.InRange(band, 0, AddressableBands-1) || !mathutil.InRange(gain, MinGain, MaxGain) {
		return nil
	}
	p.equalizer[band] = gain
	return p.replayIfPlayingLocked()
}

func (p *Player) Status() Status {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.status
}

func (p *Player) Source() string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.source
}

func (p *Player) Speed() float64 {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.speed
}

func (p *Player) RemoveSilence() bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.removeSilence
}

func (p *Player) Equalizer() [NumBands]float64 {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.equalizer
}

// Position returns 0 when nothing is bound and the last known position when
// the pipeline cannot be queried.
func (p *Player) Position() time.Duration {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return 0
	}
	pos, err := p.pipeline.QueryPosition()
	if nil != err {
		p.logger.Debug().Err(err).Msg("Failed to query position")
		return p.position
	}
	return pos
}

func (p *Player) Duration() time.Duration {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.source == "" {
		return 0
	}
	dur, err := p.pipeline.QueryDuration()
	if nil != err {
		p.logger.Debug().Err(err).Msg("Failed to query duration")
		return 0
	}
	return dur
}
