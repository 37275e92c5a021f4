// Package session ties the catalog to the player and the download manager.
// All catalog and player mutation happens on the goroutine running Run, or
// inline under a lock when no loop is running.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/lplay/catalog"
	"github.com/xeptore/lplay/download"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/metadata"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/resolver"
	"github.com/xeptore/lplay/settings"
	"github.com/xeptore/lplay/track"
)

var (
	ErrNotFound      = errors.New("track not found")
	ErrNotPlayable   = errors.New("track is not downloaded")
	ErrMissingFile   = errors.New("track file is missing and the track was removed")
	ErrNotRemote     = errors.New("track is not a remote track")
	ErrNoPlayer      = errors.New("session has no player")
	ErrNoDownloads   = errors.New("session has no download manager")
	ErrUnknownPreset = errors.New("unknown equalizer preset")
	ErrStopped       = errors.New("session loop has stopped")
	ErrRunning       = errors.New("session loop is already running")
)

// EndFraction is the played fraction at which a sample counts as the end of
// the track.
const EndFraction = 0.99

const (
	DefaultSampleInterval = time.Second
	DefaultFlushEvery     = 10
)

type Player interface {
	Events() <-chan player.Event
	SetSource(path string) error
	Unload() error
	Play() error
	Pause() error
	Stop() error
	SetFraction(f float64) error
	SetSpeed(speed float64) error
	SetVolume(volume float64) error
	SetAmplification(amplification float64) error
	SetRemoveSilence(enabled bool) error
	SetEqualizer(gains []float64) error
	SetEqualizerBand(band int, gain float64) error
	Status() player.Status
	Source() string
	Position() time.Duration
	Duration() time.Duration
}

type Downloads interface {
	Events() <-chan download.Event
	Submit(req download.Request) bool
	Drop(trackID string) bool
}

type Resolver interface {
	Resolve(ctx context.Context, url string) (*resolver.Resolved, error)
}

type Thumbnails interface {
	FromBytes(id string, data []byte) (string, error)
	FromURL(ctx context.Context, id, url string) (string, error)
	Remove(id string) error
}

type Store interface {
	Save(v *settings.Settings) error
}

// Deps are the collaborators of a Controller. Player and Downloads may be
// nil for commands that only edit the catalog.
type Deps struct {
	Player     Player
	Downloads  Downloads
	Extractor  metadata.Extractor
	Resolver   Resolver
	Thumbnails Thumbnails
	Store      Store
}

type Options struct {
	SampleInterval time.Duration
	FlushEvery     int
}

type Progress struct {
	TrackID  string
	Position time.Duration
	Duration time.Duration
	Fraction float64
}

type Controller struct {
	settings   *settings.Settings
	catalog    *catalog.Catalog
	active     string
	player     Player
	downloads  Downloads
	extractor  metadata.Extractor
	resolver   Resolver
	thumbnails Thumbnails
	store      Store

	sampleInterval time.Duration
	flushEvery     int
	samples        int
	ticker         *time.Ticker
	tickC          <-chan time.Time

	observersMux      sync.Mutex
	observers         []func(Progress)
	downloadObservers []func(download.Event)

	inbox   chan func()
	running atomic.Bool
	done    chan struct{}
	inline  sync.Mutex
	logger  zerolog.Logger
}

func New(s *settings.Settings, deps Deps, opts Options, logger zerolog.Logger) *Controller {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}

	c := &Controller{
		settings:          s,
		catalog:           catalog.New(s.Audios),
		active:            "",
		player:            deps.Player,
		downloads:         deps.Downloads,
		extractor:         deps.Extractor,
		resolver:          deps.Resolver,
		thumbnails:        deps.Thumbnails,
		store:             deps.Store,
		sampleInterval:    opts.SampleInterval,
		flushEvery:        opts.FlushEvery,
		samples:           0,
		ticker:            nil,
		tickC:             nil,
		observersMux:      sync.Mutex{},
		observers:         nil,
		downloadObservers: nil,
		inbox:             make(chan func(), 16),
		running:           atomic.Bool{},
		done:              make(chan struct{}),
		inline:            sync.Mutex{},
		logger:            logger,
	}
	c.applyPlayerSettings()
	return c
}

func (c *Controller) applyPlayerSettings() {
	if nil == c.player {
		return
	}
	s := c.settings
	for _, err := range []error{
		c.player.SetSpeed(s.Speed),
		c.player.SetVolume(s.Volume),
		c.player.SetAmplification(s.Amplification),
		c.player.SetRemoveSilence(s.RemoveSilence),
		c.player.SetEqualizer(s.Equalizer.Gains()),
	} {
		if nil != err {
			c.logger.Warn().Func(log.Flaw(err)).Msg("Failed to apply persisted setting to player")
		}
	}
}

// OnProgress registers fn to be called with every position sample. fn runs
// on the session loop and must not block.
func (c *Controller) OnProgress(fn func(Progress)) {
	c.observersMux.Lock()
	defer c.observersMux.Unlock()
	c.observers = append(c.observers, fn)
}

// OnDownload registers fn to be called with every download event after the
// catalog has been updated for it. fn runs on the session loop and must not
// call back into the controller.
func (c *Controller) OnDownload(fn func(download.Event)) {
	c.observersMux.Lock()
	defer c.observersMux.Unlock()
	c.downloadObservers = append(c.downloadObservers, fn)
}

func (c *Controller) notifyDownload(ev download.Event) {
	c.observersMux.Lock()
	observers := c.downloadObservers
	c.observersMux.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func (c *Controller) notify(p Progress) {
	c.observersMux.Lock()
	observers := c.observers
	c.observersMux.Unlock()
	for _, fn := range observers {
		fn(p)
	}
}

// Run drives the session until ctx is canceled, then flushes state.
func (c *Controller) Run(ctx context.Context) error {
	return <-c.Start(ctx)
}

// Start runs the loop on a new goroutine. Calls made after Start returns
// are served by the loop. The returned channel yields the result of the
// loop once it stops.
func (c *Controller) Start(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	if !c.running.CompareAndSwap(false, true) {
		errc <- ErrRunning
		return errc
	}
	go func() { errc <- c.loop(ctx) }()
	return errc
}

func (c *Controller) loop(ctx context.Context) error {
	defer close(c.done)
	defer c.running.Store(false)
	defer c.stopTicker()

	var playerEvents <-chan player.Event
	if nil != c.player {
		playerEvents = c.player.Events()
	}
	var downloadEvents <-chan download.Event
	if nil != c.downloads {
		downloadEvents = c.downloads.Events()
	}

	c.logger.Debug().Int("tracks", c.catalog.Len()).Msg("Session loop started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Debug().Msg("Session loop stopped")
			return nil
		case fn := <-c.inbox:
			fn()
		case ev, ok := <-playerEvents:
			if !ok {
				playerEvents = nil
				continue
			}
			c.onPlayerEvent(ev)
		case ev, ok := <-downloadEvents:
			if !ok {
				downloadEvents = nil
				continue
			}
			c.onDownloadEvent(ev)
			c.notifyDownload(ev)
		case <-c.tickC:
			c.sample()
		}
	}
}

// Call runs fn on the session loop and waits for its result. Without a
// running loop fn runs on the caller goroutine.
func (c *Controller) Call(ctx context.Context, fn func() error) error {
	if !c.running.Load() {
		c.inline.Lock()
		defer c.inline.Unlock()
		return fn()
	}

	errc := make(chan error, 1)
	select {
	case c.inbox <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post schedules fn on the session loop without waiting for it.
func (c *Controller) Post(fn func()) {
	if !c.running.Load() {
		c.inline.Lock()
		defer c.inline.Unlock()
		fn()
		return
	}
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *Controller) persist() {
	c.settings.Audios = c.catalog.Tracks()
	if err := c.store.Save(c.settings); nil != err {
		c.logger.Error().Func(log.Flaw(err)).Msg("Failed to persist settings")
	}
}

func (c *Controller) startTicker() {
	if nil != c.ticker {
		return
	}
	c.samples = 0
	c.ticker = time.NewTicker(c.sampleInterval)
	c.tickC = c.ticker.C
}

func (c *Controller) stopTicker() {
	if nil == c.ticker {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tickC = nil
}

func (c *Controller) shutdown() {
	c.stopTicker()
	if t, ok := c.activeTrack(); ok && nil != c.player && c.player.Status() != player.StatusStopped {
		c.recordPosition(t)
	}
	c.persist()
}

type Snapshot struct {
	Status           player.Status
	Active           *track.Track
	Selected         int
	Position         time.Duration
	Duration         time.Duration
	Tracks           []*track.Track
	Speed            float64
	Equalizer        []float64
	Preset           string
	RemoveSilence    bool
	PlayContinuously bool
	DownloadOnAdded  bool
	RemoveOnListened bool
}

func (c *Controller) snapshot() *Snapshot {
	s := &Snapshot{
		Status:           player.StatusStopped,
		Active:           nil,
		Selected:         c.settings.Row,
		Position:         0,
		Duration:         0,
		Tracks:           c.catalog.Tracks(),
		Speed:            c.settings.Speed,
		Equalizer:        c.settings.Equalizer.Gains(),
		Preset:           c.settings.Preset,
		RemoveSilence:    c.settings.RemoveSilence,
		PlayContinuously: c.settings.PlayContinuously,
		DownloadOnAdded:  c.settings.DownloadOnAdded,
		RemoveOnListened: c.settings.RemoveOnListened,
	}
	if t, ok := c.activeTrack(); ok {
		s.Active = t.Clone()
		if nil != c.player {
			s.Status = c.player.Status()
			s.Position = c.player.Position()
			s.Duration = c.player.Duration()
		}
	}
	return s
}

func (c *Controller) Snapshot(ctx context.Context) (*Snapshot, error) {
	var s *Snapshot
	err := c.Call(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Flush persists the catalog and settings.
func (c *Controller) Flush(ctx context.Context) error {
	return c.Call(ctx, func() error {
		c.persist()
		return nil
	})
}
