package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
)

const (
	DefaultMaxConcurrent = 4
	DefaultMaxAttempts   = 3
)

// Fetcher performs one job end to end and returns the path of the playable
// output file.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
	EventAbandoned
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind    EventKind
	TrackID string
	JobID   string
	Attempt int
	Path    string
	Err     error
}

type Options struct {
	MaxConcurrent int
	MaxAttempts   int
	Order         Order
}

// Manager runs download jobs on a bounded set of goroutines. It reports
// progress only through Events and never touches catalog state.
type Manager struct {
	mux     sync.Mutex
	queue   *queue
	fetcher Fetcher
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	logger  zerolog.Logger
}

func NewManager(fetcher Fetcher, opts Options, logger zerolog.Logger) *Manager {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		mux:     sync.Mutex{},
		queue:   newQueue(opts.MaxConcurrent, opts.MaxAttempts, opts.Order),
		fetcher: fetcher,
		events:  make(chan Event, 4*opts.MaxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
		wg:      sync.WaitGroup{},
		closed:  false,
		logger:  logger,
	}
}

func (m *Manager) Events() <-chan Event {
	return m.events
}

// Submit schedules req. It returns false if the track is already running or
// pending, or the manager is closed.
func (m *Manager) Submit(req Request) bool {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.closed {
		return false
	}

	job := &Job{
		ID:      uuid.NewString(),
		Request: req,
		State:   StateQueued,
		Attempt: 0,
	}
	accepted, start := m.queue.submit(job)
	if !accepted {
		m.logger.Debug().Str("track_id", req.TrackID).Msg("Track already has a download job")
		return false
	}
	m.logger.Debug().Str("job_id", job.ID).Str("track_id", req.TrackID).Msg("Download job submitted")
	m.startLocked(start)
	return true
}

// Drop removes a queued job of trackID. Running jobs are left alone.
func (m *Manager) Drop(trackID string) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.queue.drop(trackID)
}

// Jobs returns copies of the running and pending jobs.
func (m *Manager) Jobs() (running []Job, pending []Job) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.queue.snapshot()
}

// Close cancels running jobs, waits for their goroutines and closes the event
// channel.
func (m *Manager) Close() {
	m.mux.Lock()
	if m.closed {
		m.mux.Unlock()
		return
	}
	m.closed = true
	m.mux.Unlock()

	m.cancel()
	m.wg.Wait()
	close(m.events)
}

func (m *Manager) startLocked(jobs []*Job) {
	if m.closed {
		return
	}
	for _, j := range jobs {
		m.wg.Add(1)
		go m.run(*j)
	}
}

func (m *Manager) run(job Job) {
	defer m.wg.Done()

	logger := m.logger.With().Str("job_id", job.ID).Str("track_id", job.Request.TrackID).Int("attempt", job.Attempt).Logger()
	logger.Info().Msg("Download job started")
	m.emit(Event{Kind: EventStarted, TrackID: job.Request.TrackID, JobID: job.ID, Attempt: job.Attempt, Path: "", Err: nil})

	path, err := m.fetch(job)

	m.mux.Lock()
	if nil != err {
		_, abandoned, start := m.queue.fail(job.Request.TrackID)
		m.mux.Unlock()

		switch {
		case errutil.IsContext(m.ctx):
			logger.Debug().Msg("Download job canceled")
		case errutil.IsFlaw(err):
			logger.Error().Func(log.Flaw(err)).Msg("Download job failed")
		default:
			logger.Error().Err(err).Msg("Download job failed")
		}

		m.emit(Event{Kind: EventFailed, TrackID: job.Request.TrackID, JobID: job.ID, Attempt: job.Attempt, Path: "", Err: err})
		if abandoned {
			logger.Warn().Msg("Download job abandoned after reaching maximum attempts")
			m.emit(Event{Kind: EventAbandoned, TrackID: job.Request.TrackID, JobID: job.ID, Attempt: job.Attempt, Path: "", Err: err})
		}

		// Started only after the failure is out, so a retry that completes
		// right away cannot overtake it.
		m.mux.Lock()
		m.startLocked(start)
		m.mux.Unlock()
		return
	}

	_, start := m.queue.succeed(job.Request.TrackID)
	m.startLocked(start)
	m.mux.Unlock()

	logger.Info().Str("path", path).Msg("Download job completed")
	m.emit(Event{Kind: EventCompleted, TrackID: job.Request.TrackID, JobID: job.ID, Attempt: job.Attempt, Path: path, Err: nil})
}

func (m *Manager) fetch(job Job) (path string, err error) {
	defer func() {
		if r := recover(); nil != r {
			m.logger.Error().Func(log.Panic(r)).Str("job_id", job.ID).Msg("Recovered from download job panic")
			err = flaw.From(errors.New("download job panicked")).Append(job.FlawP())
		}
	}()
	return m.fetcher.Fetch(m.ctx, job.Request)
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
		// Close is waiting for this goroutine; consumers may be gone.
		select {
		case m.events <- ev:
		default:
		}
	}
}
