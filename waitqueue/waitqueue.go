// Package waitqueue paces calls to an external service: at most Capacity
// units start within any sliding Interval, and consecutive starts are at
// least Spacing apart.
package waitqueue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrExceedsCapacity = errors.New("requested units exceed wait queue interval capacity")

type Options struct {
	Capacity int
	Interval time.Duration
	Spacing  time.Duration
}

type slot struct {
	at    time.Time
	units int
}

type Queue struct {
	opts  Options
	mux   sync.Mutex
	slots []*slot
	next  time.Time
	now   func() time.Time
}

func New(opts Options) *Queue {
	return &Queue{
		opts:  opts,
		mux:   sync.Mutex{},
		slots: nil,
		next:  time.Time{},
		now:   time.Now,
	}
}

// Do runs fn once a single unit is available.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	return q.DoN(ctx, 1, fn)
}

// DoN waits until n units fit in the current window, then runs fn. Units of
// a failed fn are handed back.
func (q *Queue) DoN(ctx context.Context, n int, fn func() error) error {
	if n > q.opts.Capacity {
		return ErrExceedsCapacity
	}

	s, err := q.reserve(ctx, n)
	if nil != err {
		return err
	}
	if err := fn(); nil != err {
		q.release(s)
		return err
	}
	return nil
}

func (q *Queue) reserve(ctx context.Context, n int) (*slot, error) {
	for {
		wait, s := q.tryReserve(n)
		if nil != s {
			return s, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryReserve either books n units now or reports how long to wait before
// trying again.
func (q *Queue) tryReserve(n int) (time.Duration, *slot) {
	q.mux.Lock()
	defer q.mux.Unlock()

	now := q.now()
	q.slots = slices.DeleteFunc(q.slots, func(s *slot) bool { return !s.at.Add(q.opts.Interval).After(now) })

	if wait := q.next.Sub(now); wait > 0 {
		return wait, nil
	}

	used := 0
	for _, s := range q.slots {
		used += s.units
	}
	if used+n > q.opts.Capacity {
		return q.slots[0].at.Add(q.opts.Interval).Sub(now), nil
	}

	s := &slot{at: now, units: n}
	q.slots = append(q.slots, s)
	q.next = now.Add(q.opts.Spacing)
	return 0, s
}

func (q *Queue) release(s *slot) {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.slots = slices.DeleteFunc(q.slots, func(other *slot) bool { return other == s })
}
