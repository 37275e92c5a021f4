// Package resolver turns remote media URLs into downloadable tracks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/lplay/cache"
	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/must"
	"github.com/xeptore/lplay/ratelimit"
	"github.com/xeptore/lplay/track"
	"github.com/xeptore/lplay/waitqueue"
)

var (
	ErrInvalidURL    = errors.New("url must be an absolute http or https url")
	ErrNoAudioFormat = errors.New("no audio only format with a known size")
)

const DefaultMaxAttempts = 3

type Resolved struct {
	Track        *track.Track
	ThumbnailURL string
}

func DefaultQueueOptions() waitqueue.Options {
	return waitqueue.Options{
		Capacity: 20,
		Interval: time.Minute,
		Spacing:  500 * time.Millisecond,
	}
}

type Options struct {
	Cache       *cache.Store[*Resolved]
	Queue       *waitqueue.Queue
	MaxAttempts int
	RetryDelay  func() time.Duration
}

type Resolver struct {
	runner      Runner
	cache       *cache.Store[*Resolved]
	queue       *waitqueue.Queue
	maxAttempts int
	retryDelay  func() time.Duration
	logger      zerolog.Logger
}

func New(runner Runner, opts Options, logger zerolog.Logger) *Resolver {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if nil == opts.RetryDelay {
		opts.RetryDelay = ratelimit.ResolveRetryDelay
	}
	if nil == opts.Cache {
		opts.Cache = cache.New[*Resolved](cache.DefaultResolvedSize)
	}
	return &Resolver{
		runner:      runner,
		cache:       opts.Cache,
		queue:       opts.Queue,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		logger:      logger,
	}
}

func IsRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if nil != err {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve returns a fresh copy of the resolved track on every call, so
// callers may mutate it.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolved, error) {
	if !IsRemoteURL(rawURL) {
		return nil, ErrInvalidURL
	}

	item, err := r.cache.Fetch(rawURL, cache.DefaultResolvedTTL, func() (*Resolved, error) {
		return r.resolve(ctx, rawURL)
	})
	if nil != err {
		return nil, err
	}
	res := item.Value()
	return &Resolved{Track: res.Track.Clone(), ThumbnailURL: res.ThumbnailURL}, nil
}

func (r *Resolver) run(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ResolveTimeout)
	defer cancel()

	if nil == r.queue {
		return r.runner.Run(ctx, Args(rawURL)...)
	}
	var out []byte
	err := r.queue.Do(ctx, func() error {
		b, err := r.runner.Run(ctx, Args(rawURL)...)
		out = b
		return err
	})
	return out, err
}

func (r *Resolver) resolve(ctx context.Context, rawURL string) (*Resolved, error) {
	logger := r.logger.With().Str("url", rawURL).Logger()
	flawP := flaw.P{"url": rawURL}

	var out []byte
	err := try.Do(func(attempt int) (retry bool, err error) {
		attemptRemained := attempt < r.maxAttempts
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(r.retryDelay()):
			}
		}

		b, err := r.run(ctx, rawURL)
		if nil != err {
			var runErr *RunError
			switch {
			case errutil.IsContext(ctx):
				return false, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn().Int("attempt", attempt).Msg("Resolving timed out")
				return attemptRemained, err
			case errors.As(err, &runErr):
				if runErr.Transient() {
					logger.Warn().Int("attempt", attempt).Str("stderr", runErr.Stderr).Msg("Resolving failed with a transient error")
					return attemptRemained, err
				}
				return false, err
			default:
				return false, err
			}
		}
		out = b
		return false, nil
	})
	if nil != err {
		var runErr *RunError
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.As(err, &runErr):
			flawP["exit_code"] = runErr.ExitCode
			flawP["stderr"] = runErr.Stderr
			return nil, flaw.From(fmt.Errorf("failed to resolve url: %v", err)).Append(flawP)
		case errutil.IsFlaw(err):
			return nil, must.BeFlaw(err).Append(flawP)
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to resolve url: %v", err)).Append(flawP)
		}
	}

	res, err := Parse(rawURL, out)
	if nil != err {
		return nil, err
	}
	logger.Debug().Str("id", res.Track.ID).Str("ext", res.Track.Ext).Int64("size", res.Track.FileSize).Msg("Resolved remote track")
	return res, nil
}
