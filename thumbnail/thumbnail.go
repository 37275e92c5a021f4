// Package thumbnail stores small PNG covers for catalog tracks.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/cache"
	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/httputil"
	"github.com/xeptore/lplay/must"
)

const Size = 128

type Store struct {
	dir     string
	client  *http.Client
	cache   *cache.Store[[]byte]
	backoff func() backoff.BackOff
	logger  zerolog.Logger
}

func NewStore(dir string, client *http.Client, logger zerolog.Logger) *Store {
	return &Store{
		dir:     dir,
		client:  client,
		cache:   cache.New[[]byte](cache.DefaultThumbnailSize),
		backoff: func() backoff.BackOff { return newBackoff(config.ThumbnailDownloadTimeout) },
		logger:  logger,
	}
}

// WithBackoff replaces the retry policy of remote fetches.
func (s *Store) WithBackoff(fn func() backoff.BackOff) *Store {
	s.backoff = fn
	return s
}

func newBackoff(timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.Multiplier = 1.1
	b.MaxElapsedTime = timeout
	b.MaxInterval = 10 * time.Second
	return b
}

func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".png")
}

// FromBytes decodes an image, fits it into a Size square and writes it
// as PNG.
func (s *Store) FromBytes(id string, data []byte) (path string, err error) {
	path = s.Path(id)
	flawP := flaw.P{"id": id, "path": path, "size": len(data)}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to decode thumbnail image: %v", err)).Append(flawP)
	}
	img = imaging.Fit(img, Size, Size, imaging.Lanczos)

	if err := os.MkdirAll(s.dir, 0o0755); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to create thumbnails directory: %v", err)).Append(flawP)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o0644)
	if nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to create thumbnail file: %v", err)).Append(flawP)
	}
	defer func() {
		if nil != err {
			if removeErr := os.Remove(tmp); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
				s.logger.Warn().Err(removeErr).Str("path", tmp).Msg("Failed to remove temporary thumbnail file")
			}
		}
	}()

	if err := imaging.Encode(f, img, imaging.PNG); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		encodeErr := flaw.From(fmt.Errorf("failed to encode thumbnail: %v", err)).Append(flawP)
		if closeErr := f.Close(); nil != closeErr {
			return "", encodeErr.Join(closeErr)
		}
		return "", encodeErr
	}
	if err := f.Close(); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to close thumbnail file: %v", err)).Append(flawP)
	}
	if err := os.Rename(tmp, path); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to move thumbnail into place: %v", err)).Append(flawP)
	}
	return path, nil
}

func (s *Store) FromURL(ctx context.Context, id, url string) (string, error) {
	item, err := s.cache.Fetch(url, cache.DefaultThumbnailTTL, func() ([]byte, error) {
		return s.fetch(ctx, url)
	})
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case errutil.IsFlaw(err):
			return "", must.BeFlaw(err).Append(flaw.P{"id": id})
		default:
			flawP := flaw.P{"id": id, "url": url, "err_debug_tree": errutil.Tree(err).FlawP()}
			return "", flaw.From(fmt.Errorf("failed to fetch thumbnail: %v", err)).Append(flawP)
		}
	}
	return s.FromBytes(id, item.Value())
}

func (s *Store) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := backoff.Retry(
		func() error {
			b, err := s.get(ctx, url)
			if nil != err {
				var statusErr *httputil.StatusError
				if errors.As(err, &statusErr) && !statusErr.Retryable() {
					return backoff.Permanent(err)
				}
				if errutil.IsContext(ctx) {
					return backoff.Permanent(ctx.Err())
				}
				s.logger.Debug().Err(err).Str("url", url).Msg("Thumbnail fetch failed. Retrying")
				return err
			}
			body = b
			return nil
		},
		backoff.WithContext(s.backoff(), ctx),
	)
	return body, err
}

func (s *Store) get(ctx context.Context, url string) (body []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, config.ThumbnailDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if nil != err {
		return nil, backoff.Permanent(fmt.Errorf("failed to create thumbnail request: %v", err))
	}
	resp, err := s.client.Do(req)
	if nil != err {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr && nil == err {
			err = fmt.Errorf("failed to close thumbnail response body: %v", closeErr)
		}
	}()

	if err := httputil.CheckStatus(resp); nil != err {
		return nil, err
	}
	return httputil.ReadResponseBody(ctx, resp)
}

func (s *Store) Remove(id string) error {
	if err := os.Remove(s.Path(id)); nil != err && !errors.Is(err, os.ErrNotExist) {
		return flaw.From(fmt.Errorf("failed to remove thumbnail: %v", err)).Append(flaw.P{"id": id, "path": s.Path(id)})
	}
	return nil
}

func (s *Store) Close() {
	s.cache.Close()
}
