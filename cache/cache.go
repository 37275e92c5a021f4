package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

var (
	DefaultResolvedTTL  = 1 * time.Hour
	DefaultThumbnailTTL = 1 * time.Hour
)

const (
	DefaultResolvedSize  = 1000
	DefaultThumbnailSize = 100
)

// Store is a size bounded LRU whose Fetch is serialized, so concurrent
// misses on the same key run the fetch function once.
type Store[T any] struct {
	c   *ccache.Cache[T]
	mux sync.Mutex
}

func New[T any](maxSize int64) *Store[T] {
	return &Store[T]{
		c: ccache.New(
			ccache.Configure[T]().
				MaxSize(maxSize).
				GetsPerPromote(3).
				ItemsToPrune(1),
		),
		mux: sync.Mutex{},
	}
}

func (c *Store[T]) Fetch(k string, ttl time.Duration, fetch func() (T, error)) (*ccache.Item[T], error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.c.Fetch(k, ttl, fetch)
}

func (c *Store[T]) Delete(k string) bool {
	return c.c.Delete(k)
}

func (c *Store[T]) Close() {
	c.c.Stop()
}
