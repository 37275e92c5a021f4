// Package catalog holds the ordered playlist. Insertion order is playback
// order and every track identity appears at most once.
//
// A Catalog is not safe for concurrent use; it is owned by the playback
// session loop.
package catalog

import (
	"github.com/samber/lo"

	"github.com/xeptore/lplay/track"
)

type Catalog struct {
	tracks []*track.Track
	index  map[string]int
}

// New builds a catalog from persisted tracks. Later duplicates are dropped.
func New(tracks []*track.Track) *Catalog {
	c := &Catalog{
		tracks: make([]*track.Track, 0, len(tracks)),
		index:  make(map[string]int, len(tracks)),
	}
	for _, t := range tracks {
		if nil == t {
			continue
		}
		c.Add(t)
	}
	return c
}

// Add appends t unless a track with the same identity exists, in which case
// the existing entry is returned and added is false.
func (c *Catalog) Add(t *track.Track) (entry *track.Track, added bool) {
	if i, ok := c.index[t.ID]; ok {
		return c.tracks[i], false
	}
	c.index[t.ID] = len(c.tracks)
	c.tracks = append(c.tracks, t)
	return t, true
}

func (c *Catalog) Remove(id string) (*track.Track, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	removed := c.tracks[i]
	c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.tracks); j++ {
		c.index[c.tracks[j].ID] = j
	}
	return removed, true
}

func (c *Catalog) Get(id string) (*track.Track, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.tracks[i], true
}

// IndexOf returns the position of id, or -1.
func (c *Catalog) IndexOf(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

func (c *Catalog) At(i int) (*track.Track, bool) {
	if i < 0 || i >= len(c.tracks) {
		return nil, false
	}
	return c.tracks[i], true
}

func (c *Catalog) Len() int {
	return len(c.tracks)
}

// Update replaces the stored entry with the same identity as t.
func (c *Catalog) Update(t *track.Track) bool {
	i, ok := c.index[t.ID]
	if !ok {
		return false
	}
	c.tracks[i] = t
	return true
}

// Tracks returns a deep snapshot in playback order.
func (c *Catalog) Tracks() []*track.Track {
	return lo.Map(c.tracks, func(t *track.Track, _ int) *track.Track { return t.Clone() })
}

func (c *Catalog) Filter(keep func(t *track.Track) bool) []*track.Track {
	return lo.Filter(c.tracks, func(t *track.Track, _ int) bool { return keep(t) })
}

// NextIndex wraps around the end. With no current index it starts at 0.
func (c *Catalog) NextIndex(i int) int {
	n := len(c.tracks)
	switch {
	case n == 0:
		return -1
	case i < 0 || i >= n:
		return 0
	default:
		return (i + 1) % n
	}
}

// PreviousIndex wraps around the start. With no current index it starts at
// the last entry.
func (c *Catalog) PreviousIndex(i int) int {
	n := len(c.tracks)
	switch {
	case n == 0:
		return -1
	case i < 0 || i >= n:
		return n - 1
	default:
		return (i - 1 + n) % n
	}
}
