package session_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/lplay/download"
	"github.com/xeptore/lplay/metadata"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/player/playertest"
	"github.com/xeptore/lplay/resolver"
	"github.com/xeptore/lplay/session"
	"github.com/xeptore/lplay/settings"
	"github.com/xeptore/lplay/track"
)

type fakeDownloads struct {
	mux       sync.Mutex
	events    chan download.Event
	submitted []download.Request
	queued    map[string]bool
	dropped   []string
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{events: make(chan download.Event, 8), queued: make(map[string]bool)}
}

func (d *fakeDownloads) Events() <-chan download.Event { return d.events }

func (d *fakeDownloads) Submit(req download.Request) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.queued[req.TrackID] {
		return false
	}
	d.queued[req.TrackID] = true
	d.submitted = append(d.submitted, req)
	return true
}

func (d *fakeDownloads) Drop(trackID string) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.dropped = append(d.dropped, trackID)
	was := d.queued[trackID]
	delete(d.queued, trackID)
	return was
}

func (d *fakeDownloads) Submitted() []download.Request {
	d.mux.Lock()
	defer d.mux.Unlock()
	return append([]download.Request(nil), d.submitted...)
}

func (d *fakeDownloads) Dropped() []string {
	d.mux.Lock()
	defer d.mux.Unlock()
	return append([]string(nil), d.dropped...)
}

type fakeExtractor struct {
	infos map[string]*metadata.Info
	err   error
}

func (e *fakeExtractor) Extract(_ context.Context, path string) (*metadata.Info, error) {
	if nil != e.err {
		return nil, e.err
	}
	info, ok := e.infos[filepath.Base(path)]
	if !ok {
		return nil, metadata.ErrUnsupported
	}
	out := *info
	return &out, nil
}

type fakeResolver struct {
	res *resolver.Resolved
	err error
}

func (r *fakeResolver) Resolve(_ context.Context, url string) (*resolver.Resolved, error) {
	if !resolver.IsRemoteURL(url) {
		return nil, resolver.ErrInvalidURL
	}
	if nil != r.err {
		return nil, r.err
	}
	return &resolver.Resolved{Track: r.res.Track.Clone(), ThumbnailURL: r.res.ThumbnailURL}, nil
}

type fakeThumbnails struct {
	mux     sync.Mutex
	stored  []string
	removed []string
}

func (th *fakeThumbnails) FromBytes(id string, _ []byte) (string, error) {
	th.mux.Lock()
	defer th.mux.Unlock()
	th.stored = append(th.stored, id)
	return "/thumbnails/" + id + ".png", nil
}

func (th *fakeThumbnails) FromURL(_ context.Context, id, _ string) (string, error) {
	return th.FromBytes(id, nil)
}

func (th *fakeThumbnails) Remove(id string) error {
	th.mux.Lock()
	defer th.mux.Unlock()
	th.removed = append(th.removed, id)
	return nil
}

func (th *fakeThumbnails) Removed() []string {
	th.mux.Lock()
	defer th.mux.Unlock()
	return append([]string(nil), th.removed...)
}

type fixture struct {
	c          *session.Controller
	player     *player.Player
	pipeline   *playertest.Pipeline
	downloads  *fakeDownloads
	extractor  *fakeExtractor
	resolver   *fakeResolver
	thumbnails *fakeThumbnails
	store      *settings.Store
}

func newFixture(t *testing.T, configure func(s *settings.Settings), tracks ...*track.Track) *fixture {
	t.Helper()

	s := settings.Default()
	s.Audios = tracks
	if nil != configure {
		configure(s)
	}

	pipeline := playertest.New()
	for _, tr := range tracks {
		if tr.FilePath != "" {
			pipeline.SetDuration(tr.FilePath, time.Duration(tr.Duration*float64(time.Second)))
		}
	}
	p := player.New(pipeline, zerolog.Nop())
	t.Cleanup(func() { _ = p.Close() })

	f := &fixture{
		player:     p,
		pipeline:   pipeline,
		downloads:  newFakeDownloads(),
		extractor:  &fakeExtractor{infos: map[string]*metadata.Info{}},
		resolver:   &fakeResolver{},
		thumbnails: &fakeThumbnails{},
		store:      settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop()),
	}
	f.c = session.New(s, session.Deps{
		Player:     p,
		Downloads:  f.downloads,
		Extractor:  f.extractor,
		Resolver:   f.resolver,
		Thumbnails: f.thumbnails,
		Store:      f.store,
	}, session.Options{SampleInterval: 5 * time.Millisecond, FlushEvery: 3}, zerolog.Nop())
	return f
}

// start runs the session loop until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := f.c.Start(ctx)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
}

func localTrack(t *testing.T, id string, seconds float64) *track.Track {
	t.Helper()
	path := filepath.Join(t.TempDir(), id+".ogg")
	require.NoError(t, os.WriteFile(path, []byte("audio of "+id), 0o0644))
	return &track.Track{ID: id, Kind: track.KindLocal, FilePath: path, Title: id, Duration: seconds, Ext: "ogg"}
}

func remoteTrack(t *testing.T, id string, seconds float64, downloaded bool) *track.Track {
	t.Helper()
	tr := &track.Track{
		ID:          id,
		Kind:        track.KindRemote,
		Title:       id,
		Duration:    seconds,
		Ext:         "webm",
		SourceURL:   "https://www.example.com/watch?v=" + id,
		DownloadURL: "https://media.example.com/" + id,
		FileSize:    1024,
	}
	if downloaded {
		tr.FilePath = filepath.Join(t.TempDir(), id+".ogg")
		require.NoError(t, os.WriteFile(tr.FilePath, []byte("payload of "+id), 0o0644))
		tr.Downloaded = true
	}
	return tr
}

func trackByID(t *testing.T, c *session.Controller, id string) *track.Track {
	t.Helper()
	tracks, err := c.Tracks(context.Background())
	require.NoError(t, err)
	for _, tr := range tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}
