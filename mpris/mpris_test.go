package mpris_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/lplay/mpris"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/session"
	"github.com/xeptore/lplay/track"
)

type fakeConn struct {
	objects map[string]any
	reply   dbus.RequestNameReply
	names   []string
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{objects: map[string]any{}, reply: dbus.RequestNameReplyPrimaryOwner}
}

func (c *fakeConn) Export(v any, path dbus.ObjectPath, iface string) error {
	if path != mpris.ObjectPath {
		return errors.New("unexpected path")
	}
	c.objects[iface] = v
	return nil
}

func (c *fakeConn) RequestName(name string, _ dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	c.names = append(c.names, name)
	return c.reply, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeSession struct {
	mux   sync.Mutex
	calls []string
	err   error
	snap  *session.Snapshot
}

func (s *fakeSession) record(name string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.calls = append(s.calls, name)
	return s.err
}

func (s *fakeSession) Resume(context.Context) error         { return s.record("resume") }
func (s *fakeSession) Pause(context.Context) error          { return s.record("pause") }
func (s *fakeSession) TogglePlayback(context.Context) error { return s.record("toggle") }
func (s *fakeSession) Stop(context.Context) error           { return s.record("stop") }
func (s *fakeSession) Next(context.Context) error           { return s.record("next") }
func (s *fakeSession) Previous(context.Context) error       { return s.record("previous") }

func (s *fakeSession) Snapshot(context.Context) (*session.Snapshot, error) {
	return s.snap, s.err
}

func exported(t *testing.T, sess *fakeSession, quit func()) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	srv := mpris.New(conn, sess, quit, zerolog.Nop())
	require.NoError(t, srv.Export())
	return conn
}

type playerControls interface {
	Play() *dbus.Error
	Pause() *dbus.Error
	PlayPause() *dbus.Error
	Stop() *dbus.Error
	Next() *dbus.Error
	Previous() *dbus.Error
}

type propertyGetter interface {
	Get(iface, name string) (dbus.Variant, *dbus.Error)
	GetAll(iface string) (map[string]dbus.Variant, *dbus.Error)
}

func TestExport(t *testing.T) {
	t.Parallel()

	conn := exported(t, &fakeSession{}, nil)
	assert.Equal(t, []string{mpris.BusName}, conn.names)
	for _, iface := range []string{mpris.RootInterface, mpris.PlayerInterface, mpris.PropsInterface, "org.freedesktop.DBus.Introspectable"} {
		assert.Contains(t, conn.objects, iface)
	}
}

func TestExportNameTaken(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.reply = dbus.RequestNameReplyExists
	srv := mpris.New(conn, &fakeSession{}, nil, zerolog.Nop())
	require.ErrorIs(t, srv.Export(), mpris.ErrNameTaken)

	require.NoError(t, srv.Close())
	assert.True(t, conn.closed)
}

func TestControlsForwardToSession(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	conn := exported(t, sess, nil)
	controls, ok := conn.objects[mpris.PlayerInterface].(playerControls)
	require.True(t, ok)

	assert.Nil(t, controls.Play())
	assert.Nil(t, controls.Pause())
	assert.Nil(t, controls.PlayPause())
	assert.Nil(t, controls.Stop())
	assert.Nil(t, controls.Next())
	assert.Nil(t, controls.Previous())
	assert.Equal(t, []string{"resume", "pause", "toggle", "stop", "next", "previous"}, sess.calls)
}

func TestControlErrors(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{err: session.ErrNotFound}
	conn := exported(t, sess, nil)
	controls := conn.objects[mpris.PlayerInterface].(playerControls)
	assert.Nil(t, controls.Next(), "empty catalog is not a bus error")

	sess.err = errors.New("pipeline is gone")
	dErr := controls.Play()
	require.NotNil(t, dErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", dErr.Name)
}

func TestQuit(t *testing.T) {
	t.Parallel()

	quit := make(chan struct{})
	conn := exported(t, &fakeSession{}, func() { close(quit) })
	r := conn.objects[mpris.RootInterface].(interface{ Quit() *dbus.Error })
	assert.Nil(t, r.Quit())

	select {
	case <-quit:
	case <-time.After(time.Second):
		require.FailNow(t, "quit was not called")
	}
}

func TestProperties(t *testing.T) {
	t.Parallel()

	active := &track.Track{ID: "dQw4w9WgXcQ-x", Kind: track.KindRemote, Title: "Song", Artist: "Band", Album: "Record", Duration: 212, Thumbnail: "/data/thumbnails/a.png"}
	sess := &fakeSession{snap: &session.Snapshot{
		Status:   player.StatusPaused,
		Active:   active,
		Duration: 212 * time.Second,
		Tracks:   []*track.Track{active},
		Speed:    1.25,
	}}
	conn := exported(t, sess, nil)
	props := conn.objects[mpris.PropsInterface].(propertyGetter)

	status, dErr := props.Get(mpris.PlayerInterface, "PlaybackStatus")
	require.Nil(t, dErr)
	assert.Equal(t, "Paused", status.Value())

	v, dErr := props.Get(mpris.PlayerInterface, "Metadata")
	require.Nil(t, dErr)
	md, ok := v.Value().(map[string]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, dbus.ObjectPath("/org/mpris/MediaPlayer2/lplay/track/dQw4w9WgXcQ_x"), md["mpris:trackid"].Value())
	assert.Equal(t, "Song", md["xesam:title"].Value())
	assert.Equal(t, []string{"Band"}, md["xesam:artist"].Value())
	assert.Equal(t, int64(212_000_000), md["mpris:length"].Value())
	assert.Equal(t, "file:///data/thumbnails/a.png", md["mpris:artUrl"].Value())

	identity, dErr := props.Get(mpris.RootInterface, "Identity")
	require.Nil(t, dErr)
	assert.Equal(t, mpris.Identity, identity.Value())

	_, dErr = props.Get(mpris.PlayerInterface, "Shuffle")
	require.NotNil(t, dErr)
	_, dErr = props.GetAll("org.example.Unknown")
	require.NotNil(t, dErr)
}

func TestMetadataWithoutActiveTrack(t *testing.T) {
	t.Parallel()

	md := mpris.Metadata(&session.Snapshot{Status: player.StatusStopped})
	assert.Equal(t, dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack"), md["mpris:trackid"].Value())
	assert.Len(t, md, 1)
}

func TestPlaybackStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Playing", mpris.PlaybackStatus(player.StatusPlaying))
	assert.Equal(t, "Paused", mpris.PlaybackStatus(player.StatusPaused))
	assert.Equal(t, "Stopped", mpris.PlaybackStatus(player.StatusStopped))
}
