// Package mpris exposes the session on the D-Bus session bus so desktop
// media keys and applets can drive it.
package mpris

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/session"
)

const (
	BusName         = "org.mpris.MediaPlayer2.lplay"
	ObjectPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	RootInterface   = "org.mpris.MediaPlayer2"
	PlayerInterface = "org.mpris.MediaPlayer2.Player"
	PropsInterface  = "org.freedesktop.DBus.Properties"
	Identity        = "lplay"

	noTrack   = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	trackBase = "/org/mpris/MediaPlayer2/lplay/track/"
)

var ErrNameTaken = errors.New("mpris bus name is owned by another process")

// Conn is the subset of *dbus.Conn the server needs.
type Conn interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	Close() error
}

type Session interface {
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	TogglePlayback(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Snapshot(ctx context.Context) (*session.Snapshot, error)
}

type Server struct {
	conn    Conn
	session Session
	quit    func()
	logger  zerolog.Logger
}

// Connect opens a private connection to the session bus.
func Connect() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if nil != err {
		return nil, flaw.From(fmt.Errorf("failed to connect to session bus: %v", err)).Append(flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()})
	}
	return conn, nil
}

// New builds a server. quit is called when a client asks the player to exit.
func New(conn Conn, s Session, quit func(), logger zerolog.Logger) *Server {
	return &Server{
		conn:    conn,
		session: s,
		quit:    quit,
		logger:  logger,
	}
}

// Export publishes the objects and claims BusName.
func (s *Server) Export() error {
	exports := []struct {
		v     any
		iface string
	}{
		{v: &root{s}, iface: RootInterface},
		{v: &controls{s}, iface: PlayerInterface},
		{v: &properties{s}, iface: PropsInterface},
		{v: introspect.NewIntrospectable(node), iface: "org.freedesktop.DBus.Introspectable"},
	}
	for _, e := range exports {
		if err := s.conn.Export(e.v, ObjectPath, e.iface); nil != err {
			flawP := flaw.P{"interface": e.iface, "err_debug_tree": errutil.Tree(err).FlawP()}
			return flaw.From(fmt.Errorf("failed to export dbus object: %v", err)).Append(flawP)
		}
	}

	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if nil != err {
		flawP := flaw.P{"name": BusName, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to request bus name: %v", err)).Append(flawP)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrNameTaken
	}
	s.logger.Info().Str("name", BusName).Msg("Media player interface exported")
	return nil
}

func (s *Server) Close() error {
	return s.conn.Close()
}

// call runs fn against the session with a bounded deadline.
func (s *Server) call(method string, fn func(ctx context.Context) error) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), config.MediaKeyCallTimeout)
	defer cancel()

	if err := fn(ctx); nil != err {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNotPlayable):
			s.logger.Debug().Err(err).Str("method", method).Msg("Media key request ignored")
			return nil
		case errutil.IsContext(ctx):
			s.logger.Warn().Str("method", method).Msg("Media key request timed out")
		default:
			s.logger.Error().Func(log.Flaw(err)).Str("method", method).Msg("Media key request failed")
		}
		return dbus.MakeFailedError(err)
	}
	return nil
}

type root struct{ s *Server }

func (r *root) Raise() *dbus.Error {
	return nil
}

func (r *root) Quit() *dbus.Error {
	r.s.logger.Info().Msg("Quit requested over media player interface")
	if nil != r.s.quit {
		r.s.quit()
	}
	return nil
}

type controls struct{ s *Server }

func (c *controls) Play() *dbus.Error      { return c.s.call("Play", c.s.session.Resume) }
func (c *controls) Pause() *dbus.Error     { return c.s.call("Pause", c.s.session.Pause) }
func (c *controls) PlayPause() *dbus.Error { return c.s.call("PlayPause", c.s.session.TogglePlayback) }
func (c *controls) Stop() *dbus.Error      { return c.s.call("Stop", c.s.session.Stop) }
func (c *controls) Next() *dbus.Error      { return c.s.call("Next", c.s.session.Next) }
func (c *controls) Previous() *dbus.Error  { return c.s.call("Previous", c.s.session.Previous) }

type properties struct{ s *Server }

func (p *properties) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	all, dErr := p.GetAll(iface)
	if nil != dErr {
		return dbus.Variant{}, dErr
	}
	v, ok := all[name]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property %s.%s", iface, name))
	}
	return v, nil
}

func (p *properties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case RootInterface:
		return map[string]dbus.Variant{
			"Identity":            dbus.MakeVariant(Identity),
			"CanQuit":             dbus.MakeVariant(true),
			"CanRaise":            dbus.MakeVariant(false),
			"HasTrackList":        dbus.MakeVariant(false),
			"SupportedUriSchemes": dbus.MakeVariant([]string{"file", "https"}),
			"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/ogg", "audio/flac", "audio/mp4"}),
		}, nil
	case PlayerInterface:
		ctx, cancel := context.WithTimeout(context.Background(), config.MediaKeyCallTimeout)
		defer cancel()
		snap, err := p.s.session.Snapshot(ctx)
		if nil != err {
			return nil, dbus.MakeFailedError(err)
		}
		return map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant(PlaybackStatus(snap.Status)),
			"Metadata":       dbus.MakeVariant(Metadata(snap)),
			"Rate":           dbus.MakeVariant(snap.Speed),
			"CanGoNext":      dbus.MakeVariant(len(snap.Tracks) > 0),
			"CanGoPrevious":  dbus.MakeVariant(len(snap.Tracks) > 0),
			"CanPlay":        dbus.MakeVariant(len(snap.Tracks) > 0),
			"CanPause":       dbus.MakeVariant(nil != snap.Active),
			"CanSeek":        dbus.MakeVariant(false),
			"CanControl":     dbus.MakeVariant(true),
		}, nil
	default:
		return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface %s", iface))
	}
}

func (p *properties) Set(iface, name string, _ dbus.Variant) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("property %s.%s is read-only", iface, name))
}

func PlaybackStatus(s player.Status) string {
	switch s {
	case player.StatusPlaying:
		return "Playing"
	case player.StatusPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Metadata describes the active track using xesam keys.
func Metadata(snap *session.Snapshot) map[string]dbus.Variant {
	t := snap.Active
	if nil == t {
		return map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrack)}
	}

	length := snap.Duration.Microseconds()
	if length <= 0 {
		length = int64(t.Duration * 1e6)
	}
	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(TrackPath(t.ID)),
		"mpris:length":  dbus.MakeVariant(length),
		"xesam:title":   dbus.MakeVariant(t.Title),
	}
	if t.Artist != "" {
		out["xesam:artist"] = dbus.MakeVariant([]string{t.Artist})
	}
	if t.Album != "" {
		out["xesam:album"] = dbus.MakeVariant(t.Album)
	}
	if t.Thumbnail != "" {
		out["mpris:artUrl"] = dbus.MakeVariant("file://" + t.Thumbnail)
	}
	if t.SourceURL != "" {
		out["xesam:url"] = dbus.MakeVariant(t.SourceURL)
	}
	return out
}

// TrackPath maps a track id onto a valid object path element.
func TrackPath(id string) dbus.ObjectPath {
	elem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if elem == "" {
		return noTrack
	}
	return dbus.ObjectPath(trackBase + elem)
}
