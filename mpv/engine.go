// Package mpv implements player.Pipeline on top of an mpv process driven
// through its JSON IPC socket.
package mpv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/player"
)

const eofObserverID = 1

var ErrClosed = errors.New("mpv connection is closed")

type CommandError struct {
	Command []any
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpv command %v failed: %s", e.Command, e.Message)
}

type Options struct {
	Path   string
	Socket string
}

type Engine struct {
	cmd       *exec.Cmd
	conn      net.Conn
	writeMux  sync.Mutex
	mux       sync.Mutex
	pending   map[int64]chan gjson.Result
	loaded    chan error
	source    string
	filters   filterChain
	appliedAF string
	closeErr  error
	nextID    atomic.Int64
	messages  chan player.Message
	readDone  chan struct{}
	logger    zerolog.Logger
}

func Args(socket string) []string {
	return []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--keep-open=yes",
		"--audio-display=no",
		"--input-ipc-server=" + socket,
	}
}

// Start spawns mpv and connects to its IPC socket.
func Start(ctx context.Context, opts Options, logger zerolog.Logger) (*Engine, error) {
	flawP := flaw.P{"path": opts.Path, "socket": opts.Socket}

	if err := os.MkdirAll(filepath.Dir(opts.Socket), 0o0755); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create socket directory: %v", err)).Append(flawP)
	}
	if err := os.Remove(opts.Socket); nil != err && !errors.Is(err, os.ErrNotExist) {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to remove stale socket: %v", err)).Append(flawP)
	}

	//nolint:gosec
	cmd := exec.Command(opts.Path, Args(opts.Socket)...)
	if err := cmd.Start(); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		flawP["cmd"] = cmd.String()
		return nil, flaw.From(fmt.Errorf("failed to start mpv: %v", err)).Append(flawP)
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.PipelineDialTimeout)
	defer cancel()

	var conn net.Conn
	err := backoff.Retry(
		func() error {
			c, err := (&net.Dialer{}).DialContext(dialCtx, "unix", opts.Socket)
			if nil != err {
				return err
			}
			conn = c
			return nil
		},
		backoff.WithContext(newBackoff(), dialCtx),
	)
	if nil != err {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to connect to mpv socket: %v", err)).Append(flawP)
	}

	e := Attach(conn, logger)
	e.cmd = cmd
	if err := e.observeEOF(); nil != err {
		_ = e.Close()
		return nil, err
	}
	logger.Debug().Int("pid", cmd.Process.Pid).Str("socket", opts.Socket).Msg("mpv started")
	return e, nil
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 1.5
	b.MaxInterval = time.Second
	b.MaxElapsedTime = config.PipelineDialTimeout
	return b
}

// Attach drives an mpv instance over an established IPC connection.
func Attach(conn net.Conn, logger zerolog.Logger) *Engine {
	e := &Engine{
		cmd:       nil,
		conn:      conn,
		writeMux:  sync.Mutex{},
		mux:       sync.Mutex{},
		pending:   make(map[int64]chan gjson.Result),
		loaded:    nil,
		source:    "",
		filters:   filterChain{removeSilence: false, amplification: 1, bands: [player.NumBands]float64{}},
		appliedAF: "",
		closeErr:  nil,
		nextID:    atomic.Int64{},
		messages:  make(chan player.Message, 4),
		readDone:  make(chan struct{}),
		logger:    logger,
	}
	go e.read()
	return e
}

func (e *Engine) observeEOF() error {
	_, err := e.request("observe_property", eofObserverID, "eof-reached")
	return err
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

func (e *Engine) request(args ...any) (gjson.Result, error) {
	id := e.nextID.Add(1)
	ch := make(chan gjson.Result, 1)

	e.mux.Lock()
	if nil != e.closeErr {
		e.mux.Unlock()
		return gjson.Result{}, e.closeErr
	}
	e.pending[id] = ch
	e.mux.Unlock()
	defer func() {
		e.mux.Lock()
		delete(e.pending, id)
		e.mux.Unlock()
	}()

	payload, err := json.Marshal(request{Command: args, RequestID: id})
	if nil != err {
		return gjson.Result{}, fmt.Errorf("failed to encode mpv command: %v", err)
	}

	e.writeMux.Lock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(config.PipelineRequestTimeout))
	_, err = e.conn.Write(append(payload, '\n'))
	e.writeMux.Unlock()
	if nil != err {
		return gjson.Result{}, fmt.Errorf("failed to write mpv command: %v", err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return gjson.Result{}, ErrClosed
		}
		if msg := res.Get("error").String(); msg != "success" {
			return gjson.Result{}, &CommandError{Command: args, Message: msg}
		}
		return res.Get("data"), nil
	case <-time.After(config.PipelineRequestTimeout):
		return gjson.Result{}, fmt.Errorf("mpv command %v timed out", args)
	}
}

func (e *Engine) read() {
	defer close(e.readDone)
	defer close(e.messages)

	r := bufio.NewReader(e.conn)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			e.dispatch(gjson.ParseBytes(line))
		}
		if nil != err {
			e.mux.Lock()
			if nil == e.closeErr {
				e.closeErr = ErrClosed
				e.logger.Debug().Err(err).Msg("mpv connection read loop stopped")
			}
			for id, ch := range e.pending {
				close(ch)
				delete(e.pending, id)
			}
			if nil != e.loaded {
				e.loaded <- ErrClosed
				e.loaded = nil
			}
			e.mux.Unlock()
			return
		}
	}
}

func (e *Engine) dispatch(msg gjson.Result) {
	if event := msg.Get("event"); event.Exists() {
		e.handleEvent(event.String(), msg)
		return
	}
	id := msg.Get("request_id").Int()
	e.mux.Lock()
	ch, ok := e.pending[id]
	e.mux.Unlock()
	if ok {
		ch <- msg
	}
}

func (e *Engine) handleEvent(name string, msg gjson.Result) {
	e.mux.Lock()
	source := e.source
	loaded := e.loaded
	e.mux.Unlock()

	switch name {
	case "file-loaded":
		e.signalLoaded(loaded, nil)
	case "end-file":
		if msg.Get("reason").String() != "error" {
			return
		}
		err := fmt.Errorf("mpv failed to play file: %s", msg.Get("file_error").String())
		if nil != loaded {
			e.signalLoaded(loaded, err)
			return
		}
		e.post(player.Message{Kind: player.MessageError, Source: source, Err: err})
	case "property-change":
		if msg.Get("id").Int() == eofObserverID && msg.Get("data").Bool() {
			e.post(player.Message{Kind: player.MessageEOS, Source: source, Err: nil})
		}
	}
}

func (e *Engine) signalLoaded(loaded chan error, err error) {
	if nil == loaded {
		return
	}
	e.mux.Lock()
	if e.loaded == loaded {
		e.loaded = nil
		loaded <- err
	}
	e.mux.Unlock()
}

func (e *Engine) post(msg player.Message) {
	select {
	case e.messages <- msg:
	default:
		e.logger.Warn().Str("source", msg.Source).Msg("Pipeline message channel is full. Dropping message")
	}
}

func (e *Engine) setProperty(name string, value any) error {
	_, err := e.request("set_property", name, value)
	return err
}

// Bind loads path paused and waits until mpv reports it loaded.
func (e *Engine) Bind(path string) error {
	if err := e.setProperty("pause", true); nil != err {
		return err
	}

	loaded := make(chan error, 1)
	e.mux.Lock()
	e.source = path
	e.loaded = loaded
	e.mux.Unlock()

	if _, err := e.request("loadfile", path, "replace"); nil != err {
		e.mux.Lock()
		e.loaded = nil
		e.mux.Unlock()
		return err
	}

	select {
	case err := <-loaded:
		return err
	case <-time.After(config.PipelineRequestTimeout):
		e.mux.Lock()
		e.loaded = nil
		e.mux.Unlock()
		return fmt.Errorf("timed out waiting for mpv to load %q", path)
	}
}

func (e *Engine) Unbind() error {
	e.mux.Lock()
	e.source = ""
	e.mux.Unlock()
	_, err := e.request("stop")
	return err
}

func (e *Engine) SetState(state player.PipelineState) error {
	switch state {
	case player.PipelinePlaying:
		return e.setProperty("pause", false)
	case player.PipelinePaused:
		return e.setProperty("pause", true)
	case player.PipelineReady:
		if err := e.setProperty("pause", true); nil != err {
			return err
		}
		_, err := e.request("seek", 0, "absolute")
		return err
	case player.PipelineNull:
		_, err := e.request("stop")
		return err
	default:
		return fmt.Errorf("unsupported pipeline state %v", state)
	}
}

func (e *Engine) Seek(rate float64, position time.Duration) error {
	if err := e.setProperty("speed", rate); nil != err {
		return err
	}
	_, err := e.request("seek", position.Seconds(), "absolute+exact")
	return err
}

func (e *Engine) queryDuration(property string) (time.Duration, error) {
	data, err := e.request("get_property", property)
	if nil != err {
		return 0, err
	}
	return time.Duration(data.Float() * float64(time.Second)), nil
}

func (e *Engine) QueryPosition() (time.Duration, error) {
	return e.queryDuration("time-pos")
}

func (e *Engine) QueryDuration() (time.Duration, error) {
	return e.queryDuration("duration")
}

// SetVolume maps [0, 1] onto the mpv volume percentage.
func (e *Engine) SetVolume(volume float64) error {
	return e.setProperty("volume", volume*100)
}

func (e *Engine) SetAmplification(amplification float64) error {
	e.mux.Lock()
	e.filters.amplification = amplification
	e.mux.Unlock()
	return e.applyFilters()
}

func (e *Engine) SetEqualizerBand(band int, gain float64) error {
	if band < 0 || band >= player.NumBands {
		return fmt.Errorf("equalizer band %d is out of range", band)
	}
	e.mux.Lock()
	e.filters.bands[band] = gain
	e.mux.Unlock()
	return e.applyFilters()
}

func (e *Engine) SetRemoveSilence(enabled bool) error {
	e.mux.Lock()
	e.filters.removeSilence = enabled
	e.mux.Unlock()
	return e.applyFilters()
}

// applyFilters sends the filter chain only when it differs from the one
// last applied.
func (e *Engine) applyFilters() error {
	e.mux.Lock()
	af := e.filters.String()
	unchanged := af == e.appliedAF
	e.mux.Unlock()
	if unchanged {
		return nil
	}

	if err := e.setProperty("af", af); nil != err {
		return err
	}

	e.mux.Lock()
	e.appliedAF = af
	e.mux.Unlock()
	return nil
}

func (e *Engine) Messages() <-chan player.Message {
	return e.messages
}

func (e *Engine) Close() error {
	if _, err := e.request("quit"); nil != err && !errors.Is(err, ErrClosed) {
		e.logger.Debug().Err(err).Msg("Failed to send quit command to mpv")
	}

	e.mux.Lock()
	e.closeErr = ErrClosed
	e.mux.Unlock()

	err := e.conn.Close()
	<-e.readDone

	if nil != e.cmd {
		waitDone := make(chan error, 1)
		go func() { waitDone <- e.cmd.Wait() }()
		select {
		case <-waitDone:
		case <-time.After(config.ShutdownGracePeriod):
			_ = e.cmd.Process.Kill()
			<-waitDone
		}
	}

	if nil != err && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close mpv connection: %v", err)
	}
	return nil
}
