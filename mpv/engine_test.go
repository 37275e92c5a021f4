package mpv_test

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/xeptore/lplay/mpv"
	"github.com/xeptore/lplay/player"
)

type fakeMpv struct {
	conn     net.Conn
	mux      sync.Mutex
	commands [][]string
	failOn   string
	writeMux sync.Mutex
}

func startFake(t *testing.T) (*fakeMpv, *mpv.Engine) {
	t.Helper()
	server, client := net.Pipe()
	f := &fakeMpv{conn: server}
	go f.serve()
	e := mpv.Attach(client, zerolog.Nop())
	t.Cleanup(func() { _ = e.Close() })
	return f, e
}

func (f *fakeMpv) serve() {
	r := bufio.NewReader(f.conn)
	for {
		line, err := r.ReadBytes('\n')
		if nil != err {
			return
		}
		msg := gjson.ParseBytes(line)
		var args []string
		for _, a := range msg.Get("command").Array() {
			args = append(args, a.String())
		}
		f.mux.Lock()
		f.commands = append(f.commands, args)
		failOn := f.failOn
		f.mux.Unlock()

		id := msg.Get("request_id").Int()
		switch {
		case len(args) > 0 && args[0] == failOn:
			f.write(`{"request_id":%d,"error":"property unavailable"}`, id)
		case len(args) == 2 && args[0] == "get_property" && args[1] == "time-pos":
			f.write(`{"request_id":%d,"error":"success","data":12.5}`, id)
		case len(args) == 2 && args[0] == "get_property" && args[1] == "duration":
			f.write(`{"request_id":%d,"error":"success","data":100}`, id)
		case len(args) > 0 && args[0] == "loadfile":
			f.write(`{"request_id":%d,"error":"success"}`, id)
			if args[1] == "/broken.ogg" {
				f.write(`{"event":"end-file","reason":"error","file_error":"unrecognized file format"}`)
			} else {
				f.write(`{"event":"file-loaded"}`)
			}
		case len(args) > 0 && args[0] == "quit":
			f.write(`{"request_id":%d,"error":"success"}`, id)
			_ = f.conn.Close()
			return
		default:
			f.write(`{"request_id":%d,"error":"success","data":null}`, id)
		}
	}
}

func (f *fakeMpv) write(format string, args ...any) {
	f.writeMux.Lock()
	defer f.writeMux.Unlock()
	_, _ = f.conn.Write([]byte(fmt.Sprintf(format, args...) + "\n"))
}

func (f *fakeMpv) setFailOn(cmd string) {
	f.mux.Lock()
	f.failOn = cmd
	f.mux.Unlock()
}

func (f *fakeMpv) recorded() [][]string {
	f.mux.Lock()
	defer f.mux.Unlock()
	out := make([][]string, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeMpv) last() []string {
	cmds := f.recorded()
	if len(cmds) == 0 {
		return nil
	}
	return cmds[len(cmds)-1]
}

func TestArgs(t *testing.T) {
	t.Parallel()

	args := mpv.Args("/tmp/lplay/mpv.sock")
	assert.Contains(t, args, "--idle=yes")
	assert.Contains(t, args, "--no-video")
	assert.Contains(t, args, "--input-ipc-server=/tmp/lplay/mpv.sock")
}

func TestBindLoadsPaused(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	require.NoError(t, e.Bind("/music/a.ogg"))

	cmds := f.recorded()
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"set_property", "pause", "true"}, cmds[0])
	assert.Equal(t, []string{"loadfile", "/music/a.ogg", "replace"}, cmds[1])
}

func TestBindReportsLoadFailure(t *testing.T) {
	t.Parallel()

	_, e := startFake(t)
	err := e.Bind("/broken.ogg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized file format")
}

func TestQueries(t *testing.T) {
	t.Parallel()

	_, e := startFake(t)

	pos, err := e.QueryPosition()
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, pos)

	d, err := e.QueryDuration()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Second, d)
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	f.setFailOn("get_property")

	_, err := e.QueryPosition()
	var cmdErr *mpv.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "property unavailable", cmdErr.Message)
}

func TestStates(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)

	require.NoError(t, e.SetState(player.PipelinePlaying))
	assert.Equal(t, []string{"set_property", "pause", "false"}, f.last())

	require.NoError(t, e.SetState(player.PipelinePaused))
	assert.Equal(t, []string{"set_property", "pause", "true"}, f.last())

	require.NoError(t, e.SetState(player.PipelineReady))
	assert.Equal(t, []string{"seek", "0", "absolute"}, f.last())

	require.NoError(t, e.SetState(player.PipelineNull))
	assert.Equal(t, []string{"stop"}, f.last())
}

func TestSeekSetsSpeedFirst(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	require.NoError(t, e.Seek(1.5, 30*time.Second))

	cmds := f.recorded()
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"set_property", "speed", "1.5"}, cmds[0])
	assert.Equal(t, []string{"seek", "30", "absolute+exact"}, cmds[1])
}

func TestVolumeIsPercentage(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	require.NoError(t, e.SetVolume(0.5))
	assert.Equal(t, []string{"set_property", "volume", "50"}, f.last())
}

func TestFiltersAreSentOnlyOnChange(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)

	require.NoError(t, e.SetAmplification(1))
	assert.Empty(t, f.recorded())

	require.NoError(t, e.SetEqualizerBand(0, -6))
	last := f.last()
	require.Len(t, last, 3)
	assert.Equal(t, "af", last[1])
	assert.Contains(t, last[2], "equalizer=f=")
	assert.Contains(t, last[2], "g=-6.000")

	n := len(f.recorded())
	require.NoError(t, e.SetEqualizerBand(0, -6))
	assert.Len(t, f.recorded(), n)

	require.NoError(t, e.SetRemoveSilence(true))
	assert.Contains(t, f.last()[2], "silenceremove")

	require.NoError(t, e.SetAmplification(2))
	assert.Contains(t, f.last()[2], "volume=2.000")

	require.Error(t, e.SetEqualizerBand(player.NumBands, 1))
}

func TestEOFBecomesMessage(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	require.NoError(t, e.Bind("/music/a.ogg"))

	f.write(`{"event":"property-change","id":1,"name":"eof-reached","data":false}`)
	f.write(`{"event":"property-change","id":1,"name":"eof-reached","data":true}`)

	select {
	case msg := <-e.Messages():
		assert.Equal(t, player.MessageEOS, msg.Kind)
		assert.Equal(t, "/music/a.ogg", msg.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("expected end of stream message")
	}
}

func TestPlaybackErrorBecomesMessage(t *testing.T) {
	t.Parallel()

	f, e := startFake(t)
	require.NoError(t, e.Bind("/music/a.ogg"))

	f.write(`{"event":"end-file","reason":"error","file_error":"audio output failed"}`)

	select {
	case msg := <-e.Messages():
		assert.Equal(t, player.MessageError, msg.Kind)
		assert.Equal(t, "/music/a.ogg", msg.Source)
		require.Error(t, msg.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected error message")
	}
}

func TestCloseFailsPendingRequests(t *testing.T) {
	t.Parallel()

	_, e := startFake(t)
	require.NoError(t, e.Close())

	_, err := e.QueryPosition()
	require.ErrorIs(t, err, mpv.ErrClosed)

	_, ok := <-e.Messages()
	assert.False(t, ok)
}

func TestBandFrequencies(t *testing.T) {
	t.Parallel()

	prev := 0.0
	for i := range player.NumBands {
		f := mpv.BandFrequency(i)
		assert.Greater(t, f, prev)
		assert.GreaterOrEqual(t, f, 20.0)
		assert.LessOrEqual(t, f, 20000.0)
		prev = f
	}
}
