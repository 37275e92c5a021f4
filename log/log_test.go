package log_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/log"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("PackedHonorsLevel", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := log.New(&buf, log.FormatPacked, "warn")
		require.NoError(t, err)

		logger.Info().Msg("hidden")
		assert.Zero(t, buf.Len())

		logger.Warn().Str("module", "test").Msg("shown")
		line := buf.Bytes()
		assert.Equal(t, "shown", gjson.GetBytes(line, "message").String())
		assert.Equal(t, "test", gjson.GetBytes(line, "module").String())
		assert.True(t, gjson.GetBytes(line, "app.version").Exists())
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		t.Parallel()

		_, err := log.New(&bytes.Buffer{}, log.FormatPacked, "loud")
		require.Error(t, err)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		t.Parallel()

		_, err := log.New(&bytes.Buffer{}, "xml", "info")
		require.Error(t, err)
	})
}

func TestFlaw(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewPacked(&buf).Level(zerolog.TraceLevel)

	err := flaw.From(errors.New("disk is full")).Append(flaw.P{"path": "/tmp/x"})
	logger.Error().Func(log.Flaw(err)).Msg("failed")

	line := buf.Bytes()
	assert.Equal(t, "disk is full", gjson.GetBytes(line, "error.message").String())
	assert.Equal(t, "/tmp/x", gjson.GetBytes(line, "records.0.payload.path").String())
}

func TestPanic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewPacked(&buf).Level(zerolog.TraceLevel)

	func() {
		defer func() {
			if r := recover(); nil != r {
				logger.Error().Func(log.Panic(r)).Msg("recovered")
			}
		}()
		panic("boom")
	}()

	line := buf.Bytes()
	assert.Equal(t, "boom", gjson.GetBytes(line, "panic.content").String())
	stack := gjson.GetBytes(line, "panic.stack_traces").String()
	assert.Contains(t, stack, "TestPanic")
	assert.NotContains(t, stack, "runtime/debug.Stack")
}
