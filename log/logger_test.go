package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureAppender records emitted lines for assertions.
type captureAppender struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureAppender) Write(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, string(line))
	return nil
}

func (c *captureAppender) Refresh() error { return nil }
func (c *captureAppender) Close() error   { return nil }

func (c *captureAppender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func newCaptureLogger(level Level) (*BridgeLogger, *captureAppender) {
	logger := NewLogger(&LogCfg{LogLevel: level})
	cap := &captureAppender{}
	logger.AddAppender(cap)
	return logger, cap
}

func TestEventFieldRendering(t *testing.T) {
	logger, cap := newCaptureLogger(DebugLevel)

	logger.Info().
		Str("session", "s1").
		Int("pending", 3).
		Uint64("seq", 42).
		Bool("connected", true).
		Dur("elapsed", 150*time.Millisecond).
		Err(errors.New("boom")).
		Msg("call finished")

	lines := cap.all()
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "call finished")
	assert.Contains(t, line, `session="s1"`)
	assert.Contains(t, line, "pending=3")
	assert.Contains(t, line, "seq=42")
	assert.Contains(t, line, "connected=true")
	assert.Contains(t, line, "elapsed=150ms")
	assert.Contains(t, line, `error="boom"`)
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLevelFiltering(t *testing.T) {
	logger, cap := newCaptureLogger(WarnLevel)

	logger.Debug().Str("k", "v").Msg("dropped")
	logger.Info().Msg("dropped too")
	logger.Warn().Msg("kept")
	logger.Error().Msg("kept as well")

	lines := cap.all()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "kept")
	assert.Contains(t, lines[1], "kept as well")
}

func TestNilErrAddsNothing(t *testing.T) {
	logger, cap := newCaptureLogger(DebugLevel)
	logger.Info().Err(nil).Msg("fine")

	lines := cap.all()
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "error=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, FatalLevel, ParseLevel(" fatal "))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestMsgfFormats(t *testing.T) {
	logger, cap := newCaptureLogger(DebugLevel)
	logger.Info().Msgf("call %s took %dms", "echo", 12)

	lines := cap.all()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "call echo took 12ms")
}

func TestFileAppenderWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	cfg := &LogCfg{LogPath: path, FileSplitMB: 1}
	a := NewFileAppender(cfg)
	defer a.Close()

	require.NoError(t, a.Write([]byte("hello\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	// Force rotation by pretending the threshold was reached.
	a.written = 2 * 1024 * 1024
	require.NoError(t, a.Write([]byte("after rotate\n")))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotate\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAsyncFileAppenderFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "async.log")

	cfg := &LogCfg{LogPath: path, IsAsync: true, AsyncCacheSize: 16, AsyncWriteMillSec: 50}
	a := NewFileAppender(cfg)

	require.NoError(t, a.Write([]byte("one\n")))
	require.NoError(t, a.Write([]byte("two\n")))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}
