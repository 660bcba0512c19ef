package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCfg is a minimal named config for manager tests.
type testCfg struct {
	Addr  string `mapstructure:"addr"`
	Limit int    `mapstructure:"limit"`
}

func (c *testCfg) GetName() string { return "bridge" }

func (c *testCfg) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	return nil
}

func writeCfg(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestManager(t *testing.T) (ConfigManager, string) {
	t.Helper()
	dir := t.TempDir()
	cm := NewConfigManager()
	cm.SetBasePath(dir)
	t.Cleanup(func() { _ = cm.Close() })
	return cm, dir
}

func TestLoadConfig(t *testing.T) {
	cm, dir := newTestManager(t)
	writeCfg(t, dir, "bridge", "addr: \":9000\"\nlimit: 10\n")

	cfg := &testCfg{}
	require.NoError(t, cm.LoadConfig("bridge", cfg))
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 10, cfg.Limit)

	got, err := cm.GetConfig("bridge")
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cm, _ := newTestManager(t)
	assert.Error(t, cm.LoadConfig("bridge", &testCfg{}))
}

func TestLoadConfigValidateFails(t *testing.T) {
	cm, dir := newTestManager(t)
	writeCfg(t, dir, "bridge", "addr: \":9000\"\nlimit: -1\n")
	assert.Error(t, cm.LoadConfig("bridge", &testCfg{}))
}

func TestRegisteredValidatorRuns(t *testing.T) {
	cm, dir := newTestManager(t)
	writeCfg(t, dir, "bridge", "addr: \"\"\nlimit: 1\n")

	cm.RegisterValidator("bridge", func(c Config) error {
		if c.(*testCfg).Addr == "" {
			return fmt.Errorf("addr required")
		}
		return nil
	})

	assert.Error(t, cm.LoadConfig("bridge", &testCfg{}))
}

func TestGetConfigUnknownName(t *testing.T) {
	cm, _ := newTestManager(t)
	_, err := cm.GetConfig("nope")
	assert.Error(t, err)
}

type testListener struct {
	notified atomic.Int32
	lastNew  atomic.Value
}

func (l *testListener) OnConfigChanged(name string, newCfg, oldCfg Config) error {
	l.notified.Add(1)
	l.lastNew.Store(newCfg)
	return nil
}

func (l *testListener) GetConfigName() string { return "bridge" }

func TestHotReloadNotifiesListener(t *testing.T) {
	cm, dir := newTestManager(t)
	path := writeCfg(t, dir, "bridge", "addr: \":9000\"\nlimit: 10\n")

	require.NoError(t, cm.LoadConfig("bridge", &testCfg{}))

	listener := &testListener{}
	cm.AddChangeListener(listener)

	require.NoError(t, os.WriteFile(path, []byte("addr: \":9100\"\nlimit: 20\n"), 0o644))

	require.Eventually(t, func() bool {
		return listener.notified.Load() > 0
	}, 3*time.Second, 20*time.Millisecond, "listener never notified")

	got := listener.lastNew.Load().(*testCfg)
	assert.Equal(t, ":9100", got.Addr)
	assert.Equal(t, 20, got.Limit)

	stored, err := cm.GetConfig("bridge")
	require.NoError(t, err)
	assert.Equal(t, 20, stored.(*testCfg).Limit)
}

func TestHotReloadKeepsOldConfigOnInvalidChange(t *testing.T) {
	cm, dir := newTestManager(t)
	path := writeCfg(t, dir, "bridge", "addr: \":9000\"\nlimit: 10\n")

	require.NoError(t, cm.LoadConfig("bridge", &testCfg{}))
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9100\"\nlimit: -5\n"), 0o644))

	// The watcher needs a moment to observe the write; the stored config
	// must stay on the last valid value throughout.
	time.Sleep(500 * time.Millisecond)

	stored, err := cm.GetConfig("bridge")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.(*testCfg).Limit)
}

func TestHookFailureAbortsSwap(t *testing.T) {
	cm, dir := newTestManager(t)
	path := writeCfg(t, dir, "bridge", "addr: \":9000\"\nlimit: 10\n")

	require.NoError(t, cm.LoadConfig("bridge", &testCfg{}))
	cm.RegisterHook("bridge", func(oldVal, newVal Config) error {
		return fmt.Errorf("refuse")
	})

	require.NoError(t, os.WriteFile(path, []byte("addr: \":9100\"\nlimit: 30\n"), 0o644))
	time.Sleep(500 * time.Millisecond)

	stored, err := cm.GetConfig("bridge")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.(*testCfg).Limit)
}
