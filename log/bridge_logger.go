package log

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lcx/pixelbridge/config"
)

// Logger is the leveled logging interface of the bridge. Each level method
// returns a pooled LogEvent that must be finalized with Msg or Msgf.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	AddAppender(appender LogAppender)
	GetAppender() []LogAppender
	OnEventEnd(e *LogEvent)
}

// BridgeLogger is a thread-safe logger with configurable appenders and
// pooled log events. It is built for the bridge's hot paths: level checks
// are a single atomic load, events are reused through sync.Pool, and caller
// lookups are cached per program counter.
//
// Example usage:
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("session", id).Int("pending", n).Msg("call issued")
type BridgeLogger struct {
	appenders         []LogAppender
	appenderMu        sync.RWMutex
	minLevel          atomic.Uint32
	callerSkip        int
	enabledCallerInfo bool
	eventPool         *sync.Pool
	callerCache       sync.Map // pc -> "file:line"

	configMutex   sync.RWMutex
	currentConfig *LogCfg
}

// NewLogger creates a new BridgeLogger instance with the provided
// configuration. A nil cfg selects the package defaults (console output at
// debug level).
func NewLogger(cfg *LogCfg) *BridgeLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &BridgeLogger{
		callerSkip:        cfg.CallerSkip,
		enabledCallerInfo: cfg.EnabledCallerInfo,
		currentConfig:     cfg,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

// NewLoggerWithConfigManager creates a BridgeLogger registered with the
// configuration manager for hot reload. Level and appender settings follow
// the "logger" config without a restart.
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *BridgeLogger {
	logger := NewLogger(cfg)
	if configManager != nil {
		configManager.AddChangeListener(logger)
	}
	return logger
}

// OnConfigChanged implements config.ConfigChangeListener. Applies a changed
// "logger" configuration atomically.
func (x *BridgeLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	newCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return fmt.Errorf("log: unexpected config type %T for logger", newConfig)
	}
	x.updateConfig(newCfg)
	return nil
}

// GetConfigName implements config.ConfigChangeListener.
func (x *BridgeLogger) GetConfigName() string {
	return "logger"
}

func (x *BridgeLogger) updateConfig(newCfg *LogCfg) {
	x.configMutex.Lock()
	defer x.configMutex.Unlock()

	x.minLevel.Store(uint32(newCfg.LogLevel))
	x.callerSkip = newCfg.CallerSkip
	x.enabledCallerInfo = newCfg.EnabledCallerInfo
	x.currentConfig = newCfg

	x.Refresh()
}

// GetCurrentConfig returns the configuration currently in effect.
func (x *BridgeLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

func (x *BridgeLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender adds a new log appender. Multiple appenders receive every
// emitted line.
func (x *BridgeLogger) AddAppender(appender LogAppender) {
	x.appenderMu.Lock()
	defer x.appenderMu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns a snapshot of the registered appenders.
func (x *BridgeLogger) GetAppender() []LogAppender {
	x.appenderMu.RLock()
	defer x.appenderMu.RUnlock()
	out := make([]LogAppender, len(x.appenders))
	copy(out, x.appenders)
	return out
}

// Refresh triggers a refresh on every appender.
func (x *BridgeLogger) Refresh() {
	for _, a := range x.GetAppender() {
		if err := a.Refresh(); err != nil {
			fmt.Printf("log: appender refresh: %v\n", err)
		}
	}
}

// Close flushes and closes every appender.
func (x *BridgeLogger) Close() {
	for _, a := range x.GetAppender() {
		_ = a.Close()
	}
}

// OnEventEnd returns a finalized event to the pool.
func (x *BridgeLogger) OnEventEnd(e *LogEvent) {
	x.eventPool.Put(e)
}

func (x *BridgeLogger) write(line []byte) {
	for _, a := range x.GetAppender() {
		if err := a.Write(line); err != nil {
			fmt.Printf("log: appender write: %v\n", err)
		}
	}
}

func (x *BridgeLogger) caller() string {
	if !x.enabledCallerInfo {
		return ""
	}
	pc, file, line, ok := runtime.Caller(x.callerSkip + 3)
	if !ok {
		return ""
	}
	if cached, ok := x.callerCache.Load(pc); ok {
		return cached.(string)
	}
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	s := short + ":" + strconv.Itoa(line)
	x.callerCache.Store(pc, s)
	return s
}

func (x *BridgeLogger) newLevelEvent(level Level) *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	if !x.checkLevel(level) {
		return e.reset(level, "", true)
	}
	return e.reset(level, x.caller(), false)
}

// Trace creates a new trace-level log event.
func (x *BridgeLogger) Trace() *LogEvent { return x.newLevelEvent(TraceLevel) }

// Debug creates a new debug-level log event.
func (x *BridgeLogger) Debug() *LogEvent { return x.newLevelEvent(DebugLevel) }

// Info creates a new info-level log event.
func (x *BridgeLogger) Info() *LogEvent { return x.newLevelEvent(InfoLevel) }

// Warn creates a new warn-level log event.
func (x *BridgeLogger) Warn() *LogEvent { return x.newLevelEvent(WarnLevel) }

// Error creates a new error-level log event.
func (x *BridgeLogger) Error() *LogEvent { return x.newLevelEvent(ErrorLevel) }

// Fatal creates a new fatal-level log event. The logger does not exit the
// process; that decision belongs to the caller.
func (x *BridgeLogger) Fatal() *LogEvent { return x.newLevelEvent(FatalLevel) }
