package log

import "fmt"

// LogCfg represents the logging configuration for the bridge process.
// It covers output destinations, file rotation, asynchronous writing and
// caller capturing. The struct supports hot-reload through the config
// manager: a changed file swaps the level and appender settings without a
// restart.
type LogCfg struct {
	// LogPath specifies the target log file path for file-based logging.
	LogPath string `mapstructure:"path"`

	// LogLevel defines the minimum log level for filtering log entries.
	// Supports hot-reload without service restart.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB determines the file rotation threshold in megabytes.
	FileSplitMB int `mapstructure:"splitmb"`

	// IsAsync enables asynchronous log writing to keep I/O off the
	// calling goroutine.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncCacheSize limits the maximum buffered log entries in async
	// mode. Entries past the limit are dropped rather than blocking.
	AsyncCacheSize int `mapstructure:"asynccachesize"`

	// AsyncWriteMillSec defines the async flush interval in milliseconds.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip specifies the number of stack frames to skip for caller
	// information. Useful for wrapper layers.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender enables file-based logging output.
	FileAppender bool `mapstructure:"fileAppender"`

	// ConsoleAppender enables console (stdout) logging output.
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// EnabledCallerInfo toggles capturing of file:line caller info.
	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName returns the configuration name for LogCfg.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate validates the LogCfg parameters.
func (cfg *LogCfg) Validate() error {
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("path cannot be empty when fileAppender is enabled")
	}
	if cfg.FileSplitMB < 0 {
		return fmt.Errorf("splitmb cannot be negative")
	}
	if cfg.IsAsync && cfg.AsyncCacheSize < 0 {
		return fmt.Errorf("asynccachesize cannot be negative")
	}
	return nil
}

var _defaultCfg = &LogCfg{
	LogPath:           "./pixelbridge.log",
	LogLevel:          DebugLevel,
	FileSplitMB:       50,
	IsAsync:           true,
	AsyncCacheSize:    1024,
	AsyncWriteMillSec: 200,
	CallerSkip:        1,
	FileAppender:      false,
	ConsoleAppender:   true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
