package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogAppender is the output side of the logger. Appenders receive fully
// rendered lines; formatting decisions belong to the event layer so every
// destination prints the same content.
type LogAppender interface {
	// Write outputs one rendered log line.
	Write(line []byte) error

	// Refresh re-applies the appender's configuration, reopening
	// resources if needed. Called on hot reload.
	Refresh() error

	// Close flushes pending output and releases resources.
	Close() error
}

// ConsoleAppender writes log lines to standard output. Safe for concurrent
// use.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a console appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

// Write outputs the line to stdout.
func (a *ConsoleAppender) Write(line []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := os.Stdout.Write(line)
	return err
}

// Refresh is a no-op for the console.
func (a *ConsoleAppender) Refresh() error { return nil }

// Close is a no-op for the console.
func (a *ConsoleAppender) Close() error { return nil }

// FileAppender writes log lines to a file with size-based rotation and an
// optional asynchronous write path. In async mode lines are buffered on a
// channel and flushed by a background goroutine on a fixed interval; when
// the buffer is full the line is dropped rather than blocking the caller.
type FileAppender struct {
	mu      sync.Mutex
	cfg     *LogCfg
	file    *os.File
	written int64

	asyncCh chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileAppender creates a file appender from the logging configuration.
// The target directory is created if absent. Falls back to a closed state
// on open failure; Write then returns the open error.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	a := &FileAppender{cfg: cfg}
	if err := a.open(); err != nil {
		fmt.Fprintf(os.Stderr, "log: open %s: %v\n", cfg.LogPath, err)
	}

	if cfg.IsAsync {
		size := cfg.AsyncCacheSize
		if size <= 0 {
			size = 1024
		}
		interval := time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond
		if interval <= 0 {
			interval = 200 * time.Millisecond
		}
		a.asyncCh = make(chan []byte, size)
		a.done = make(chan struct{})
		a.wg.Add(1)
		go a.serveAsync(interval)
	}
	return a
}

func (a *FileAppender) open() error {
	dir := filepath.Dir(a.cfg.LogPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(a.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	a.file = f
	a.written = info.Size()
	return nil
}

// Write outputs the line, rotating first when the size threshold is
// exceeded. In async mode the line is enqueued instead.
func (a *FileAppender) Write(line []byte) error {
	if a.asyncCh != nil {
		buf := make([]byte, len(line))
		copy(buf, line)
		select {
		case a.asyncCh <- buf:
		default:
			// Buffer full. Dropping beats blocking the caller.
		}
		return nil
	}
	return a.writeDirect(line)
}

func (a *FileAppender) writeDirect(line []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		if err := a.open(); err != nil {
			return err
		}
	}
	if a.cfg.FileSplitMB > 0 && a.written+int64(len(line)) > int64(a.cfg.FileSplitMB)*1024*1024 {
		a.rotateLocked()
	}
	n, err := a.file.Write(line)
	a.written += int64(n)
	return err
}

// rotateLocked renames the current file with a timestamp suffix and opens a
// fresh one. Requires a.mu.
func (a *FileAppender) rotateLocked() {
	if a.file == nil {
		return
	}
	_ = a.file.Close()
	a.file = nil

	rotated := fmt.Sprintf("%s.%s", a.cfg.LogPath, time.Now().Format("20060102-150405"))
	if err := os.Rename(a.cfg.LogPath, rotated); err != nil {
		fmt.Fprintf(os.Stderr, "log: rotate %s: %v\n", a.cfg.LogPath, err)
	}
	if err := a.open(); err != nil {
		fmt.Fprintf(os.Stderr, "log: reopen %s: %v\n", a.cfg.LogPath, err)
	}
}

func (a *FileAppender) serveAsync(interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func() {
		for {
			select {
			case line := <-a.asyncCh:
				_ = a.writeDirect(line)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-a.done:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

// Refresh reopens the log file, picking up external rotation or path
// changes applied through configuration reload.
func (a *FileAppender) Refresh() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
	return a.open()
}

// Close stops the async writer, flushes buffered lines and closes the file.
func (a *FileAppender) Close() error {
	if a.done != nil {
		close(a.done)
		a.wg.Wait()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}
