package log

import (
	"fmt"
	"strconv"
	"time"
)

// LogEvent is a single in-flight log entry built through the fluent field
// API and finalized by Msg or Msgf. Events are pooled by the owning logger
// to keep the hot logging path allocation-free; an event must not be used
// after Msg/Msgf returns.
type LogEvent struct {
	logger *BridgeLogger
	level  Level
	buf    []byte
	caller string
	skip   bool
}

func newEvent(logger *BridgeLogger) *LogEvent {
	return &LogEvent{
		logger: logger,
		buf:    make([]byte, 0, 256),
	}
}

func (e *LogEvent) reset(level Level, caller string, skip bool) *LogEvent {
	e.level = level
	e.buf = e.buf[:0]
	e.caller = caller
	e.skip = skip
	return e
}

func (e *LogEvent) appendKey(key string) {
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, key...)
	e.buf = append(e.buf, '=')
}

// Str adds a string field to the event.
func (e *LogEvent) Str(key, val string) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = strconv.AppendQuote(e.buf, val)
	return e
}

// Int adds an int field to the event.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	return e.Int64(key, int64(val))
}

// Int64 adds an int64 field to the event.
func (e *LogEvent) Int64(key string, val int64) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = strconv.AppendInt(e.buf, val, 10)
	return e
}

// Uint64 adds a uint64 field to the event.
func (e *LogEvent) Uint64(key string, val uint64) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = strconv.AppendUint(e.buf, val, 10)
	return e
}

// Float64 adds a float64 field to the event.
func (e *LogEvent) Float64(key string, val float64) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = strconv.AppendFloat(e.buf, val, 'f', -1, 64)
	return e
}

// Bool adds a bool field to the event.
func (e *LogEvent) Bool(key string, val bool) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = strconv.AppendBool(e.buf, val)
	return e
}

// Dur adds a duration field rendered in time.Duration notation.
func (e *LogEvent) Dur(key string, val time.Duration) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = append(e.buf, val.String()...)
	return e
}

// Err adds the error under the conventional "error" key. A nil error adds
// nothing.
func (e *LogEvent) Err(err error) *LogEvent {
	if e.skip || err == nil {
		return e
	}
	return e.Str("error", err.Error())
}

// Any adds an arbitrary value formatted with %v. Intended for low-volume
// paths; prefer the typed setters on hot paths.
func (e *LogEvent) Any(key string, val any) *LogEvent {
	if e.skip {
		return e
	}
	e.appendKey(key)
	e.buf = append(e.buf, fmt.Sprintf("%v", val)...)
	return e
}

// Msg finalizes the event with the given message and hands the rendered
// line to the logger's appenders. The event is returned to the pool and
// must not be touched afterwards.
func (e *LogEvent) Msg(msg string) {
	if e.skip {
		e.logger.OnEventEnd(e)
		return
	}

	line := make([]byte, 0, 64+len(msg)+len(e.buf))
	line = time.Now().AppendFormat(line, "2006-01-02 15:04:05.000")
	line = append(line, ' ')
	line = append(line, e.level.String()...)
	if e.caller != "" {
		line = append(line, ' ')
		line = append(line, e.caller...)
	}
	line = append(line, ' ')
	line = append(line, msg...)
	line = append(line, e.buf...)
	line = append(line, '\n')

	e.logger.write(line)
	e.logger.OnEventEnd(e)
}

// Msgf finalizes the event with a formatted message.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e.skip {
		e.logger.OnEventEnd(e)
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}
