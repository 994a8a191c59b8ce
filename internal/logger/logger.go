package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

const timeFormat = "2006-01-02 15:04:05"

// Config selects the level, encoding and destination of a Logger.
type Config struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string

	// Format is "text" (human readable) or "json".
	Format string

	// Output is "stdout", "stderr" or a file path. Files are appended to.
	Output string

	// QueueSize is the capacity of the asynchronous ring buffer in front of
	// the writer. 0 writes synchronously.
	QueueSize int
}

// Logger is a leveled logger backed by zerolog.
//
// When QueueSize > 0 records go through a non-blocking diode ring and are
// flushed by a background goroutine; if the ring is full the oldest records
// are dropped and counted. Close flushes and releases the destination.
type Logger struct {
	zl      zerolog.Logger
	level   atomic.Int32
	dropped atomic.Uint64
	closers []io.Closer
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	var out io.Writer
	var closers []io.Closer

	switch cfg.Output {
	case "", "stdout":
		out = writerOnly{os.Stdout}
	case "stderr":
		out = writerOnly{os.Stderr}
	default:
		if dir := filepath.Dir(cfg.Output); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		out = f
		closers = append(closers, f)
	}

	l := newWithWriter(cfg, out)
	l.closers = append(l.closers, closers...)
	return l, nil
}

// writerOnly hides Close so the async ring never closes stdout or stderr.
type writerOnly struct {
	io.Writer
}

// newWithWriter builds a Logger writing to w. Closers added by the caller
// run after the async ring is flushed.
func newWithWriter(cfg Config, w io.Writer) *Logger {
	l := &Logger{}

	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: timeFormat,
			FormatLevel: func(i any) string {
				return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
			},
		}
	}

	if cfg.QueueSize > 0 {
		dw := diode.NewWriter(w, cfg.QueueSize, 10*time.Millisecond, func(missed int) {
			l.dropped.Add(uint64(missed))
		})
		w = dw
		l.closers = append(l.closers, dw)
	}

	l.zl = zerolog.New(w).With().Timestamp().Logger()

	level, _ := ParseLevel(cfg.Level)
	l.level.Store(int32(level))
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	l := &Logger{zl: zerolog.Nop()}
	l.level.Store(int32(LevelError + 1))
	return l
}

// SetLevel changes the minimum level. Unknown names are ignored.
func (l *Logger) SetLevel(level string) {
	if lv, ok := ParseLevel(level); ok {
		l.level.Store(int32(lv))
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= Level(l.level.Load())
}

// Dropped returns how many records the async ring discarded.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Logger) log(level Level, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	l.zl.WithLevel(level.zerolog()).Msgf(format, v...)
}

func (l *Logger) Debug(format string, v ...any) {
	l.log(LevelDebug, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.log(LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.log(LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.log(LevelError, format, v...)
}

// Close flushes pending records and closes the destination.
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}
