package logger

import (
	"os"
	"sync/atomic"
)

var std atomic.Pointer[Logger]

func init() {
	std.Store(newWithWriter(Config{Level: "INFO", Format: "text"}, writerOnly{os.Stdout}))
}

// Default returns the process-wide Logger used by the package-level functions.
func Default() *Logger {
	return std.Load()
}

// SetDefault replaces the process-wide Logger. The previous one is returned so
// the caller can Close it.
func SetDefault(l *Logger) *Logger {
	if l == nil {
		return nil
	}
	return std.Swap(l)
}

func SetLevel(level string) {
	Default().SetLevel(level)
}

func Debug(format string, v ...any) {
	Default().log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	Default().log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	Default().log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	Default().log(LevelError, format, v...)
}
