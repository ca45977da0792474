// Package logger is the process-wide levelled logger.
//
// Messages are printf-formatted. Text output looks like
//
//	[2025-06-01 10:30:00] [INFO] OTS session 1f0c... connected
//
// and JSON output writes one object per line with time, level and msg
// keys.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

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

// ParseLevel maps a level name, in any case, to its Level.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	jsonFormat   bool
	out          io.Writer = os.Stdout
	outFile      *os.File
	now          = time.Now
)

// SetLevel sets the minimum level written. Unknown names are ignored.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// SetFormat selects "text" or "json" output.
func SetFormat(format string) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(format) {
	case "", "text":
		jsonFormat = false
	case "json":
		jsonFormat = true
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput directs log lines to "stdout", "stderr" or a file path, which
// is opened for appending.
func SetOutput(target string) error {
	var (
		w    io.Writer
		file *os.File
	)
	switch strings.ToLower(target) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w, file = f, f
	}

	mu.Lock()
	defer mu.Unlock()
	if outFile != nil {
		_ = outFile.Close()
	}
	out, outFile = w, file
	return nil
}

// SetWriter directs log lines to w. Used by tests.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if outFile != nil {
		_ = outFile.Close()
		outFile = nil
	}
	out = w
}

// Enabled reports whether messages at level are written.
func Enabled(level Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return level >= currentLevel
}

type entry struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func log(level Level, format string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	message := fmt.Sprintf(format, v...)
	ts := now()

	if jsonFormat {
		line, err := json.Marshal(entry{Time: ts.Format(time.RFC3339Nano), Level: level.String(), Msg: message})
		if err != nil {
			return
		}
		_, _ = out.Write(append(line, '\n'))
		return
	}

	_, _ = fmt.Fprintf(out, "[%s] [%s] %s\n", ts.Format("2006-01-02 15:04:05"), level, message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
