// Package logging provides structured, leveled operational logging for the
// pipeline. It is adapted from the teacher's internal/logging package and
// is deliberately distinct from internal/audit: this is a debug/ops
// stream, audit is a compliance record.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is log severity, ordered so that comparisons (level < threshold)
// work directly.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string to a Level, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return Debug
	case "INFO":
		return Info
	case "WARN", "WARNING":
		return Warn
	case "ERROR":
		return Error
	case "FATAL":
		return Fatal
	default:
		return Info
	}
}

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// F is a terse constructor for Field, used at call sites.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Logger writes leveled, structured JSON log lines.
type Logger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	fields map[string]interface{}
}

// New creates a Logger at the given level, writing to output (os.Stdout if
// nil).
func New(level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{level: level, output: output, fields: map[string]interface{}{}}
}

// WithFields returns a child logger carrying additional persistent fields.
func (l *Logger) WithFields(fields ...Field) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{level: l.level, output: l.output, fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

// Fatal logs at Fatal and exits the process.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(Fatal, msg, fields...)
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(fields)+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["message"] = msg

	if level >= Error {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	l.mu.Lock()
	for k, v := range l.fields {
		entry[k] = v
	}
	l.mu.Unlock()
	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: marshal failed: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, string(line))
}
