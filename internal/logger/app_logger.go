// internal/logger/app_logger.go

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the available logging levels
type LogLevel int

const (
	// Log levels
	TRACE LogLevel = 10
	DEBUG LogLevel = 20
	INFO  LogLevel = 30
	WARN  LogLevel = 40
	ERROR LogLevel = 50
	FATAL LogLevel = 60
)

// LogLevel to string mapping
var logLevelNames = map[LogLevel]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogLevelNameToLevel maps string level names to level values
var LogLevelNameToLevel = map[string]LogLevel{
	"TRACE": TRACE,
	"DEBUG": DEBUG,
	"INFO":  INFO,
	"WARN":  WARN,
	"ERROR": ERROR,
	"FATAL": FATAL,
}

// String returns the upper-case level name, or "LEVEL <n>" for values
// outside the known set.
func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "LEVEL " + strconv.Itoa(int(l))
}

// Fields carries structured key/value data attached to a single log line.
type Fields map[string]interface{}

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// AppLogger is the local application logger. It writes one line per message
// to its writer (stdout by default) in text or JSON format.
type AppLogger struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	format     string
	showHealth bool
}

// Global instance
var (
	defaultLogger *AppLogger
	once          sync.Once
)

// exit is swapped in tests so FATAL does not terminate the test binary.
var exit = os.Exit

// GetAppLogger returns the singleton instance of the application logger
func GetAppLogger() *AppLogger {
	once.Do(func() {
		defaultLogger = NewAppLogger(os.Stdout, WARN, FormatText)
	})
	return defaultLogger
}

// NewAppLogger creates a standalone logger, mostly useful for tests and for
// components that must not share the process-wide instance.
func NewAppLogger(w io.Writer, level LogLevel, format string) *AppLogger {
	if format != FormatJSON {
		format = FormatText
	}
	return &AppLogger{
		writer: w,
		level:  level,
		format: format,
	}
}

// SetOutput replaces the writer lines are written to.
func (l *AppLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetFormat switches between "text" and "json" output.
func (l *AppLogger) SetFormat(format string) error {
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid log format: %s", format)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	return nil
}

// SetLogLevel sets the minimum log level
func (l *AppLogger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetLogLevelFromString sets the log level from a string name
func (l *AppLogger) SetLogLevelFromString(levelName string) error {
	levelName = strings.ToUpper(levelName)
	level, ok := LogLevelNameToLevel[levelName]
	if !ok {
		return fmt.Errorf("invalid log level: %s", levelName)
	}
	l.SetLogLevel(level)
	return nil
}

// SetShowHealth configures whether health check logs should be shown
func (l *AppLogger) SetShowHealth(show bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.showHealth = show
}

// Enabled reports whether a message at level would be written.
func (l *AppLogger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// Log writes msg with structured fields at the given level.
func (l *AppLogger) Log(level LogLevel, msg string, fields Fields) {
	l.write(level, false, msg, fields)
}

// write renders and emits a line if the level is sufficient.
// The lock is only held for the checks and the write, not during formatting.
func (l *AppLogger) write(level LogLevel, isHealth bool, msg string, fields Fields) {
	l.mu.Lock()
	skip := (isHealth && !l.showHealth) || level < l.level
	format := l.format
	l.mu.Unlock()

	if skip {
		return
	}

	var line []byte
	if format == FormatJSON {
		line = formatJSON(time.Now(), level, msg, fields)
	} else {
		line = formatText(time.Now(), level, msg, fields)
	}
	line = append(line, '\n')

	l.mu.Lock()
	_, _ = l.writer.Write(line)
	l.mu.Unlock()

	if level == FATAL {
		exit(1)
	}
}

func (l *AppLogger) logf(level LogLevel, isHealth bool, format string, args ...interface{}) {
	l.write(level, isHealth, fmt.Sprintf(format, args...), nil)
}

// Trace logs a message at TRACE level
func (l *AppLogger) Trace(format string, args ...interface{}) {
	l.logf(TRACE, false, format, args...)
}

// Debug logs a message at DEBUG level
func (l *AppLogger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, false, format, args...)
}

// Info logs a message at INFO level
func (l *AppLogger) Info(format string, args ...interface{}) {
	l.logf(INFO, false, format, args...)
}

// Warn logs a message at WARN level
func (l *AppLogger) Warn(format string, args ...interface{}) {
	l.logf(WARN, false, format, args...)
}

// Error logs a message at ERROR level
func (l *AppLogger) Error(format string, args ...interface{}) {
	l.logf(ERROR, false, format, args...)
}

// Fatal logs a message at FATAL level and exits the program
func (l *AppLogger) Fatal(format string, args ...interface{}) {
	l.logf(FATAL, false, format, args...)
}

// Health logs a health check message (only shown if showHealth is true)
func (l *AppLogger) Health(format string, args ...interface{}) {
	l.logf(INFO, true, format, args...)
}

// formatText renders: [TIME] LEVEL: msg key=value key2=value2 ...
func formatText(ts time.Time, level LogLevel, msg string, fields Fields) []byte {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(ts.Format("2006-01-02T15:04:05Z07:00"))
	sb.WriteString("] ")
	sb.WriteString(level.String())
	sb.WriteString(": ")
	sb.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(formatValue(fields[k]))
	}

	return []byte(sb.String())
}

// formatJSON renders one JSON object per line. time, level and msg take
// precedence over fields with the same key.
func formatJSON(ts time.Time, level LogLevel, msg string, fields Fields) []byte {
	record := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		record[k] = v
	}
	record["time"] = ts.Format(time.RFC3339Nano)
	record["level"] = level.String()
	record["msg"] = msg

	line, err := json.Marshal(record)
	if err != nil {
		// Fall back to text so the line is never lost.
		return formatText(ts, level, msg, Fields{"marshal_error": err.Error()})
	}
	return line
}

// formatValue converts different types to string for text logging.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \t\n\"=") {
			return strconv.Quote(v)
		}
		return v
	case error:
		return strconv.Quote(v.Error())
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "<nil>"
	default:
		jsonBytes, err := json.Marshal(v)
		if err == nil {
			return string(jsonBytes)
		}
		return fmt.Sprintf("%v", v)
	}
}
