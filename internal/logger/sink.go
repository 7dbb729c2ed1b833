package logger

// Sink is the local logging facility. It receives every log call and every
// delivery failure, independently of backend availability.
type Sink interface {
	Log(level LogLevel, msg string, fields Fields)
}

// Ensure AppLogger implements the Sink interface.
var _ Sink = (*AppLogger)(nil)
