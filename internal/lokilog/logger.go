// Package lokilog is the logging façade: every call is written to the local
// sink and pushed, synchronously and exactly once, to Loki.
package lokilog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/loki"
)

// Settings are the resolved values a Logger is built from. BaseURL and
// Environment are required.
type Settings struct {
	BaseURL     string
	Environment string
	Timeout     time.Duration
	Compression string
	Headers     map[string]string
}

// SettingsFromConfig maps the loaded configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BaseURL:     cfg.Loki.BaseURL,
		Environment: cfg.App.Environment,
		Timeout:     cfg.Timeout(),
		Compression: cfg.Loki.CompressionType,
		Headers:     cfg.Loki.Headers,
	}
}

// ConfigurationError is returned when a Logger cannot be constructed. It is
// the only error this package hands back to callers.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("lokilog configuration: %v", e.Err)
	}
	return fmt.Sprintf("lokilog configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ErrMissingValue marks a required setting that was not supplied.
var ErrMissingValue = errors.New("required value is missing")

// Meta carries the optional per-call routing fields. Empty OrgID and BotID
// become "unknown", empty Context becomes the logger name, empty Trace is
// sent as null.
type Meta struct {
	OrgID   string
	BotID   string
	Context string
	Trace   string
}

// Option customizes a Logger.
type Option func(*options)

type options struct {
	sink       logger.Sink
	httpClient loki.HTTPDoer
}

// WithSink sets the local sink. The default is the process-wide app logger.
func WithSink(s logger.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithHTTPClient sets the transport used for pushes.
func WithHTTPClient(d loki.HTTPDoer) Option {
	return func(o *options) { o.httpClient = d }
}

// Logger is safe for concurrent use. All of its fields are set at
// construction and never modified.
type Logger struct {
	name   string
	env    string
	sink   logger.Sink
	client *loki.Client
}

// New creates a Logger named name. It returns a *ConfigurationError when
// BaseURL or Environment is missing or the URL is unusable.
func New(name string, s Settings, opts ...Option) (*Logger, error) {
	o := buildOptions(opts)
	client, err := newClient(s, o)
	if err != nil {
		return nil, err
	}
	return newWithClient(name, s.Environment, o.sink, client), nil
}

// NewFromFile loads the YAML configuration at path and creates a Logger.
func NewFromFile(name, path string, opts ...Option) (*Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return New(name, SettingsFromConfig(cfg), opts...)
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = logger.GetAppLogger()
	}
	return o
}

func newClient(s Settings, o options) (*loki.Client, error) {
	if strings.TrimSpace(s.BaseURL) == "" {
		return nil, &ConfigurationError{Field: "base_url", Err: ErrMissingValue}
	}
	if strings.TrimSpace(s.Environment) == "" {
		return nil, &ConfigurationError{Field: "environment", Err: ErrMissingValue}
	}

	client, err := loki.NewClient(loki.ClientOptions{
		BaseURL:     s.BaseURL,
		Headers:     s.Headers,
		Compression: s.Compression,
		Timeout:     s.Timeout,
		HTTPClient:  o.httpClient,
		Sink:        o.sink,
	})
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return client, nil
}

func newWithClient(name, env string, sink logger.Sink, client *loki.Client) *Logger {
	return &Logger{
		name:   name,
		env:    env,
		sink:   sink,
		client: client,
	}
}

// Name returns the logger name, used as the default context.
func (l *Logger) Name() string {
	return l.name
}

// Debug logs message at debug level.
func (l *Logger) Debug(message interface{}, meta ...Meta) {
	l.LogContext(context.Background(), logger.DEBUG, message, meta...)
}

// Info logs message at info level.
func (l *Logger) Info(message interface{}, meta ...Meta) {
	l.LogContext(context.Background(), logger.INFO, message, meta...)
}

// Warning logs message at warning level.
func (l *Logger) Warning(message interface{}, meta ...Meta) {
	l.LogContext(context.Background(), logger.WARN, message, meta...)
}

// Error logs message at error level.
func (l *Logger) Error(message interface{}, meta ...Meta) {
	l.LogContext(context.Background(), logger.ERROR, message, meta...)
}

// Log logs message at an arbitrary level. Levels outside the four named
// ones are passed through, see LevelName.
func (l *Logger) Log(level logger.LogLevel, message interface{}, meta ...Meta) {
	l.LogContext(context.Background(), level, message, meta...)
}

// LogContext is Log with a context for the push request. When several Meta
// values are given, later non-empty fields win.
func (l *Logger) LogContext(ctx context.Context, level logger.LogLevel, message interface{}, meta ...Meta) {
	m := mergeMeta(meta)
	if m.Context == "" {
		m.Context = l.name
	}

	// FATAL exits the process in the app logger, so it is pushed first.
	if level >= logger.FATAL {
		l.push(ctx, level, message, m)
		l.logLocal(level, message, m)
		return
	}
	l.logLocal(level, message, m)
	l.push(ctx, level, message, m)
}

// logLocal must not keep the push from happening, so a panicking sink is
// ignored.
func (l *Logger) logLocal(level logger.LogLevel, message interface{}, m Meta) {
	defer func() { _ = recover() }()

	fields := logger.Fields{
		"org_id":  orUnknown(m.OrgID),
		"bot_id":  orUnknown(m.BotID),
		"context": m.Context,
	}
	if m.Trace != "" {
		fields["trace"] = m.Trace
	}
	l.sink.Log(level, localText(message), fields)
}

// push never panics into the caller: a panic while encoding a message
// (e.g. a broken MarshalJSON) is reported like any other delivery failure.
func (l *Logger) push(ctx context.Context, level logger.LogLevel, message interface{}, m Meta) {
	defer func() {
		if r := recover(); r != nil {
			l.client.Report(&loki.DeliveryError{Op: loki.OpEncode, URL: l.client.PushURL(), Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	rec, err := loki.BuildRecord(loki.Invocation{
		Level:   LevelName(level),
		Message: message,
		OrgID:   m.OrgID,
		BotID:   m.BotID,
		Context: m.Context,
		Trace:   m.Trace,
	}, l.env)
	if err != nil {
		l.client.Report(err)
		return
	}
	l.client.Deliver(ctx, rec)
}

// LevelName returns the wire name of a level: debug, info, warning, error.
// Other levels become their lower-cased local name ("trace", "level 15").
func LevelName(level logger.LogLevel) string {
	switch level {
	case logger.DEBUG:
		return "debug"
	case logger.INFO:
		return "info"
	case logger.WARN:
		return "warning"
	case logger.ERROR:
		return "error"
	}
	return strings.ToLower(level.String())
}

// ParseLevel maps a wire level name (case-insensitive) back to a local
// level. "warn" is accepted as an alias of "warning".
func ParseLevel(name string) (logger.LogLevel, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return logger.DEBUG, true
	case "info":
		return logger.INFO, true
	case "warning", "warn":
		return logger.WARN, true
	case "error":
		return logger.ERROR, true
	}
	return 0, false
}

func mergeMeta(meta []Meta) Meta {
	var m Meta
	for _, x := range meta {
		if x.OrgID != "" {
			m.OrgID = x.OrgID
		}
		if x.BotID != "" {
			m.BotID = x.BotID
		}
		if x.Context != "" {
			m.Context = x.Context
		}
		if x.Trace != "" {
			m.Trace = x.Trace
		}
	}
	return m
}

func orUnknown(s string) string {
	if s == "" {
		return loki.Unknown
	}
	return s
}

// localText renders the message for the local line without the wire quoting.
func localText(message interface{}) (text string) {
	if s, ok := message.(string); ok {
		return s
	}
	if loki.IsStructured(message) {
		defer func() {
			if recover() != nil {
				text = fmt.Sprint(message)
			}
		}()
		if b, err := json.Marshal(message); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(message)
}
