package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel specifies the level of spew that shoud go to the log
type LogLevel int32

const (
	// LogLevelUnknown is a default value for LogLevel. It's
	// behavior is undefined
	LogLevelUnknown LogLevel = iota

	// LogLevelPanic causes output of an error message followed by a panic
	LogLevelPanic

	// LogLevelFatal causes output of an error message followed by os.Exit(1)
	LogLevelFatal

	// LogLevelError is for unexpected error messages
	LogLevelError

	// LogLevelWarning is for Warning messages
	LogLevelWarning

	// LogLevelInfo is for Info messages
	LogLevelInfo

	// LogLevelDebug is for debug messaged
	LogLevelDebug

	// LogLevelTrace is for trace messages
	LogLevelTrace
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

var nameToLogLevel = func() map[string]LogLevel {
	result := make(map[string]LogLevel)
	for i, name := range logLevelNames {
		result[name] = LogLevel(i)
	}
	result["warn"] = LogLevelWarning
	return result
}()

// StringToLogLevel converts a string to a LogLevel
func StringToLogLevel(s string) LogLevel {
	result, ok := nameToLogLevel[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		result = LogLevelUnknown
	}
	return result
}

func (x LogLevel) String() string {
	if x < LogLevelUnknown || x > LogLevelTrace {
		x = LogLevelUnknown
	}
	return logLevelNames[x]
}

// ParseLogLevel converts a string to a LogLevel, failing on unknown names
func ParseLogLevel(s string) (LogLevel, error) {
	result := StringToLogLevel(s)
	if result == LogLevelUnknown {
		return result, fmt.Errorf("unknown log level: %q", s)
	}
	return result, nil
}

// zapLevel maps a LogLevel onto the closest zap level. Trace has no zap
// equivalent and is emitted at debug after our own level check.
func (x LogLevel) zapLevel() zapcore.Level {
	switch x {
	case LogLevelPanic:
		return zapcore.PanicLevel
	case LogLevelFatal:
		return zapcore.FatalLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarning:
		return zapcore.WarnLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Logger is an interface for a logging component that supports logging levels and prefix forking
type Logger interface {
	// Prefix returns the prefix string that is prepended to all messages
	Prefix() string

	// GetLogLevel returns the current log level
	GetLogLevel() LogLevel

	// SetLogLevel changes the log level of this logger and every logger forked from
	// the same root
	SetLogLevel(logLevel LogLevel)

	// Fork creates a new Logger that has an additional formatted string appended onto
	// an existing logger's prefix (with ": " added between)
	Fork(prefix string, args ...interface{}) Logger

	// ForkLogStr is like Fork but the new prefix segment is used verbatim
	ForkLogStr(prefix string) Logger

	// Panicf outputs a log message and then panics
	Panicf(f string, args ...interface{})

	// PanicOnError does nothing if err is nil; otherwise
	// outputs a log message and then panics
	PanicOnError(err error)

	// Logf outputs to a Logger iff logging level is enabled
	Logf(logLevel LogLevel, f string, args ...interface{})

	// ELogf outputs to a Logger iff ERROR logging level is enabled
	ELogf(f string, args ...interface{})

	// WLogf outputs to a Logger iff WARNING logging level is enabled
	WLogf(f string, args ...interface{})

	// ILogf outputs to a Logger iff INFO logging level is enabled
	ILogf(f string, args ...interface{})

	// DLog outputs to a Logger iff DEBUG logging level is enabled
	DLog(args ...interface{})

	// DLogf outputs to a Logger iff DEBUG logging level is enabled
	DLogf(f string, args ...interface{})

	// TLogf outputs to a Logger iff TRACE logging level is enabled
	TLogf(f string, args ...interface{})

	// Errorf returns an error object with a description string that has the
	// Logger's prefix
	Errorf(f string, args ...interface{}) error

	// ELogErrorf outputs an error message to a Logger iff logging level is enabled,
	// and returns an error object with a description string that has the
	// logger's prefix
	ELogErrorf(f string, args ...interface{}) error

	// WLogErrorf is like ELogErrorf at WARNING level
	WLogErrorf(f string, args ...interface{}) error

	// DLogErrorf is like ELogErrorf at DEBUG level
	DLogErrorf(f string, args ...interface{}) error

	// Sync flushes buffered output
	Sync() error
}

// levelState is shared by a root logger and all of its forks so that a level
// change applies to the whole tree.
type levelState struct {
	level atomic.Int32
	zl    zap.AtomicLevel
}

func (s *levelState) get() LogLevel {
	return LogLevel(s.level.Load())
}

func (s *levelState) set(lv LogLevel) {
	s.level.Store(int32(lv))
	s.zl.SetLevel(lv.zapLevel())
}

// zapLogger implements Logger on top of a zap.SugaredLogger
type zapLogger struct {
	sugar  *zap.SugaredLogger
	prefix string
	state  *levelState
}

type options struct {
	writer io.Writer
	level  LogLevel
	prefix string
	format string
}

// Option configures New
type Option func(*options)

// WithWriter sends output to w instead of stderr
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithLogLevel sets the initial log level
func WithLogLevel(logLevel LogLevel) Option {
	return func(o *options) { o.level = logLevel }
}

// WithPrefix sets the root prefix
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithFormat selects the "console" (default) or "json" encoder
func WithFormat(format string) Option {
	return func(o *options) { o.format = strings.ToLower(format) }
}

// New creates a root Logger
func New(opts ...Option) (Logger, error) {
	o := &options{
		writer: os.Stderr,
		level:  LogLevelInfo,
		format: "console",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.level == LogLevelUnknown {
		return nil, errors.New("logger: log level must be specified")
	}
	state := &levelState{zl: zap.NewAtomicLevel()}
	state.set(o.level)

	core := zapcore.NewNopCore()
	if o.writer != nil {
		core = zapcore.NewCore(newEncoder(o.format), zapcore.AddSync(o.writer), state.zl)
	}
	z := zap.New(core)
	return newZapLogger(z, o.prefix, state), nil
}

// FromZap wraps an existing zap.Logger. The zap logger's own level still applies
// on top of logLevel.
func FromZap(z *zap.Logger, logLevel LogLevel) Logger {
	state := &levelState{zl: zap.NewAtomicLevel()}
	state.set(logLevel)
	return newZapLogger(z, "", state)
}

func newZapLogger(z *zap.Logger, prefix string, state *levelState) *zapLogger {
	l := &zapLogger{
		prefix: prefix,
		state:  state,
	}
	sugar := z.Sugar()
	if prefix != "" {
		sugar = sugar.Named(prefix)
	}
	l.sugar = sugar
	return l
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// NilLogger is a Logger that discards everything
var NilLogger Logger = newZapLogger(zap.NewNop(), "", &levelState{zl: zap.NewAtomicLevelAt(zapcore.PanicLevel)})

func (l *zapLogger) Prefix() string {
	return l.prefix
}

func (l *zapLogger) GetLogLevel() LogLevel {
	return l.state.get()
}

func (l *zapLogger) SetLogLevel(logLevel LogLevel) {
	l.state.set(logLevel)
}

func (l *zapLogger) enabled(logLevel LogLevel) bool {
	return logLevel <= l.state.get()
}

func (l *zapLogger) Fork(prefix string, args ...interface{}) Logger {
	return l.ForkLogStr(fmt.Sprintf(prefix, args...))
}

func (l *zapLogger) ForkLogStr(prefix string) Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ": " + prefix
	}
	return &zapLogger{
		sugar:  l.sugar.Named(prefix),
		prefix: newPrefix,
		state:  l.state,
	}
}

func (l *zapLogger) Panicf(f string, args ...interface{}) {
	l.sugar.Panicf(f, args...)
}

func (l *zapLogger) PanicOnError(err error) {
	if err != nil {
		l.sugar.Panic(err)
	}
}

func (l *zapLogger) Logf(logLevel LogLevel, f string, args ...interface{}) {
	if !l.enabled(logLevel) {
		return
	}
	switch logLevel {
	case LogLevelPanic:
		l.sugar.Panicf(f, args...)
	case LogLevelFatal:
		l.sugar.Fatalf(f, args...)
	case LogLevelError:
		l.sugar.Errorf(f, args...)
	case LogLevelWarning:
		l.sugar.Warnf(f, args...)
	case LogLevelInfo:
		l.sugar.Infof(f, args...)
	default:
		l.sugar.Debugf(f, args...)
	}
}

func (l *zapLogger) ELogf(f string, args ...interface{}) {
	l.Logf(LogLevelError, f, args...)
}

func (l *zapLogger) WLogf(f string, args ...interface{}) {
	l.Logf(LogLevelWarning, f, args...)
}

func (l *zapLogger) ILogf(f string, args ...interface{}) {
	l.Logf(LogLevelInfo, f, args...)
}

func (l *zapLogger) DLog(args ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.sugar.Debug(args...)
	}
}

func (l *zapLogger) DLogf(f string, args ...interface{}) {
	l.Logf(LogLevelDebug, f, args...)
}

func (l *zapLogger) TLogf(f string, args ...interface{}) {
	l.Logf(LogLevelTrace, f, args...)
}

func (l *zapLogger) Errorf(f string, args ...interface{}) error {
	err := fmt.Errorf(f, args...)
	if l.prefix == "" {
		return err
	}
	return fmt.Errorf("%s: %w", l.prefix, err)
}

func (l *zapLogger) logError(logLevel LogLevel, f string, args ...interface{}) error {
	err := l.Errorf(f, args...)
	l.Logf(logLevel, "%s", fmt.Errorf(f, args...).Error())
	return err
}

func (l *zapLogger) ELogErrorf(f string, args ...interface{}) error {
	return l.logError(LogLevelError, f, args...)
}

func (l *zapLogger) WLogErrorf(f string, args ...interface{}) error {
	return l.logError(LogLevelWarning, f, args...)
}

func (l *zapLogger) DLogErrorf(f string, args ...interface{}) error {
	return l.logError(LogLevelDebug, f, args...)
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
