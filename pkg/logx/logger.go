package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const (
	timeFormat = "2006-01-02T15:04:05.000Z07:00"
	errorKey   = "err"
	// Frames between the caller and runtime.Caller inside emit.
	callerSkip = 3
)

func init() {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = errorKey
}

// Logger writes structured records.
//
// A Logger from Service.Logger or New follows that Service across Apply calls.
// Standalone loggers (NewConsole, NewJSON, Nop) keep their writer for life.
// Logger is a small value; copy it freely.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool

	fields []Field
}

// Nop returns a logger that drops every record.
func Nop() Logger { return standalone(zerolog.Nop()) }

// NewConsole logs to stdout in console format. cmd/notifyd uses it until the
// config file has been read.
func NewConsole(level string) Logger {
	return standalone(newRoot(newConsoleWriter(Stdout()), parseLevel(level, LevelInfo)))
}

// NewJSON writes one JSON object per record to w.
func NewJSON(w io.Writer, level string) Logger {
	return standalone(newRoot(w, parseLevel(level, LevelInfo)))
}

func standalone(zl zerolog.Logger) Logger { return Logger{base: zl, hasBase: true} }

func newRoot(w io.Writer, lvl Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// IsZero reports whether l is the zero Logger.
func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.hasBase:
		return l.base
	default:
		return zerolog.Nop()
	}
}

// Enabled reports whether a record at level would be written.
func (l Logger) Enabled(level Level) bool {
	zl := l.root()
	return level >= zl.GetLevel()
}

// With returns a copy of l that adds fields to every record.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return cp
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(LevelTrace, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l Logger) emit(level Level, msg string, fields []Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if caller := shortCaller(callerSkip); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	applyFields(e, l.fields)
	applyFields(e, fields)
	e.Msg(msg)
}

func applyFields(e *zerolog.Event, fields []Field) {
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
}

// shortCaller renders file:line without the directory.
func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// parseLevel accepts level names in any case, plus "warning". Anything else
// yields def.
func parseLevel(s string, def Level) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return def
	}
}
