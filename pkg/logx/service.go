package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultFilePath is used when file logging is enabled without a path.
const DefaultFilePath = "./notifyd.log"

// Config selects the level and sinks. With no sink enabled, logs go to the console.
type Config struct {
	Level   string // trace, debug, info, warn, error; default info
	Console bool
	File    FileConfig
}

// FileConfig appends JSON lines to Path.
type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process-wide sinks and can swap them at runtime.
// Loggers it hands out read the current sink on every record.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File

	root atomic.Pointer[zerolog.Logger]
}

// New builds a Service from cfg and returns it with its root Logger.
// A log file that cannot be opened is reported on stderr and skipped.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, s.Logger()
}

// Logger returns a Logger bound to s.
func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Config returns the last applied config.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply replaces the level and sinks. The previous log file is closed after
// the new root is in place. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writers, file := openSinks(cfg)
	zl := newRoot(zerolog.MultiLevelWriter(writers...), parseLevel(cfg.Level, LevelInfo))
	s.root.Store(&zl)

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
	s.cfg = cfg
}

// Close releases the log file. Records after Close still reach the console sink if any.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func openSinks(cfg Config) ([]io.Writer, *os.File) {
	var (
		writers []io.Writer
		file    *os.File
	)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: open %q: %v\n", path, err)
		} else {
			file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	return writers, file
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

// Stdout is the console sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr receives logx's own failures.
func Stderr() io.Writer { return os.Stderr }
