package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA name; empty means Local
}

type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    Spec
	timeout time.Duration
	run     Job
	running *atomic.Bool
	entryID cron.EntryID
}

// Entry describes one registered job.
type Entry struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next,omitempty"`
	Prev    time.Time     `json:"prev,omitempty"`
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	jobs   map[string]*jobDef
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional accepts both 5- and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*jobDef{},
	}
}

// Add registers or replaces the job called name. Jobs added before Start are
// scheduled when it runs.
func (s *Service) Add(name, schedule string, timeout time.Duration, run Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("job name required")
	}
	if run == nil {
		return errors.New("job func required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	if _, err := s.parser.Parse(spec.Expr()); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &jobDef{name: name, spec: spec, timeout: timeout, run: run, running: &atomic.Bool{}}
	s.jobs[name] = d
	if s.c != nil {
		if err := s.scheduleLocked(d); err != nil {
			delete(s.jobs, name)
			return err
		}
	}
	s.log.Debug("job registered", logx.String("job", name), logx.String("spec", spec.Expr()), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.jobs, name)
	return true
}

func (s *Service) scheduleLocked(d *jobDef) error {
	id, err := s.c.AddFunc(d.spec.Expr(), func() { s.exec(d) })
	if err != nil {
		return fmt.Errorf("job %s: %w", d.name, err)
	}
	d.entryID = id
	return nil
}

// Start begins ticking. Jobs run on cron's goroutines under ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	loc := s.location()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.jobs {
		if err := s.scheduleLocked(d); err != nil {
			s.log.Error("job schedule failed", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts ticking and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
}

// Apply swaps config. A timezone change restarts the cron loop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Entries lists registered jobs sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, d := range s.jobs {
		e := Entry{Name: d.name, Spec: d.spec.Expr(), Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			ce := s.c.Entry(d.entryID)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// exec runs one tick of d, skipping when the previous tick is still running.
func (s *Service) exec(d *jobDef) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("job still running; tick skipped", logx.String("job", d.name))
		return
	}
	defer d.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", logx.String("job", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return d.run(ctx)
	}()
	if err != nil {
		s.log.Warn("job failed", logx.String("job", d.name), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job completed", logx.String("job", d.name), logx.Duration("dur", time.Since(start)))
}
