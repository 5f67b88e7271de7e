// Package scheduler runs the recurring pipeline jobs (fetch, detect, retry)
// on fixed intervals via robfig/cron. Jobs are registered by name; a second
// registration under the same name replaces the first. Each job skips its
// tick when the previous run is still in flight.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"matchbell/pkg/logx"
)

type Config struct {
	// Timezone for cron evaluation; empty means time.Local.
	Timezone string
}

// JobFunc is one scheduled unit of work. The context carries the job timeout
// and is cancelled on Stop.
type JobFunc func(ctx context.Context) error

type jobDef struct {
	name    string
	every   time.Duration
	timeout time.Duration
	run     JobFunc

	running atomic.Bool
}

// JobStatus is one row of the Status report.
type JobStatus struct {
	Name    string
	Every   time.Duration
	Next    time.Time
	Running bool
}

type Service struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger
	loc *time.Location

	c       *cron.Cron
	defs    map[string]*jobDef
	entries map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		defs:    make(map[string]*jobDef),
		entries: make(map[string]cron.EntryID),
	}
}

// Register adds or replaces the named interval job. Safe to call before or
// after Start.
func (s *Service) Register(name string, every, timeout time.Duration, run JobFunc) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if every <= 0 {
		return fmt.Errorf("scheduler: job %q needs a positive interval", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &jobDef{name: name, every: every, timeout: timeout, run: run}
	if old, ok := s.entries[name]; ok && s.c != nil {
		s.c.Remove(old)
		delete(s.entries, name)
	}
	s.defs[name] = d
	if s.c != nil {
		return s.scheduleLocked(d)
	}
	return nil
}

// Start begins ticking. Calling Start on a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.loc = s.loadLocationLocked()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithLocation(s.loc))

	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.scheduleLocked(s.defs[name]); err != nil {
			return err
		}
	}

	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("jobs", len(s.defs)),
		logx.String("tz", s.loc.String()))
	return nil
}

// Stop halts ticking and waits for in-flight runs to return. Idempotent.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	s.cancel()
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for jobs")
	}
	s.c = nil
	s.entries = make(map[string]cron.EntryID)
	s.log.Info("scheduler stopped")
}

// Status reports each registered job with its next fire time, sorted by name.
func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.defs))
	for name, d := range s.defs {
		st := JobStatus{Name: name, Every: d.every, Running: d.running.Load()}
		if id, ok := s.entries[name]; ok && s.c != nil {
			st.Next = s.c.Entry(id).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow executes the named job immediately, outside its schedule. Used by
// the bot's manual refresh commands. The overlap guard still applies.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.execute(ctx, d)
}

func (s *Service) scheduleLocked(d *jobDef) error {
	spec := fmt.Sprintf("@every %s", d.every)
	id, err := s.c.AddFunc(spec, func() {
		if err := s.execute(s.ctx, d); err != nil {
			s.log.Warn("job failed", logx.String("job", d.name), logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", d.name, err)
	}
	s.entries[d.name] = id
	return nil
}

func (s *Service) execute(ctx context.Context, d *jobDef) error {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("job still running, skipping tick", logx.String("job", d.name))
		return nil
	}
	defer d.running.Store(false)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.run(ctx)
	took := time.Since(start)
	if err != nil {
		s.log.Warn("job finished with error",
			logx.String("job", d.name),
			logx.Duration("took", took),
			logx.Err(err))
		return err
	}
	s.log.Debug("job finished",
		logx.String("job", d.name),
		logx.Duration("took", took))
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local",
			logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
