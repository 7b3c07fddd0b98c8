package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"marketsched/internal/calendar"
	"marketsched/internal/executor"
	"marketsched/internal/history"
	"marketsched/internal/registry"
)

type Config struct {
	// TickInterval is the loop resolution. Default 1s.
	TickInterval time.Duration
	// MaxConcurrent bounds simultaneously executing tasks. Default 8.
	MaxConcurrent int64
	// DispatchPerSec caps process-spawn bursts; 0 disables the limiter.
	DispatchPerSec float64
	// DrainTimeout bounds the wait for in-flight executions on Stop. Default 30s.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// loopExitTimeout bounds the Stop wait for the tick goroutine itself.
const loopExitTimeout = 10 * time.Second

// nextRun remembers the computed next firing instant per task. The raw
// expression is kept so a redefined schedule invalidates the stale instant.
type nextRun struct {
	expr string
	at   time.Time
}

type Scheduler struct {
	log zerolog.Logger
	cfg Config

	reg  *registry.Registry
	hist *history.Log
	cal  calendar.Calendar
	eng  *executor.Engine

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}
	inflight map[string]struct{}
	nextRuns map[string]nextRun
	taskWG   sync.WaitGroup
}

func New(cfg Config, reg *registry.Registry, hist *history.Log, cal calendar.Calendar, eng *executor.Engine, log zerolog.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		log:      log.With().Str("comp", "scheduler").Logger(),
		cfg:      cfg,
		reg:      reg,
		hist:     hist,
		cal:      cal,
		eng:      eng,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		inflight: map[string]struct{}{},
		nextRuns: map[string]nextRun{},
	}
	if cfg.DispatchPerSec > 0 {
		burst := int(cfg.MaxConcurrent)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchPerSec), burst)
	}
	return s
}

// Start launches the tick loop on a background goroutine. Idempotent while
// running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	// Instants computed before a stop are stale. Reseeding on the first tick
	// drops firings missed while stopped instead of replaying them.
	s.nextRuns = map[string]nextRun{}
	stopCh, done := s.stopCh, s.loopDone
	s.mu.Unlock()

	go s.loop(stopCh, done)
	s.log.Info().Dur("tick", s.cfg.TickInterval).Int64("max_concurrent", s.cfg.MaxConcurrent).Msg("scheduler started")
}

// Stop signals the loop and drains best-effort. Safe to call repeatedly;
// subsequent calls return immediately with the scheduler stopped.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, done := s.stopCh, s.loopDone
	s.stopCh = nil
	s.mu.Unlock()

	start := time.Now()
	close(stopCh)

	select {
	case <-done:
	case <-time.After(loopExitTimeout):
		s.log.Warn().Msg("tick loop did not exit in time")
	case <-ctx.Done():
	}

	drained := make(chan struct{})
	go func() {
		s.taskWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		s.log.Info().Dur("took", time.Since(start)).Msg("scheduler stopped")
	case <-time.After(s.cfg.DrainTimeout):
		// Abandon the wait; running child processes are left untouched.
		s.log.Warn().Dur("drain_timeout", s.cfg.DrainTimeout).Msg("in-flight tasks still running; abandoning drain")
	case <-ctx.Done():
		s.log.Warn().Msg("stop context cancelled before drain finished")
	}
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			s.safeTick(now, stopCh)
		}
	}
}

// safeTick keeps a panicking tick from taking down the loop.
func (s *Scheduler) safeTick(now time.Time, stopCh <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Any("panic", r).Str("stack", string(debug.Stack())).Msg("panic in tick")
		}
	}()
	s.tick(now, stopCh)
}
