package scheduler

import (
	"context"
	"time"

	"marketsched/internal/registry"
	"marketsched/internal/task"
)

// tick evaluates every enabled task once. Entries are visited in registry
// order, but dispatched firings run concurrently with no ordering guarantee.
func (s *Scheduler) tick(now time.Time, stopCh <-chan struct{}) {
	entries := s.reg.List()
	s.pruneStale(entries)

	for _, e := range entries {
		t := e.Task
		if !t.Enabled {
			continue
		}
		if !s.due(e, now) {
			continue
		}
		if !s.markInflight(t.ID) {
			// Previous firing still running: drop this instant, don't queue it.
			s.log.Debug().Str("task", t.ID).Msg("still in flight; dropping firing")
			continue
		}

		if t.MarketHoursOnly && !s.cal.IsOpen(now) {
			s.eng.Skip(t, "market closed")
			s.clearInflight(t.ID)
			continue
		}
		if !s.hist.DependenciesSatisfied(t, now) {
			s.eng.Skip(t, "dependencies not satisfied")
			s.clearInflight(t.ID)
			continue
		}

		s.taskWG.Add(1)
		go s.runTask(t, stopCh)
	}
}

// runTask executes one gated firing on its own goroutine, bounded by the
// semaphore and the optional dispatch limiter.
func (s *Scheduler) runTask(t task.Task, stopCh <-chan struct{}) {
	defer s.taskWG.Done()
	defer s.clearInflight(t.ID)

	// gateCtx aborts the pre-spawn waits on stop; the execution context stays
	// independent so stopping never kills a child process.
	gateCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-gateCtx.Done():
		}
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(gateCtx); err != nil {
			s.eng.Skip(t, "scheduler stopping")
			return
		}
	}
	if err := s.sem.Acquire(gateCtx, 1); err != nil {
		s.eng.Skip(t, "scheduler stopping")
		return
	}
	defer s.sem.Release(1)

	s.eng.Execute(context.Background(), stopCh, t)
}

// due reports whether now has reached the task's next computed firing
// instant, advancing it when so. The first sighting of a task (or of a
// redefined schedule) only seeds the instant.
func (s *Scheduler) due(e registry.Entry, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	nr, ok := s.nextRuns[e.Task.ID]
	if !ok || nr.expr != e.Trigger.Raw {
		s.nextRuns[e.Task.ID] = nextRun{expr: e.Trigger.Raw, at: e.Trigger.Next(now)}
		return false
	}
	if now.Before(nr.at) {
		return false
	}
	s.nextRuns[e.Task.ID] = nextRun{expr: nr.expr, at: e.Trigger.Next(now)}
	return true
}

func (s *Scheduler) markInflight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) clearInflight(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// pruneStale drops next-run state for tasks no longer registered. A removed
// id must lose its instant even when the map sizes match (one removal and
// one addition between ticks), or re-adding it would fire off the past
// instant immediately.
func (s *Scheduler) pruneStale(entries []registry.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.Task.ID] = struct{}{}
	}
	for id := range s.nextRuns {
		if _, ok := keep[id]; !ok {
			delete(s.nextRuns, id)
		}
	}
}
