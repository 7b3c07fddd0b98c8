// Package registry holds the set of defined tasks, keyed by id. Registration
// validates the schedule expression; everything else about a task is opaque
// to the registry.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"marketsched/internal/calendar"
	"marketsched/internal/task"
	"marketsched/internal/trigger"
)

// Entry pairs a task definition with its parsed trigger. Triggers are
// compiled once here so the tick loop never re-matches expression strings.
type Entry struct {
	Task    task.Task
	Trigger trigger.Trigger
}

// Registry is safe for concurrent use: administrative add/remove can race
// with the tick loop reading List.
type Registry struct {
	mu      sync.RWMutex
	log     zerolog.Logger
	cal     calendar.Calendar
	order   []string
	entries map[string]Entry
}

func New(cal calendar.Calendar, log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("comp", "registry").Logger(),
		cal:     cal,
		entries: map[string]Entry{},
	}
}

// Add validates and registers t. An unrecognized schedule expression is an
// error and the task is not added. Re-adding an existing id overwrites it
// (last-write-wins) with a warning; an overwrite never interrupts an
// in-flight run of the old definition.
func (r *Registry) Add(t task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tr, err := trigger.Parse(t.Schedule, r.cal)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}

	r.mu.Lock()
	_, existed := r.entries[t.ID]
	r.entries[t.ID] = Entry{Task: t, Trigger: tr}
	if !existed {
		r.order = append(r.order, t.ID)
	}
	r.mu.Unlock()

	if existed {
		r.log.Warn().Str("task", t.ID).Msg("task redefined; previous definition replaced")
	} else {
		r.log.Info().Str("task", t.ID).Str("schedule", t.Schedule).Msg("task registered")
	}
	return nil
}

// Remove deletes the task. Returns false when absent. A removal only
// prevents future firings; it does not interrupt a run already in flight.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("task", id).Msg("task removed")
	}
	return ok
}

// SetEnabled flips the enabled flag. Returns false when the id is unknown.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.Task.Enabled = enabled
	r.entries[id] = e
	return true
}

func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sync replaces the registered set with tasks: present ids are upserted,
// absent ids removed. Invalid definitions are skipped with a warning so one
// bad entry in a reloaded config cannot drop the whole task set.
func (r *Registry) Sync(tasks []task.Task) {
	keep := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if err := r.Add(t); err != nil {
			r.log.Warn().Str("task", t.ID).Err(err).Msg("task rejected during sync")
			continue
		}
		keep[t.ID] = struct{}{}
	}
	for _, e := range r.List() {
		if _, ok := keep[e.Task.ID]; !ok {
			r.Remove(e.Task.ID)
		}
	}
}
