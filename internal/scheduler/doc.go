// Package scheduler is the top-level coordinator. A single background
// goroutine ticks on a fixed short interval; each tick asks the trigger of
// every enabled task whether "now" is a firing instant, applies the
// market-hours and dependency gates, and hands runnable firings to the
// execution engine on their own goroutines so a slow task never delays the
// detection of other tasks' firing instants.
//
// Concurrent executions are bounded by a weighted semaphore, and an optional
// rate limiter caps process-spawn bursts. A task whose previous firing is
// still in flight is dropped for the tick, not queued.
//
// Stop is a best-effort graceful drain: it waits (bounded) for the tick loop
// to exit and then (bounded) for in-flight executions to finish. Exceeding
// the bound abandons the wait without killing child processes.
package scheduler
