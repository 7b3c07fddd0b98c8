// Package executor runs a single task firing: it spawns the external command,
// enforces the wall-clock timeout, retries clean non-zero exits with capped
// exponential backoff, and always emits exactly one terminal result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"marketsched/internal/history"
	"marketsched/internal/task"
)

// Options tune the retry policy. Zero values take the production defaults;
// tests shrink the delays.
type Options struct {
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	OutputLimit   int
}

func (o Options) withDefaults() Options {
	if o.RetryBase <= 0 {
		o.RetryBase = 60 * time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 300 * time.Second
	}
	if o.OutputLimit <= 0 {
		o.OutputLimit = 64 << 10
	}
	return o
}

type Engine struct {
	log  zerolog.Logger
	hist *history.Log
	opt  Options
}

func New(hist *history.Log, opt Options, log zerolog.Logger) *Engine {
	return &Engine{
		log:  log.With().Str("comp", "executor").Logger(),
		hist: hist,
		opt:  opt.withDefaults(),
	}
}

// Skip records the terminal result for a firing rejected by gating. The
// reason is logged only; a skip carries no output or error.
func (e *Engine) Skip(t task.Task, reason string) task.Result {
	r := task.Skipped(t, time.Now())
	e.log.Info().Str("task", t.ID).Str("reason", reason).Msg("firing skipped")
	e.hist.Append(r)
	return r
}

// Execute runs one firing of t to a terminal state and appends the result.
// ctx bounds the whole firing (it is not the per-attempt timeout); stopCh
// interrupts backoff sleeps between attempts but never a running process.
func (e *Engine) Execute(ctx context.Context, stopCh <-chan struct{}, t task.Task) task.Result {
	start := time.Now()
	res := task.NewResult(t, start)
	res.Status = task.StatusRunning

	defer func() {
		if r := recover(); r != nil {
			// A panic here is a bug, but it must become a FAILED result, not a
			// crashed scheduler.
			e.log.Error().Str("task", t.ID).Any("panic", r).Str("stack", string(debug.Stack())).Msg("panic during execution")
			res.Status = task.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", r)
			e.finish(&res, start)
		}
	}()

	attempt := 0
	for {
		e.log.Info().Str("task", t.ID).Int("attempt", attempt).Str("cmd", t.Command).Msg("spawning")
		out, err := e.runAttempt(ctx, t)
		res.Output = out

		switch {
		case err == nil:
			res.Status = task.StatusSuccess
			res.Error = ""
		case errors.Is(err, errTimeout):
			// A timed-out command is in an unknown state; blind retries would
			// compound resource usage, so timeout is terminal.
			res.Status = task.StatusFailed
			res.Error = err.Error()
		case isExitError(err) && attempt < t.MaxRetries:
			delay := backoffDelay(e.opt, attempt)
			e.log.Warn().Str("task", t.ID).Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("attempt failed; retrying")
			if werr := waitBackoff(ctx, stopCh, delay); werr != nil {
				res.Status = task.StatusFailed
				res.Error = werr.Error()
				res.RetryCount = attempt
				e.finish(&res, start)
				return res
			}
			attempt++
			continue
		default:
			// Retries exhausted, or the spawn itself failed (bad binary,
			// permission, I/O): terminal failure either way.
			res.Status = task.StatusFailed
			res.Error = err.Error()
		}

		res.RetryCount = attempt
		e.finish(&res, start)
		return res
	}
}

func (e *Engine) finish(res *task.Result, start time.Time) {
	res.Ended = time.Now()
	res.Duration = res.Ended.Sub(start)
	ev := e.log.Info()
	if res.Status == task.StatusFailed {
		ev = e.log.Warn()
	}
	ev.Str("task", res.TaskID).Str("status", string(res.Status)).
		Dur("dur", res.Duration).Int("retries", res.RetryCount).
		Str("err", res.Error).Msg("firing finished")
	e.hist.Append(*res)
}

var errTimeout = errors.New("timeout")

// runAttempt spawns the task's argv once and waits for it. The command string
// is never handed to a shell.
func (e *Engine) runAttempt(ctx context.Context, t task.Task) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.Argv[0], t.Argv[1:]...)
	out := newLimitBuffer(e.opt.OutputLimit)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("%w after %s", errTimeout, t.Timeout)
	}
	if err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

func isExitError(err error) bool {
	var ee *exec.ExitError
	return errors.As(err, &ee)
}

// backoffDelay is min(base * 2^attempt, cap). No jitter: operators reason
// about the retry timeline from the logs.
func backoffDelay(opt Options, attempt int) time.Duration {
	d := opt.RetryBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= opt.RetryMaxDelay {
			return opt.RetryMaxDelay
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}

func waitBackoff(ctx context.Context, stopCh <-chan struct{}, delay time.Duration) error {
	tmr := time.NewTimer(delay)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return errors.New("scheduler stopped during backoff")
	case <-tmr.C:
		return nil
	}
}
