package homeai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is the wait between two status fetches.
	DefaultPollInterval = 2 * time.Second
	// DefaultPollAttempts is the fetch budget of one polling sequence.
	DefaultPollAttempts = 8
)

// PollOutcome says why a polling sequence stopped.
type PollOutcome int

const (
	// PollTerminal means the job reached completed, failed or canceled.
	PollTerminal PollOutcome = iota + 1
	// PollExhausted means the attempt budget ran out while the job was still running.
	PollExhausted
)

// String implements fmt.Stringer.
func (o PollOutcome) String() string {
	switch o {
	case PollTerminal:
		return "terminal"
	case PollExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// PollOptions configures PollUntilTerminal.
type PollOptions struct {
	// Interval between fetches. Defaults to DefaultPollInterval.
	Interval time.Duration
	// MaxAttempts is the fetch budget. Defaults to DefaultPollAttempts.
	MaxAttempts int
	// Immediate makes the first fetch happen without waiting Interval.
	Immediate bool
	// OnUpdate receives every fetched snapshot, terminal or not. It is never
	// called after the polling context is done.
	OnUpdate func(*RenderJob)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultPollAttempts
	}
	return o
}

// PollResult is the typed end of a polling sequence.
type PollResult struct {
	// Job is the last observed snapshot.
	Job *RenderJob
	// Attempts is the number of status fetches performed.
	Attempts int
	Outcome  PollOutcome
}

// Terminal reports whether the job finished.
func (r *PollResult) Terminal() bool {
	return r.Outcome == PollTerminal
}

// PollUntilTerminal fetches the job status until it is terminal or
// MaxAttempts fetches have been made.
//
// Running out of attempts is not an error: the result carries the last
// non-terminal snapshot with Outcome PollExhausted. Fetches are strictly
// sequential. When ctx is canceled the sequence stops with ctx.Err() and a
// response that was already in flight is discarded. A fetch error ends the
// sequence; nothing is retried.
func (s *RenderJobsService) PollUntilTerminal(ctx context.Context, jobID string, opts PollOptions) (*PollResult, error) {
	opts = opts.withDefaults()
	log := s.client.logger.With(slog.String("job_id", jobID))

	for attempt := 1; ; attempt++ {
		if attempt > 1 || !opts.Immediate {
			if err := sleepCtx(ctx, opts.Interval); err != nil {
				s.client.metrics.observePoll("canceled", attempt-1)
				return nil, err
			}
		}

		job, err := s.Get(ctx, jobID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.client.metrics.observePoll("canceled", attempt)
			return nil, ctxErr
		}
		if err != nil {
			s.client.metrics.observePoll("error", attempt)
			return nil, fmt.Errorf("homeai: poll render job %s (attempt %d): %w", jobID, attempt, err)
		}
		if opts.OnUpdate != nil {
			opts.OnUpdate(job)
		}

		if job.Status.IsTerminal() {
			log.Info("render job finished", slog.String("status", string(job.Status)), slog.Int("attempts", attempt))
			s.client.metrics.observePoll(PollTerminal.String(), attempt)
			return &PollResult{Job: job, Attempts: attempt, Outcome: PollTerminal}, nil
		}
		if attempt >= opts.MaxAttempts {
			log.Info("render job still running after poll budget", slog.String("status", string(job.Status)), slog.Int("attempts", attempt))
			s.client.metrics.observePoll(PollExhausted.String(), attempt)
			return &PollResult{Job: job, Attempts: attempt, Outcome: PollExhausted}, nil
		}

		log.Debug("render job pending", slog.String("status", string(job.Status)), slog.Int("attempt", attempt))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollTask is a polling sequence running in its own goroutine. It is the
// cancelable handle a screen holds while it shows a job.
type PollTask struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	result  *PollResult
	err     error
}

// StartPoll starts PollUntilTerminal in the background and returns its handle.
//
// OnUpdate runs under the task's lock so that once Stop returns no further
// update is delivered; OnUpdate must therefore not call Stop.
//
// Example:
//
//	task := client.RenderJobs.StartPoll(ctx, job.ID, homeai.PollOptions{
//	    OnUpdate: func(j *homeai.RenderJob) { view.Show(j) },
//	})
//	defer task.Stop()
//	res, err := task.Wait()
func (s *RenderJobsService) StartPoll(ctx context.Context, jobID string, opts PollOptions) *PollTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &PollTask{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	onUpdate := opts.OnUpdate
	opts.OnUpdate = func(job *RenderJob) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped || onUpdate == nil {
			return
		}
		onUpdate(job)
	}

	go func() {
		defer close(t.done)
		defer cancel()

		res, err := s.PollUntilTerminal(ctx, jobID, opts)

		t.mu.Lock()
		defer t.mu.Unlock()
		switch {
		case t.stopped:
			t.result, t.err = nil, ErrPollCanceled
		case err != nil && errors.Is(err, context.Canceled):
			t.result, t.err = nil, fmt.Errorf("%w: %w", ErrPollCanceled, err)
		default:
			t.result, t.err = res, err
		}
	}()
	return t
}

// JobID returns the polled job id.
func (t *PollTask) JobID() string {
	return t.jobID
}

// Stop cancels the task. It is idempotent and safe to call from any goroutine
// except from inside OnUpdate. After Stop returns no update is delivered.
func (t *PollTask) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancel()
}

// Done is closed when the task has finished.
func (t *PollTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its result. A stopped
// task returns ErrPollCanceled.
func (t *PollTask) Wait() (*PollResult, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}
