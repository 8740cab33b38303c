package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"virtufit-backend/internal/retry"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultTimeBudget      = 50 * time.Second
	DefaultMaxUnrecognized = 3
)

// Observer receives relay activity. The metrics collector implements it.
type Observer interface {
	ObserveSubmit(provider string, err error, elapsed time.Duration)
	ObservePoll(provider string, status Status, err error)
	ObserveAwait(provider string, status Status, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmit(string, error, time.Duration)  {}
func (nopObserver) ObservePoll(string, Status, error)           {}
func (nopObserver) ObserveAwait(string, Status, time.Duration) {}

// Options tunes a Relay. Zero values fall back to package defaults.
type Options struct {
	MaxImageBytes   int64
	MaxUnrecognized int
	Retry           retry.Policy
	Observer        Observer
	Logger          *zap.Logger
}

// Relay turns a provider's asynchronous job API into submit, poll and
// budget-bounded await operations. It holds no per-task state and is safe for
// concurrent use.
type Relay struct {
	provider        Provider
	retryer         *retry.Retryer
	observer        Observer
	logger          *zap.Logger
	maxImageBytes   int64
	maxUnrecognized int
	now             func() time.Time
}

func New(provider Provider, opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "relay"), zap.String("provider", provider.Name()))

	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	maxUnrecognized := opts.MaxUnrecognized
	if maxUnrecognized <= 0 {
		maxUnrecognized = DefaultMaxUnrecognized
	}

	return &Relay{
		provider:        provider,
		retryer:         retry.NewRetryer(policy, logger),
		observer:        observer,
		logger:          logger,
		maxImageBytes:   opts.MaxImageBytes,
		maxUnrecognized: maxUnrecognized,
		now:             time.Now,
	}
}

func (r *Relay) Provider() Provider {
	return r.provider
}

// Submit validates the image, checks credentials and creates a provider job.
// Nothing leaves the process when validation or configuration fails.
func (r *Relay) Submit(ctx context.Context, img Image, opts SubmitOptions) (*TaskHandle, error) {
	if err := ValidateImage(img, r.maxImageBytes); err != nil {
		return nil, err
	}
	if err := r.provider.CheckCredentials(); err != nil {
		return nil, err
	}

	start := r.now()
	var taskID string
	err := r.retryer.Do(ctx, "submit", func(ctx context.Context) error {
		id, err := r.provider.Submit(ctx, img, opts)
		if err != nil {
			return err
		}
		taskID = id
		return nil
	})
	r.observer.ObserveSubmit(r.provider.Name(), err, r.now().Sub(start))
	if err != nil {
		r.logger.Warn("submit failed", zap.Error(err))
		return nil, err
	}
	if taskID == "" {
		return nil, &Error{
			Kind:     KindTransport,
			Provider: r.provider.Name(),
			Code:     CodeProviderError,
			Message:  "provider returned an empty task id",
		}
	}

	r.logger.Info("task submitted", zap.String("task_id", taskID), zap.Bool("url_input", img.IsURL()))
	return &TaskHandle{TaskID: taskID, Provider: r.provider.Name(), CreatedAt: start}, nil
}

// Poll reads the task once. An unrecognized vendor status is reported as
// running with Unrecognized set; only AwaitCompletion escalates it.
func (r *Relay) Poll(ctx context.Context, taskID string) (*Snapshot, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	if err := r.provider.CheckCredentials(); err != nil {
		return nil, err
	}

	pt, err := r.pollProvider(ctx, taskID)
	if err != nil {
		r.observer.ObservePoll(r.provider.Name(), "", err)
		return nil, err
	}

	snap, ok := r.Normalize(pt)
	if !ok {
		snap = &Snapshot{
			TaskID:       taskID,
			Provider:     r.provider.Name(),
			Status:       StatusRunning,
			RawStatus:    pt.RawStatus,
			Progress:     clampProgress(pt.Progress),
			PolledAt:     r.now(),
			Unrecognized: true,
		}
	}
	if snap.TaskID == "" {
		snap.TaskID = taskID
	}
	r.observer.ObservePoll(r.provider.Name(), snap.Status, nil)
	return snap, nil
}

// AwaitCompletion polls every pollInterval until the task is terminal or the
// effective budget, min(timeBudget, time left on ctx), is spent. On budget
// exhaustion it returns the last non-terminal snapshot with a nil error.
// Cancelling ctx returns the context error.
func (r *Relay) AwaitCompletion(ctx context.Context, taskID string, pollInterval, timeBudget time.Duration) (*Snapshot, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	if err := r.provider.CheckCredentials(); err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeBudget <= 0 {
		timeBudget = DefaultTimeBudget
	}

	start := r.now()
	budget := EffectiveBudget(ctx, timeBudget, start)
	loopCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	task := NewTask(TaskHandle{TaskID: taskID, Provider: r.provider.Name(), CreatedAt: start})
	finish := func(snap *Snapshot) (*Snapshot, error) {
		r.observer.ObserveAwait(r.provider.Name(), snap.Status, r.now().Sub(start))
		return snap, nil
	}

	unrecognized := 0
	for {
		pt, err := r.pollProvider(loopCtx, taskID)
		if err != nil {
			r.observer.ObservePoll(r.provider.Name(), "", err)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			if loopCtx.Err() != nil {
				r.logger.Info("time budget spent during poll", zap.String("task_id", taskID))
				return finish(task.Snapshot())
			}
			return nil, err
		}

		snap, ok := r.Normalize(pt)
		if !ok {
			unrecognized++
			r.observer.ObservePoll(r.provider.Name(), "", nil)
			r.logger.Warn("unrecognized provider status",
				zap.String("task_id", taskID),
				zap.String("raw_status", pt.RawStatus),
				zap.Int("consecutive", unrecognized),
			)
			if unrecognized >= r.maxUnrecognized {
				task.Apply(&Snapshot{
					TaskID:    taskID,
					Provider:  r.provider.Name(),
					Status:    StatusFailed,
					RawStatus: pt.RawStatus,
					Error: &TaskError{
						Code:    CodeUnrecognizedStatus,
						Message: fmt.Sprintf("provider reported unrecognized status %q %d times in a row", pt.RawStatus, unrecognized),
					},
					PolledAt: r.now(),
				})
				return finish(task.Snapshot())
			}
		} else {
			unrecognized = 0
			r.observer.ObservePoll(r.provider.Name(), snap.Status, nil)
			task.Apply(snap)
			if task.Status.IsTerminal() {
				r.logger.Info("task finished",
					zap.String("task_id", taskID),
					zap.String("status", string(task.Status)),
					zap.Duration("elapsed", r.now().Sub(start)),
				)
				return finish(task.Snapshot())
			}
		}

		wait := pollInterval
		if remaining := time.Until(deadlineOf(loopCtx, start.Add(budget))); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			return finish(task.Snapshot())
		}

		timer := time.NewTimer(wait)
		select {
		case <-loopCtx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return finish(task.Snapshot())
		case <-timer.C:
		}
		if loopCtx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return finish(task.Snapshot())
		}
	}
}

// Normalize maps a raw provider report onto a Snapshot. It reports false when
// the raw status is not in the provider's table.
func (r *Relay) Normalize(pt *ProviderTask) (*Snapshot, bool) {
	return NormalizeReport(r.provider.Name(), r.provider.StatusTable(), pt, r.now())
}

// NormalizeReport applies a status table and the result invariants to one
// provider report: success requires a valid result URL, failures always carry
// an error.
func NormalizeReport(provider string, table *StatusTable, pt *ProviderTask, now time.Time) (*Snapshot, bool) {
	status, ok := table.Lookup(pt.RawStatus)
	if !ok {
		return nil, false
	}

	snap := &Snapshot{
		TaskID:    pt.ID,
		Provider:  provider,
		Status:    status,
		RawStatus: pt.RawStatus,
		Progress:  clampProgress(pt.Progress),
		PolledAt:  now,
	}

	switch {
	case status == StatusSucceeded:
		if !ValidResultURL(pt.ResultURL) {
			snap.Status = StatusFailed
			snap.Error = &TaskError{
				Code:    CodeMissingResult,
				Message: "provider reported success without a model URL",
			}
			return snap, true
		}
		snap.Progress = 100
		snap.ResultURL = pt.ResultURL
		if ValidResultURL(pt.ThumbnailURL) {
			snap.ThumbnailURL = pt.ThumbnailURL
		}
	case status.IsFailure():
		code := pt.ErrorCode
		if code == "" {
			code = "task-" + string(status)
		}
		msg := pt.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("%s task ended with status %q", provider, pt.RawStatus)
		}
		snap.Error = &TaskError{Code: code, Message: msg, Suggestion: pt.ErrorSuggestion}
	}
	return snap, true
}

// EffectiveBudget is min(budget, time remaining until ctx's deadline).
func EffectiveBudget(ctx context.Context, budget time.Duration, now time.Time) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := deadline.Sub(now); remaining < budget {
			budget = remaining
		}
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}

func (r *Relay) pollProvider(ctx context.Context, taskID string) (*ProviderTask, error) {
	var pt *ProviderTask
	err := r.retryer.Do(ctx, "poll", func(ctx context.Context) error {
		got, err := r.provider.Poll(ctx, taskID)
		if err != nil {
			return err
		}
		pt = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pt == nil {
		return nil, &Error{
			Kind:     KindTransport,
			Provider: r.provider.Name(),
			Code:     CodeProviderError,
			Message:  "provider returned an empty task report",
		}
	}
	if pt.ID == "" {
		pt.ID = taskID
	}
	return pt, nil
}

func deadlineOf(ctx context.Context, fallback time.Time) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return fallback
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
