package formula

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vbeck/go-formula/internal/async"
)

// Job tracks a formula processed in the background.
type Job struct {
	inner *async.Job
}

// ID returns the job's unique identifier.
func (j *Job) ID() string {
	return j.inner.ID
}

// Wait blocks until the job finishes and returns its result. A job
// superseded by a newer one for the same slot returns ErrSuperseded.
func (j *Job) Wait() (*Result, error) {
	j.inner.Wait()
	return jobResult(j.inner)
}

// asyncEngine is embedded in Engine to keep the synchronous pipeline
// free of job state.
type asyncEngine struct {
	jobs   *async.Manager
	closed atomic.Bool
}

func (e *Engine) initAsync(retention time.Duration) {
	e.async.jobs = async.NewManager(retention, async.WithLogger(e.logger))
}

// ProcessAsync runs Process in the background. The slot key groups
// jobs: starting a new job for the same slot cancels the previous one,
// so an editor revalidating on every keystroke only ever observes the
// latest result.
func (e *Engine) ProcessAsync(ctx context.Context, source, slot string) (*Job, error) {
	if e.async.closed.Load() {
		return nil, ErrEngineClosed
	}

	handler := func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return e.Process(ctx, source)
	}

	var opts []async.JobOption
	if slot != "" {
		opts = append(opts, async.WithKey(slot))
	}

	job, err := e.async.jobs.StartJob(ctx, handler, opts...)
	if err != nil {
		return nil, err
	}
	return &Job{inner: job}, nil
}

// LatestResult returns the result of the most recent finished job for
// a slot, or ErrNoResult while no job for the slot has finished.
func (e *Engine) LatestResult(slot string) (*Result, error) {
	job, ok := e.async.jobs.LatestJob(slot)
	if !ok || job.CompletedAt == nil {
		return nil, ErrNoResult
	}
	return jobResult(job)
}

// Close stops background job processing. The synchronous pipeline
// remains usable.
func (e *Engine) Close() {
	if e.async.closed.CompareAndSwap(false, true) {
		e.async.jobs.Close()
	}
}

func jobResult(job *async.Job) (*Result, error) {
	result, _ := job.Result.(*Result)
	switch job.Status {
	case async.JobCanceled:
		return nil, ErrSuperseded
	case async.JobFailed:
		return result, &jobError{message: job.Error}
	}
	return result, nil
}

type jobError struct {
	message string
}

func (e *jobError) Error() string { return e.message }
