// Package async runs formula pipeline work in the background. Editors
// revalidate on every keystroke; the manager tracks those jobs, lets a
// newer job for the same formula slot supersede an older one, and
// retains finished results for polling until their TTL expires.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultJobRetention is the default amount of time completed jobs
	// are retained for polling.
	DefaultJobRetention = 10 * time.Minute
)

// JobStatus represents the lifecycle state of an asynchronous job.
type JobStatus string

const (
	// JobPending indicates the job has been created but not yet started.
	JobPending JobStatus = "pending"
	// JobRunning indicates the job handler is executing.
	JobRunning JobStatus = "running"
	// JobCompleted indicates the job handler succeeded and produced a result.
	JobCompleted JobStatus = "completed"
	// JobFailed indicates the job handler finished with an error.
	JobFailed JobStatus = "failed"
	// JobCanceled indicates the job was canceled or superseded before completion.
	JobCanceled JobStatus = "canceled"
)

// Job represents the execution of an asynchronous handler.
type Job struct {
	ID          string
	Key         string
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	Result      any
	Error       string

	cancel context.CancelFunc
	done   chan struct{}
}

// JobOption mutates a job at creation time.
type JobOption func(*Job)

// WithKey groups a job under a slot key. Starting a new job with the
// same key cancels the previous one, so only the latest result for a
// slot survives.
func WithKey(key string) JobOption {
	return func(j *Job) {
		j.Key = key
	}
}

// Handler is the unit of work executed for an asynchronous job.
type Handler func(ctx context.Context) (any, error)

// Manager supervises asynchronous jobs, tracking their lifecycle and cleanup.
type Manager struct {
	mu            sync.Mutex
	jobs          map[string]*Job
	keyed         map[string]string
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	logger        *slog.Logger
}

type managerConfig struct {
	disableRetention bool
	logger           *slog.Logger
}

// ManagerOption configures behaviour of NewManager.
type ManagerOption func(*managerConfig)

// WithRetentionDisabled prevents the manager from applying a default TTL and disables cleanup.
func WithRetentionDisabled() ManagerOption {
	return func(cfg *managerConfig) {
		cfg.disableRetention = true
	}
}

// WithLogger sets the logger used for job lifecycle events.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.logger = logger
	}
}

// NewManager constructs a Manager with the supplied TTL for completed jobs.
// A zero TTL applies DefaultJobRetention unless WithRetentionDisabled is provided.
func NewManager(ttl time.Duration, opts ...ManagerOption) *Manager {
	cfg := managerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	effectiveTTL := ttl
	if cfg.disableRetention {
		effectiveTTL = 0
	} else if effectiveTTL <= 0 {
		effectiveTTL = DefaultJobRetention
	}

	m := &Manager{
		jobs:        make(map[string]*Job),
		keyed:       make(map[string]string),
		ttl:         effectiveTTL,
		stopCleanup: make(chan struct{}),
		logger:      cfg.logger,
	}

	if effectiveTTL > 0 {
		interval := effectiveTTL / 2
		if interval <= 0 {
			interval = effectiveTTL
		}
		m.cleanupTicker = time.NewTicker(interval)
		go func() {
			for {
				select {
				case <-m.cleanupTicker.C:
					m.cleanupExpired()
				case <-m.stopCleanup:
					m.cleanupTicker.Stop()
					return
				}
			}
		}()
	}

	return m
}

// Close stops the manager's background cleanup.
func (m *Manager) Close() {
	if m.cleanupTicker == nil {
		return
	}
	select {
	case <-m.stopCleanup:
		// already closed
	default:
		close(m.stopCleanup)
	}
}

// StartJob registers a new asynchronous job and launches the handler in
// a goroutine. If the job carries a key, any earlier unfinished job for
// the same key is canceled first.
func (m *Manager) StartJob(ctx context.Context, handler Handler, opts ...JobOption) (*Job, error) {
	if handler == nil {
		return nil, errors.New("async: handler is required")
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(job)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel

	m.mu.Lock()
	var superseded *Job
	if job.Key != "" {
		if previousID, ok := m.keyed[job.Key]; ok {
			superseded = m.jobs[previousID]
		}
		m.keyed[job.Key] = job.ID
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if superseded != nil && superseded.cancel != nil {
		superseded.cancel()
	}

	go m.run(job, jobCtx, handler)

	return job, nil
}

// GetJob retrieves a point-in-time snapshot of a job by ID. The
// snapshot's fields do not change once returned, so callers can read
// them while the handler is still running.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshotLocked(), true
}

// LatestJob retrieves a point-in-time snapshot of the most recent job
// started under a slot key.
func (m *Manager) LatestJob(key string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keyed[key]
	if !ok {
		return nil, false
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshotLocked(), true
}

// snapshotLocked copies the job's mutable state. The manager mutex
// must be held. The copy shares the done channel, so Wait on a
// snapshot still observes the original job finishing.
func (j *Job) snapshotLocked() *Job {
	snap := *j
	return &snap
}

// CancelJob requests cancellation of the specified job.
func (m *Manager) CancelJob(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	if job.Status == JobCompleted || job.Status == JobFailed || job.Status == JobCanceled {
		m.mu.Unlock()
		return false
	}

	cancel := job.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	return true
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait() {
	<-j.done
}

func (m *Manager) run(job *Job, ctx context.Context, handler Handler) {
	defer close(job.done)

	m.updateStatus(job, JobRunning)

	result, err := handler(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			m.finish(job, JobCanceled, result, nil)
			return
		}
		m.finish(job, JobFailed, result, err)
		return
	}

	m.finish(job, JobCompleted, result, nil)
}

func (m *Manager) updateStatus(job *Job, status JobStatus) {
	m.mu.Lock()
	job.Status = status
	job.UpdatedAt = time.Now()
	m.mu.Unlock()
}

func (m *Manager) finish(job *Job, status JobStatus, result any, err error) {
	now := time.Now()
	var errText string
	if err != nil {
		errText = err.Error()
	}

	m.mu.Lock()
	job.Status = status
	job.UpdatedAt = now
	job.CompletedAt = &now
	job.Result = result
	job.Error = errText
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("async job failed", "job_id", job.ID, "error", errText)
	}
}

func (m *Manager) cleanupExpired() {
	if m.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
		if job.Key != "" && m.keyed[job.Key] == id {
			delete(m.keyed, job.Key)
		}
	}
}
