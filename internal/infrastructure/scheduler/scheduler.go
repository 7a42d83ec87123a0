// Package scheduler runs periodic maintenance tasks on a small worker pool:
// flushing buffered listing views to the database and sweeping stale typing
// flags.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Task is a unit of background work. Run must be safe to call again after
// a failure.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Job is one run of a task, including its retries
type Job struct {
	ID          uuid.UUID
	Task        string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job for the named task
func NewJob(task string, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Task:       task,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// Config holds worker pool settings
type Config struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     32,
		JobTimeout:    time.Minute,
		RetryAttempts: 3,
		RetryDelay:    10 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler runs submitted jobs on a fixed pool of workers. A task has at
// most one job queued or running; submitting it again meanwhile is a no-op.
type Scheduler struct {
	config Config
	tasks  map[string]Task
	logger *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	active    map[string]bool
	retries   map[uuid.UUID]*time.Timer
}

// NewScheduler creates a scheduler for the given tasks
func NewScheduler(config Config, logger *zap.Logger, tasks ...Task) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	s := &Scheduler{
		config:  config,
		tasks:   make(map[string]Task, len(tasks)),
		logger:  logger,
		jobs:    make(chan *Job, config.QueueSize),
		active:  make(map[string]bool),
		retries: make(map[uuid.UUID]*time.Timer),
	}
	for _, t := range tasks {
		s.tasks[t.Name()] = t
	}
	return s, nil
}

// Tasks returns the registered task names
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
		zap.Int("tasks", len(s.tasks)),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers. Queued jobs and
// pending retries are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.jobs) > 0 {
		<-s.jobs
	}
	clear(s.active)
	s.logger.Info("Scheduler stopped gracefully")
	return nil
}

// Submit queues a run of the named task
func (s *Scheduler) Submit(task string) error {
	if _, ok := s.tasks[task]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if s.active[task] {
		return nil
	}

	job := NewJob(task, s.config.RetryAttempts)
	select {
	case s.jobs <- job:
		s.active[task] = true
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("task", task),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// RunNow runs the named task on the calling goroutine, outside the pool.
// Shutdown uses it for a last flush after the workers have stopped.
func (s *Scheduler) RunNow(ctx context.Context, task string) error {
	t, ok := s.tasks[task]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	return t.Run(ctx)
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	task := s.tasks[job.Task]

	job.Start()
	s.logger.Debug("Processing job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("task", job.Task),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := task.Run(jobCtx); err != nil {
		job.Fail(err.Error())
		s.logger.Error("Job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("task", job.Task),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)

		if job.ShouldRetry() && ctx.Err() == nil {
			job.ScheduleRetry(s.config.RetryDelay)
			s.retryLater(job)
			return
		}
		s.release(job)
		return
	}

	job.Complete()
	s.logger.Debug("Job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("task", job.Task),
		zap.Duration("took", job.CompletedAt.Sub(*job.StartedAt)),
	)
	s.release(job)
}

// retryLater requeues job once its retry delay has passed
func (s *Scheduler) retryLater(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}

	delay := time.Until(*job.NextRetryAt)
	s.retries[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.retries, job.ID)
		if !s.isRunning {
			return
		}
		select {
		case s.jobs <- job:
			s.logger.Info("Job requeued for retry",
				zap.String("job_id", job.ID.String()),
				zap.String("task", job.Task),
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
		default:
			s.logger.Warn("Failed to re-queue job for retry", zap.String("job_id", job.ID.String()))
			delete(s.active, job.Task)
		}
	})
}

func (s *Scheduler) release(job *Job) {
	s.mu.Lock()
	delete(s.active, job.Task)
	s.mu.Unlock()
}
