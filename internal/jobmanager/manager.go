package jobmanager

import (
	"context"
	"log/slog"
	"sync"
)

// Manager is responsible for starting and tracking Jobs.
type Manager struct {
	// NOTE: Jobs are never removed. Job history only lives for the life of the
	// process and the assumption is that it will fit in memory.
	jobs map[uint64]*Job

	// order holds the same Jobs as jobs, sorted by id. Ids are handed out
	// sequentially, so appending keeps it sorted.
	order  []*Job
	nextID uint64

	// closed is set by Shutdown. No Jobs are started after it.
	closed bool

	logger *slog.Logger

	mu sync.Mutex
}

// NewManager creates a new Manager ready to run Jobs.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Manager{
		jobs:   make(map[uint64]*Job),
		logger: logger,
	}
}

// StartJob creates a Job for task, registers it under the next id and starts
// it. It returns the id without waiting for the task.
func (m *Manager) StartJob(
	name string,
	args []string,
	task Task,
) (uint64, error) {
	if task == nil {
		return 0, ErrNilTask
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return 0, ErrShutdown
	}

	m.nextID++
	id := m.nextID

	job, err := NewJob(id, name, args, task, m.logger)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	m.jobs[id] = job
	m.order = append(m.order, job)

	m.mu.Unlock()

	if err := job.Start(); err != nil {
		return 0, err
	}

	return id, nil
}

// GetJob returns the Job with the given id or ErrJobNotFound if it doesn't
// exist. The Job stays valid for the life of the Manager.
func (m *Manager) GetJob(id uint64) (*Job, error) {
	m.mu.Lock()
	job, exists := m.jobs[id]
	m.mu.Unlock()

	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// ForEachJob calls fn for every Job in id order while holding the Manager's
// lock. fn must not call back into the Manager or it will deadlock. Use Jobs
// when that's needed.
func (m *Manager) ForEachJob(fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.order {
		fn(job)
	}
}

// Jobs returns the status of every Job in id order.
func (m *Manager) Jobs() []*JobStatus {
	statuses := make([]*JobStatus, 0, m.Len())

	m.ForEachJob(func(j *Job) {
		statuses = append(statuses, j.Status())
	})

	return statuses
}

// Len returns the number of Jobs the Manager has started.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.order)
}

// Running returns the number of unfinished Jobs with the given name.
func (m *Manager) Running(name string) int {
	var n int

	m.ForEachJob(func(j *Job) {
		if j.name == name && !j.IsFinished() {
			n++
		}
	})

	return n
}

// StopJob asks the Job with the given id to stop or returns ErrJobNotFound if
// it doesn't exist.
func (m *Manager) StopJob(id uint64) error {
	job, err := m.GetJob(id)
	if err != nil {
		return err
	}

	return job.Stop()
}

// QueryJob returns the status of the Job with the given id or ErrJobNotFound
// if it doesn't exist.
func (m *Manager) QueryJob(id uint64) (*JobStatus, error) {
	job, err := m.GetJob(id)
	if err != nil {
		return nil, err
	}

	return job.Status(), nil
}

// Shutdown makes a 'best effort' attempt to stop any running Jobs and waits
// for them to return or for ctx to be done, whichever happens first. StartJob
// fails with ErrShutdown from then on.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	jobs := make([]*Job, len(m.order))
	copy(jobs, m.order)
	m.mu.Unlock()

	for _, job := range jobs {
		if job.State() == JobStateRunning {
			if err := job.Stop(); err != nil {
				// NOTE: The job may have finished between the state check and
				// Stop. Nothing left to do for it either way.
				m.logger.Debug("stop on shutdown", "job_id", job.ID(), "err", err)
			}
		}
	}

	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-ctx.Done():
			m.logger.Warn(
				"shutdown before all jobs returned",
				"job_id", job.ID(),
				"err", ctx.Err(),
			)
			return ctx.Err()
		}
	}

	return nil
}
