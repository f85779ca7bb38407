package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/nixpig/jobdash/internal/jobmanager/result"
)

// Task is the unit of work executed by a Job. Run should return promptly once
// ctx is cancelled and may call page.SetPage any number of times to report
// progress.
type Task interface {
	Run(ctx context.Context, page result.Publisher) error
}

// TaskFunc adapts an ordinary function to a Task.
type TaskFunc func(ctx context.Context, page result.Publisher) error

func (f TaskFunc) Run(ctx context.Context, page result.Publisher) error {
	return f(ctx, page)
}

// Job represents a single execution of a Task. It provides management of the
// Job's lifecycle and safe concurrent access to the Task's published result.
type Job struct {
	id      uint64
	name    string
	args    []string
	started time.Time

	state    AtomicJobState
	stopped  atomic.Bool
	finished atomic.Bool

	task   Task
	result *result.Cell
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// JobStatus represents a point-in-time view of a Job.
type JobStatus struct {
	ID       uint64
	Name     string
	Args     []string
	Started  time.Time
	State    JobState
	Finished bool
	Stopped  bool
}

// NewJob creates a new Job with the given id, name, bound args and task. The
// start time is recorded at creation.
func NewJob(
	id uint64,
	name string,
	args []string,
	task Task,
	logger *slog.Logger,
) (*Job, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())

	j := &Job{
		id:      id,
		name:    name,
		args:    slices.Clone(args),
		started: time.Now(),
		task:    task,
		result:  result.NewCell(),
		logger:  logger.With("job_id", id, "job", name),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	j.state.Store(JobStateCreated)

	return j, nil
}

// Start spawns the Task on a new goroutine and returns immediately. Trying to
// start a Job that is not in JobStateCreated returns an InvalidStateError.
func (j *Job) Start() error {
	if !j.state.CompareAndSwap(JobStateCreated, JobStateRunning) {
		return NewInvalidStateError(j.state.Load(), JobStateRunning)
	}

	go j.run()

	return nil
}

func (j *Job) run() {
	defer func() {
		// NOTE: Failures stop at this boundary. A Task that wants its failure
		// seen by readers has to publish it into its own result.
		if r := recover(); r != nil {
			j.logger.Error("job panicked", "panic", fmt.Sprint(r))
		}

		j.state.Store(JobStateFinished)
		j.cancel()
		close(j.done)
	}()

	j.logger.Debug("job started", "args", j.args)

	if err := j.task.Run(j.ctx, j.result); err != nil {
		if errors.Is(err, context.Canceled) && j.stopped.Load() {
			j.logger.Debug("job stopped")
			return
		}

		j.logger.Warn("job failed", "err", err)
		return
	}

	j.logger.Debug("job completed")
}

// Stop asks the Job to stop by cancelling the context passed to its Task. It
// doesn't wait for the Task to return, and a Task that ignores its context
// runs to completion regardless. Trying to stop a Job that is not in
// JobStateRunning returns an InvalidStateError.
func (j *Job) Stop() error {
	if !j.state.CompareAndSwap(JobStateRunning, JobStateStopping) {
		return NewInvalidStateError(j.state.Load(), JobStateStopping)
	}

	j.stopped.Store(true)
	j.cancel()

	return nil
}

// ID returns the ID of the Job.
func (j *Job) ID() uint64 {
	return j.id
}

// Name returns the name of the Job.
func (j *Job) Name() string {
	return j.name
}

// Args returns a copy of the arguments bound to the Job.
func (j *Job) Args() []string {
	return slices.Clone(j.args)
}

// Started returns the time the Job was created.
func (j *Job) Started() time.Time {
	return j.started
}

// State returns the state of the Job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Stopped returns whether a stop was requested for the Job.
func (j *Job) Stopped() bool {
	return j.stopped.Load()
}

// IsFinished reports whether the Task has returned. It never blocks. Once it
// returns true it always returns true.
func (j *Job) IsFinished() bool {
	if j.finished.Load() {
		return true
	}

	select {
	case <-j.done:
		j.finished.Store(true)
		return true
	default:
		return false
	}
}

// Result returns the most recently published snapshot without waiting for the
// Job to finish.
func (j *Job) Result() result.Snapshot {
	return j.result.Load()
}

// Done returns a channel that is closed when the Task has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the status of the Job.
func (j *Job) Status() *JobStatus {
	finished := j.IsFinished()
	stopped := j.stopped.Load()

	// NOTE: run stores JobStateFinished just before closing done. State is
	// worked out from done so State and Finished always agree.
	state := j.state.Load()
	switch {
	case finished:
		state = JobStateFinished
	case state == JobStateFinished && stopped:
		state = JobStateStopping
	case state == JobStateFinished:
		state = JobStateRunning
	}

	return &JobStatus{
		ID:       j.id,
		Name:     j.name,
		Args:     j.Args(),
		Started:  j.started,
		State:    state,
		Finished: finished,
		Stopped:  stopped,
	}
}
