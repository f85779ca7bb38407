package jobmanager

import "sync/atomic"

type JobState int

const (
	// JobStateUnknown indicates the state of the job is unknown. It's used as
	// the zero value for functions that return a (possibly absent) JobState.
	JobStateUnknown JobState = iota

	// JobStateCreated indicates the job has been assigned an id and is waiting
	// for its goroutine to be spawned.
	JobStateCreated

	// JobStateRunning indicates the task of the job is executing. The job can
	// be stopped.
	JobStateRunning

	// JobStateStopping indicates a stop has been requested but the task hasn't
	// yet observed it and returned.
	JobStateStopping

	// JobStateFinished indicates the task has returned, whether it ran to
	// completion, gave up after a stop request, or failed.
	JobStateFinished
)

// NOTE: This slice needs to be kept in sync with any changes to the JobState
// values.
var jobStates = []string{
	"Unknown",
	"Created",
	"Running",
	"Stopping",
	"Finished",
}

// String implements the Stringer interface for JobState.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// AtomicJobState is a wrapper around an atomic.Int32 to provide atomic
// operations on a JobState. Transitions are validated with CompareAndSwap so
// a Job needs no mutex of its own.
type AtomicJobState struct {
	v atomic.Int32
}

// Load atomically loads the JobState value.
func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

// Store atomically stores the JobState value.
func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an old and
// new JobState.
func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
