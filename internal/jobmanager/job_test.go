package jobmanager_test

import (
	"context"
	"errors"
	"html/template"
	"testing"
	"time"

	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
)

func newTestJob(t *testing.T, task jobmanager.Task) *jobmanager.Job {
	t.Helper()

	job, err := jobmanager.NewJob(7, "test", []string{"a", "b"}, task, nil)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if job.ID() != 7 {
		t.Errorf("expected job id: got '%d', want '%d'", job.ID(), 7)
	}

	return job
}

func runTestJob(t *testing.T, task jobmanager.Task) *jobmanager.Job {
	t.Helper()

	job := newTestJob(t, task)

	if err := job.Start(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return job
}

func waitDone(t *testing.T, job *jobmanager.Job) {
	t.Helper()

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for job %d", job.ID())
	}
}

// blockingTask publishes once and then waits for either release or its
// context to be cancelled.
func blockingTask(
	release <-chan struct{},
) jobmanager.TaskFunc {
	return func(ctx context.Context, page result.Publisher) error {
		page.SetPage("working")

		select {
		case <-release:
			page.SetPage("done")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestJob(t *testing.T) {
	t.Parallel()

	t.Run("Test initial state", func(t *testing.T) {
		t.Parallel()

		job := newTestJob(t, blockingTask(nil))

		if job.State() != jobmanager.JobStateCreated {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				job.State(),
				jobmanager.JobStateCreated,
			)
		}

		if job.IsFinished() {
			t.Error("expected job not to be finished")
		}

		if got := job.Result().Content; got != result.Placeholder {
			t.Errorf("expected placeholder: got '%s'", got)
		}

		if job.Started().IsZero() {
			t.Error("expected start time to be set")
		}
	})

	t.Run("Test nil task", func(t *testing.T) {
		t.Parallel()

		if _, err := jobmanager.NewJob(1, "nil", nil, nil, nil); !errors.Is(
			err,
			jobmanager.ErrNilTask,
		) {
			t.Errorf("expected ErrNilTask: got '%v'", err)
		}
	})

	t.Run("Test run to completion", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		job := runTestJob(t, blockingTask(release))

		if job.IsFinished() {
			t.Error("expected job not to be finished")
		}

		close(release)
		waitDone(t, job)

		if !job.IsFinished() {
			t.Error("expected job to be finished")
		}

		if got := job.Result().Content; got != "done" {
			t.Errorf("expected result: got '%s', want '%s'", got, "done")
		}

		status := job.Status()
		if status.State != jobmanager.JobStateFinished {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				status.State,
				jobmanager.JobStateFinished,
			)
		}

		if status.Stopped {
			t.Error("expected job not to be stopped")
		}

		if len(status.Args) != 2 || status.Args[0] != "a" || status.Args[1] != "b" {
			t.Errorf("expected args: got '%v', want '%v'", status.Args, []string{"a", "b"})
		}
	})

	t.Run("Test cooperative stop", func(t *testing.T) {
		t.Parallel()

		job := runTestJob(t, blockingTask(make(chan struct{})))

		if err := job.Stop(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		waitDone(t, job)

		status := job.Status()
		if !status.Finished || !status.Stopped {
			t.Errorf(
				"expected finished and stopped: got '%t' and '%t'",
				status.Finished,
				status.Stopped,
			)
		}

		if got := job.Result().Content; got != "working" {
			t.Errorf("expected last snapshot: got '%s', want '%s'", got, "working")
		}
	})

	t.Run("Test stop ignored by task", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		job := runTestJob(t, jobmanager.TaskFunc(
			func(ctx context.Context, page result.Publisher) error {
				<-release
				page.SetPage("ignored stop")
				return nil
			},
		))

		if err := job.Stop(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if job.IsFinished() {
			t.Error("expected job to keep running after stop")
		}

		if job.State() != jobmanager.JobStateStopping {
			t.Errorf(
				"expected state: got '%s', want '%s'",
				job.State(),
				jobmanager.JobStateStopping,
			)
		}

		close(release)
		waitDone(t, job)

		if got := job.Result().Content; got != "ignored stop" {
			t.Errorf("expected result: got '%s', want '%s'", got, "ignored stop")
		}
	})

	t.Run("Test failing task is swallowed", func(t *testing.T) {
		t.Parallel()

		job := runTestJob(t, jobmanager.TaskFunc(
			func(ctx context.Context, page result.Publisher) error {
				return errors.New("boom")
			},
		))

		waitDone(t, job)

		if !job.IsFinished() {
			t.Error("expected job to be finished")
		}

		if got := job.Result().Content; got != result.Placeholder {
			t.Errorf("expected placeholder: got '%s'", got)
		}
	})

	t.Run("Test panicking task is swallowed", func(t *testing.T) {
		t.Parallel()

		job := runTestJob(t, jobmanager.TaskFunc(
			func(ctx context.Context, page result.Publisher) error {
				page.SetPage(template.HTML("before panic"))
				panic("boom")
			},
		))

		waitDone(t, job)

		if !job.IsFinished() {
			t.Error("expected job to be finished")
		}

		if got := job.Result().Content; got != "before panic" {
			t.Errorf("expected stale result: got '%s', want '%s'", got, "before panic")
		}
	})

	t.Run("Test finished is monotonic", func(t *testing.T) {
		t.Parallel()

		job := runTestJob(t, jobmanager.TaskFunc(
			func(ctx context.Context, page result.Publisher) error {
				return nil
			},
		))

		waitDone(t, job)

		for range 100 {
			if !job.IsFinished() {
				t.Fatal("expected job to stay finished")
			}
		}
	})

	t.Run("Test status state agrees with finished", func(t *testing.T) {
		t.Parallel()

		for range 200 {
			job := runTestJob(t, jobmanager.TaskFunc(
				func(ctx context.Context, page result.Publisher) error {
					return nil
				},
			))

			for {
				status := job.Status()

				if (status.State == jobmanager.JobStateFinished) != status.Finished {
					t.Fatalf(
						"expected state to agree with finished: got '%s', finished '%t'",
						status.State,
						status.Finished,
					)
				}

				if status.Finished {
					break
				}
			}
		}
	})

	t.Run("Test duplicate operations", func(t *testing.T) {
		t.Parallel()

		job := newTestJob(t, blockingTask(make(chan struct{})))

		if err := job.Stop(); !errors.As(
			err,
			&jobmanager.InvalidStateError{},
		) {
			t.Errorf("expected to receive InvalidStateError: got '%v'", err)
		}

		if err := job.Start(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if err := job.Start(); !errors.As(
			err,
			&jobmanager.InvalidStateError{},
		) {
			t.Errorf("expected to receive InvalidStateError: got '%v'", err)
		}

		if err := job.Stop(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		var stateErr jobmanager.InvalidStateError
		if err := job.Stop(); !errors.As(err, &stateErr) {
			t.Errorf("expected to receive InvalidStateError: got '%v'", err)
		}

		if stateErr.To != jobmanager.JobStateStopping {
			t.Errorf(
				"expected target state: got '%s', want '%s'",
				stateErr.To,
				jobmanager.JobStateStopping,
			)
		}

		waitDone(t, job)

		err := job.Stop()
		if err == nil || err.Error() != "cannot go from Finished to Stopping" {
			t.Errorf("expected invalid state message: got '%v'", err)
		}
	})
}

func TestJobState(t *testing.T) {
	t.Parallel()

	scenarios := map[jobmanager.JobState]string{
		jobmanager.JobStateUnknown:  "Unknown",
		jobmanager.JobStateCreated:  "Created",
		jobmanager.JobStateRunning:  "Running",
		jobmanager.JobStateStopping: "Stopping",
		jobmanager.JobStateFinished: "Finished",
		jobmanager.JobState(99):     "Unknown",
		jobmanager.JobState(-1):     "Unknown",
	}

	for state, want := range scenarios {
		if got := state.String(); got != want {
			t.Errorf("expected state string: got '%s', want '%s'", got, want)
		}
	}
}
