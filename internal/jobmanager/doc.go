// Package jobmanager provides functionality for running and tracking
// in-process background Jobs.
//
// A Job wraps a Task executing on its own goroutine. While it runs, the Task
// can publish snapshots of its progress which are readable at any time
// without blocking. A Job can be asked to stop, but stopping is cooperative:
// the Task is expected to watch its context and return.
//
// A Manager starts Jobs and keeps track of them, identified by sequential
// numeric ids that are never reused within the life of the process.
package jobmanager
