// Package pool provides bounded worker pools for request-handling tasks.
//
// Two interchangeable implementations satisfy the Pool contract: a
// shared-queue pool with a single FIFO, and a work-stealing pool with
// per-worker queues for skewed workloads. Queues grow without bound in both,
// so Spawn never blocks the caller; shutdown drains every queued task before
// the workers exit.
package pool

import "errors"

// Pool executes independently submitted tasks on a fixed set of workers.
type Pool interface {
	// Spawn enqueues a task. It never blocks; after Shutdown it is a no-op.
	Spawn(task func())
	// Shutdown waits for all queued and in-flight tasks to finish, then
	// releases the workers. Tasks are never cancelled mid-execution.
	Shutdown()
}

// ErrNoWorkers is returned when a pool is created with a size below one.
var ErrNoWorkers = errors.New("pool size must be at least one worker")

// New builds a pool of the named kind ("shared" or "stealing").
func New(kind string, size int) (Pool, error) {
	switch kind {
	case "", "shared":
		return NewSharedQueue(size)
	case "stealing":
		return NewWorkStealing(size)
	default:
		return nil, errors.New("unknown pool kind: " + kind)
	}
}
