package pool

import (
	"sync"
)

// SharedQueue is the simple pool: every worker pulls from one FIFO. The
// queue is unbounded, so Spawn never blocks.
type SharedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewSharedQueue starts size workers over a shared FIFO.
func NewSharedQueue(size int) (*SharedQueue, error) {
	if size < 1 {
		return nil, ErrNoWorkers
	}

	p := &SharedQueue{}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

// Spawn enqueues a task. After Shutdown it is a no-op.
func (p *SharedQueue) Spawn(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Shutdown drains the queue: every task spawned before the call runs to
// completion before the workers exit.
func (p *SharedQueue) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *SharedQueue) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runTask(task)
	}
}

// runTask executes one task, keeping a panicking task from killing its
// worker.
func runTask(task func()) {
	defer func() {
		_ = recover()
	}()
	task()
}
