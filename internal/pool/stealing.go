package pool

import (
	"sync"
	"sync/atomic"
)

// WorkStealing gives each worker its own queue and lets idle workers steal
// from busy ones, which keeps skewed workloads from serializing behind a
// single hot queue. Submission is round-robin across the queues; queues are
// unbounded, so Spawn never blocks.
type WorkStealing struct {
	queues []deque
	next   atomic.Uint64

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	wg     sync.WaitGroup
}

// NewWorkStealing starts size workers with one deque each.
func NewWorkStealing(size int) (*WorkStealing, error) {
	if size < 1 {
		return nil, ErrNoWorkers
	}

	p := &WorkStealing{queues: make([]deque, size)}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p, nil
}

// Spawn enqueues a task on the next queue round-robin. After Shutdown it is
// a no-op.
func (p *WorkStealing) Spawn(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	i := int(p.next.Add(1)) % len(p.queues)
	p.queues[i].pushBack(task)
	p.cond.Signal()
	p.mu.Unlock()
}

// Shutdown drains every queue, stolen or not, before the workers exit.
func (p *WorkStealing) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *WorkStealing) worker(id int) {
	defer p.wg.Done()

	for {
		if task, ok := p.find(id); ok {
			runTask(task)
			continue
		}

		p.mu.Lock()
		for !p.hasWork() && !p.closed {
			p.cond.Wait()
		}
		if p.closed && !p.hasWork() {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// find pops the newest task from the worker's own queue, falling back to
// stealing the oldest task from another worker.
func (p *WorkStealing) find(id int) (func(), bool) {
	if task, ok := p.queues[id].popBack(); ok {
		return task, true
	}
	for i := range p.queues {
		if i == id {
			continue
		}
		if task, ok := p.queues[i].popFront(); ok {
			return task, true
		}
	}
	return nil, false
}

func (p *WorkStealing) hasWork() bool {
	for i := range p.queues {
		if p.queues[i].len() > 0 {
			return true
		}
	}
	return false
}

// deque is a mutex-guarded double-ended task queue. Owners pop from the
// back, thieves from the front.
type deque struct {
	mu    sync.Mutex
	tasks []func()
}

func (d *deque) pushBack(task func()) {
	d.mu.Lock()
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()
}

func (d *deque) popBack() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return nil, false
	}
	task := d.tasks[len(d.tasks)-1]
	d.tasks = d.tasks[:len(d.tasks)-1]
	return task, true
}

func (d *deque) popFront() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return nil, false
	}
	task := d.tasks[0]
	d.tasks = d.tasks[1:]
	return task, true
}

func (d *deque) len() int {
	d.mu.Lock()
	n := len(d.tasks)
	d.mu.Unlock()
	return n
}
