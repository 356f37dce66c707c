package websql

import "sync"

// taskQueue runs deferred root-transaction tasks one at a time, in the order
// they were scheduled. A task signals that it has finished by calling
// runNext; until then no other task starts.
type taskQueue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool

	// onDepth, if set, observes the number of waiting tasks.
	onDepth func(int)
}

// schedule appends task to the tail and starts draining if idle.
func (q *taskQueue) schedule(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	depth := len(q.tasks)
	start := !q.running
	q.running = true
	q.mu.Unlock()

	q.reportDepth(depth)
	if start {
		q.runNext()
	}
}

// runNext pops the head task and starts it on its own goroutine, or clears
// the running flag when nothing is waiting.
func (q *taskQueue) runNext() {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.running = false
		q.mu.Unlock()
		q.reportDepth(0)
		return
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	depth := len(q.tasks)
	q.mu.Unlock()

	q.reportDepth(depth)
	go task()
}

// busy reports whether a task currently holds the queue.
func (q *taskQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// pending returns the number of tasks waiting behind the running one.
func (q *taskQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) reportDepth(n int) {
	if q.onDepth != nil {
		q.onDepth(n)
	}
}
