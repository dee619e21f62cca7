package gpu

import "sync"

// Queue is one ordered compute queue. Operations enqueued on it execute in
// issue order, asynchronously relative to the issuing thread. A failed
// operation faults the queue: later operations are skipped and every
// Synchronize from then on reports the first failure. There is no
// cancellation; operations run to completion or fail outright.
type Queue struct {
	label string
	ops   chan func()

	mu  sync.Mutex
	err error
}

func NewQueue(label string) *Queue {
	q := &Queue{
		label: label,
		ops:   make(chan func(), 64),
	}
	go q.run()
	return q
}

func (q *Queue) Label() string { return q.label }

func (q *Queue) run() {
	for op := range q.ops {
		op()
	}
}

// Enqueue submits op. It only blocks when the submission channel is full.
func (q *Queue) Enqueue(op func() error) {
	q.ops <- func() {
		q.mu.Lock()
		faulted := q.err != nil
		q.mu.Unlock()
		if faulted {
			return
		}
		if err := op(); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
	}
}

// Synchronize blocks until every previously enqueued operation has run and
// returns the queue's first failure, if any.
func (q *Queue) Synchronize() error {
	done := make(chan struct{})
	q.ops <- func() { close(done) }
	<-done
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Release stops the queue worker. The queue must not be used afterwards.
func (q *Queue) Release() {
	close(q.ops)
}
