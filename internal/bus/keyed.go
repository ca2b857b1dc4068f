package bus

import "sync"

// KeyedQueue runs jobs one at a time per key, in push order. Each busy key
// has one worker goroutine, which exits once the key's backlog is empty.
type KeyedQueue struct {
	mu      sync.Mutex
	pending map[string][]func() // present while a worker runs for the key
	wg      sync.WaitGroup
}

func NewKeyedQueue() *KeyedQueue {
	return &KeyedQueue{pending: make(map[string][]func())}
}

// Push queues job behind earlier jobs of the same key. It never blocks.
func (q *KeyedQueue) Push(key string, job func()) {
	q.mu.Lock()
	if jobs, busy := q.pending[key]; busy {
		q.pending[key] = append(jobs, job)
		q.mu.Unlock()
		return
	}
	q.pending[key] = nil
	q.wg.Add(1)
	q.mu.Unlock()

	go q.work(key, job)
}

func (q *KeyedQueue) work(key string, job func()) {
	defer q.wg.Done()
	for {
		job()

		q.mu.Lock()
		jobs := q.pending[key]
		if len(jobs) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		job = jobs[0]
		jobs[0] = nil
		q.pending[key] = jobs[1:]
		q.mu.Unlock()
	}
}

// Wait blocks until every pushed job has run.
func (q *KeyedQueue) Wait() { q.wg.Wait() }

// Len reports the number of keys with a running worker.
func (q *KeyedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
