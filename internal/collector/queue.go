package collector

import (
	"sync"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

// Queue is a bounded FIFO of readings. A push onto a full queue evicts the
// oldest entry; producers never block.
type Queue struct {
	mu     sync.Mutex
	items  []model.SensorReading
	head   int
	size   int
	notify chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:  make([]model.SensorReading, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends r and reports whether the oldest reading was evicted.
func (q *Queue) Push(r model.SensorReading) bool {
	q.mu.Lock()
	evicted := false
	if q.size == len(q.items) {
		q.items[q.head] = model.SensorReading{}
		q.head = (q.head + 1) % len(q.items)
		q.size--
		evicted = true
	}
	q.items[(q.head+q.size)%len(q.items)] = r
	q.size++
	q.mu.Unlock()

	q.signal()
	return evicted
}

func (q *Queue) TryPop() (model.SensorReading, bool) {
	q.mu.Lock()
	if q.size == 0 {
		q.mu.Unlock()
		return model.SensorReading{}, false
	}
	r := q.items[q.head]
	q.items[q.head] = model.SensorReading{}
	q.head = (q.head + 1) % len(q.items)
	q.size--
	more := q.size > 0
	q.mu.Unlock()

	// wake the next waiting consumer
	if more {
		q.signal()
	}
	return r, true
}

// PopWait waits up to timeout for a reading.
func (q *Queue) PopWait(timeout time.Duration) (model.SensorReading, bool) {
	if r, ok := q.TryPop(); ok || timeout <= 0 {
		return r, ok
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-q.notify:
			if r, ok := q.TryPop(); ok {
				return r, true
			}
		case <-deadline.C:
			return q.TryPop()
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue) Cap() int {
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
