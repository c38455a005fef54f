package event

// Queue is an unbounded in-process FIFO. It is owned by one thread of
// control and is not safe for concurrent use.
type Queue struct {
	items []Event
	head  int
}

// NewQueue allocates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]Event, 0, 16)}
}

// Put appends e to the tail.
func (q *Queue) Put(e Event) {
	q.items = append(q.items, e)
}

// Next pops the head without blocking. ok is false when the queue is empty.
func (q *Queue) Next() (e Event, ok bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	e = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reuse the backing array once drained.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}
