package core

// queue is a bounded FIFO of pending transactions.
// Callers hold the critical section around every method.
type queue struct {
	items []Transaction
	head  int // next pop
	count int
}

func newQueue(size int) *queue {
	return &queue{items: make([]Transaction, size)}
}

// push appends t, reporting false when the queue is full.
func (q *queue) push(t Transaction) bool {
	if q.count == len(q.items) {
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = t
	q.count++
	return true
}

// pop removes the oldest transaction.
func (q *queue) pop() (Transaction, bool) {
	if q.count == 0 {
		return Transaction{}, false
	}
	t := q.items[q.head]
	q.items[q.head] = Transaction{} // drop references held by the slot
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return t, true
}

func (q *queue) len() int {
	return q.count
}

func (q *queue) capacity() int {
	return len(q.items)
}
