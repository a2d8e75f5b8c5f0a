package engine

import "sync"

type queuedMessage struct {
	ConversationID string
	Text           string
	Meta           map[string]string
}

// conversationQueue serializes message handling within a single
// conversation. A drainer takes the lock with TryLock and processes
// pending messages in arrival order; concurrent submitters just
// enqueue and leave.
type conversationQueue struct {
	conversationID string
	pending        []queuedMessage
	mu             sync.Mutex
	locked         bool
}

func newConversationQueue(conversationID string) *conversationQueue {
	return &conversationQueue{conversationID: conversationID}
}

func (q *conversationQueue) Enqueue(msg queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
}

func (q *conversationQueue) Dequeue() (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return queuedMessage{}, false
	}

	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, true
}

func (q *conversationQueue) TryLock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.locked {
		return false
	}
	q.locked = true
	return true
}

func (q *conversationQueue) Unlock() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.locked = false
}

func (q *conversationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
