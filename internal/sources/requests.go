package sources

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"proctor/internal/violation"
)

// Request asks the host bridge to perform an action only it can take, such as
// prompting for a browser permission or entering fullscreen.
type Request struct {
	ID     string           `json:"id"`
	Action violation.Action `json:"action"`
	Signal string           `json:"signal,omitempty"`
	At     time.Time        `json:"at"`
}

// RequestQueue holds host requests until the bridge drains them. At most one
// request per action is pending at a time.
type RequestQueue struct {
	mu      sync.Mutex
	pending []Request
	now     func() time.Time
	notify  chan struct{}
}

// NewRequestQueue returns an empty queue.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{now: time.Now, notify: make(chan struct{}, 1)}
}

// Post queues a request for action. When a request for the same action is
// already pending it is returned instead and posted is false.
func (q *RequestQueue) Post(action violation.Action, signalName string) (req Request, posted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.pending {
		if existing.Action == action {
			return existing, false
		}
	}
	req = Request{
		ID:     uuid.NewString(),
		Action: action,
		Signal: signalName,
		At:     q.now(),
	}
	q.pending = append(q.pending, req)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return req, true
}

// Pending returns a copy of the queued requests, oldest first.
func (q *RequestQueue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.pending...)
}

// Drain returns and removes every queued request.
func (q *RequestQueue) Drain() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of pending requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Notify fires after a new request is posted. It is buffered by one, so a
// reader that falls behind still observes that something is pending.
func (q *RequestQueue) Notify() <-chan struct{} {
	return q.notify
}
