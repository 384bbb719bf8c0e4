package ebus

import "sync"

// OutboundRequest is one pending outbound master telegram awaiting
// transmission and its eventual outcome. The enqueuer owns a Request until
// the handler signals completion, at which point Slave/Err become valid
// and ownership of the result passes back to the enqueuer.
type OutboundRequest struct {
	Master *Telegram // the master telegram to send; source, ZZ, PB/SB/NN/data

	mu    sync.Mutex
	cond  *sync.Cond
	done  bool
	slave *Sequence
	err   error
}

// newOutboundRequest wraps master as a fresh, incomplete request.
func newOutboundRequest(master *Telegram) *OutboundRequest {
	r := &OutboundRequest{Master: master}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Complete signals terminal success, recording the slave response (nil for
// MM/BC telegrams that carry no slave data).
func (r *OutboundRequest) Complete(slave *Sequence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slave = slave
	r.done = true
	r.cond.Broadcast()
}

// Fail signals terminal failure with the given error.
func (r *OutboundRequest) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.done = true
	r.cond.Broadcast()
}

// Done reports whether the request has reached a terminal outcome without
// blocking; used by single-threaded, polled callers.
func (r *OutboundRequest) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Wait blocks until the request reaches a terminal outcome and returns it.
func (r *OutboundRequest) Wait() (*Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.done {
		r.cond.Wait()
	}
	return r.slave, r.err
}

// Queue is a thread-safe FIFO of pending OutboundRequests.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*OutboundRequest
	closed bool
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a request whose master telegram is built from source
// and payload via CreateMasterFromRequest, and returns it for the caller
// to Wait on. It returns an error without enqueuing anything if that
// telegram does not classify or the queue is closed.
func (q *Queue) Enqueue(source byte, payload []byte) (*OutboundRequest, error) {
	tel, err := CreateMasterFromRequest(source, payload)
	if err != nil {
		return nil, err
	}
	req := newOutboundRequest(tel)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, &Error{Kind: KindOffline}
	}
	q.items = append(q.items, req)
	q.mu.Unlock()
	q.cond.Signal()
	return req, nil
}

// Len returns the number of requests currently queued (not counting one
// already dequeued and in flight).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TryDequeue pops the oldest request without blocking, returning ok=false
// if the queue is empty.
func (q *Queue) TryDequeue() (req *OutboundRequest, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	req = q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Dequeue pops the oldest request, blocking until one is available or the
// queue is closed, in which case ok is false.
func (q *Queue) Dequeue() (req *OutboundRequest, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	req = q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Requeue pushes req back onto the front of the queue: used when an
// arbitration attempt loses outright and the request must wait for the
// next free window rather than going to the back of the line.
func (q *Queue) Requeue(req *OutboundRequest) {
	q.mu.Lock()
	q.items = append([]*OutboundRequest{req}, q.items...)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close marks the queue closed, waking any blocked Dequeue with ok=false,
// and fails every currently queued request with err.
func (q *Queue) Close(err error) {
	q.mu.Lock()
	q.closed = true
	items := q.items
	q.items = nil
	q.mu.Unlock()
	q.cond.Broadcast()
	for _, r := range items {
		r.Fail(err)
	}
}

// Reopen clears the closed flag so the queue can accept new requests after
// a successful device reopen.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}
