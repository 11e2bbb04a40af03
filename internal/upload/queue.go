// Package upload queues dropped-file upload requests and processes them one
// per scheduler tick.
package upload

import "sync"

// Request is a batch of files dropped onto one issue.
type Request struct {
	IssueKey string
	Files    []string
}

// Queue is a FIFO of upload requests. Requests are taken oldest first.
type Queue struct {
	mu    sync.Mutex
	items []Request
}

func (q *Queue) Push(r Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// Pop removes and returns the oldest request.
func (q *Queue) Pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	return r, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
