package fetch

import "sync"

// Task is a long-running transfer owned by one view-side object.
type Task struct {
	OwnerID     string
	ResourceRef string

	mu       sync.Mutex
	progress float64
}

func NewTask(ownerID, resourceRef string) *Task {
	return &Task{OwnerID: ownerID, ResourceRef: resourceRef}
}

// Report records done/total bytes. Progress never goes backwards and stays
// within [0,1]; changed is false when the report did not move it.
func (t *Task) Report(done, total int64) (progress float64, changed bool) {
	var p float64
	switch {
	case total <= 0:
		p = 0
	case done >= total:
		p = 1
	case done > 0:
		p = float64(done) / float64(total)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p <= t.progress {
		return t.progress, false
	}
	t.progress = p
	return p, true
}

func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}
