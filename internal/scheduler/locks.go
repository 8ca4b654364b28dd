package scheduler

import "sync"

// jobLocks guards against overlapping runs of the same job inside one
// process. A job that is still running when its next slot arrives is
// skipped, never queued.
type jobLocks struct {
	mu      sync.Mutex
	running map[string]bool
}

func newJobLocks() *jobLocks {
	return &jobLocks{running: make(map[string]bool)}
}

func (l *jobLocks) tryAcquire(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[name] {
		return false
	}
	l.running[name] = true
	return true
}

func (l *jobLocks) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, name)
}
