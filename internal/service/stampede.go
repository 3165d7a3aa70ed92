package service

import "sync"

// stampedeTracker counts concurrent cache misses per key.
// RecordMiss increments and returns the count for the key; Resolve decrements.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss returns the number of misses in progress for key, this one included.
// Callers defer Resolve(key).
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

func (st *stampedeTracker) Resolve(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.activeMisses[key] <= 1 {
		delete(st.activeMisses, key)
		return
	}
	st.activeMisses[key]--
}
