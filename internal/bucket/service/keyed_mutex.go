package service

import "sync"

// keyedMutex serializes in-process callers per bucket+period key. Mutexes
// are retained for the life of the process; cardinality is bounded by
// buckets times open periods.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) Lock(key string) func() {
	value, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
