// Package concurrency is the Concurrency Controller (spec.md §2 row C, §5):
// the process-wide LM-slot semaphore and the claim/evidence fan-out worker
// pools, grounded on the teacher's worker-pool shape
// (internal/orchestrator/kafka.go's retry/backoff consumer loop) adapted to
// golang.org/x/sync primitives instead of a message queue.
package concurrency

import "golang.org/x/sync/semaphore"

// NewLMSlots builds the process-wide LM concurrency limiter. spec.md §5 fixes
// this at "process-wide, configurable, default 2-4" — the Gateway acquires one
// slot per call_json invocation and releases on every exit path.
func NewLMSlots(n int) *semaphore.Weighted {
	if n < 1 {
		n = 1
	}
	return semaphore.NewWeighted(int64(n))
}
