package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewLMSlotsClampsToOne(t *testing.T) {
	s := NewLMSlots(0)
	if !s.TryAcquire(1) {
		t.Fatal("expected at least one slot")
	}
	if s.TryAcquire(1) {
		t.Fatal("expected clamped weight of 1, got capacity for a second holder")
	}
}

func TestNewLMSlotsLimitsConcurrency(t *testing.T) {
	s := NewLMSlots(2)
	ctx := context.Background()
	if err := s.Acquire(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if s.TryAcquire(1) {
		t.Fatal("expected no slots left after acquiring full weight")
	}
	s.Release(2)
}

func TestRunBoundedRunsAllAndRespectsLimit(t *testing.T) {
	var current, max int32
	var mu sync.Mutex
	bump := func(delta int32) {
		mu.Lock()
		defer mu.Unlock()
		current += delta
		if current > max {
			max = current
		}
	}
	var completed int32
	err := RunBounded(context.Background(), 2, 10, func(ctx context.Context, i int) error {
		bump(1)
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&completed, 1)
		bump(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 10 {
		t.Fatalf("expected 10 completions, got %d", completed)
	}
	if max > 2 {
		t.Fatalf("expected at most 2 concurrent, observed %d", max)
	}
}

func TestRunBoundedPropagatesFirstError(t *testing.T) {
	sentinel := errors.New("boom")
	err := RunBounded(context.Background(), 3, 5, func(ctx context.Context, i int) error {
		if i == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestSessionLocksSerializesPerSession(t *testing.T) {
	locks := NewSessionLocks()
	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks.With("s1", func() {
				mu.Lock()
				order = append(order, "enter")
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				order = append(order, "exit")
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()
	if len(order) != 40 {
		t.Fatalf("expected 40 events, got %d", len(order))
	}
	for i := 0; i < len(order); i += 2 {
		if order[i] != "enter" || order[i+1] != "exit" {
			t.Fatalf("critical section interleaved at index %d: %v", i, order)
		}
	}
}

func TestSessionLocksDoNotBlockAcrossSessions(t *testing.T) {
	locks := NewSessionLocks()
	release := make(chan struct{})
	started := make(chan struct{})
	go locks.With("a", func() {
		close(started)
		<-release
	})
	<-started

	done := make(chan struct{})
	go func() {
		locks.With("b", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session b blocked behind session a's lock")
	}
	close(release)
}

func TestBudgetsCheckToolUnderCeiling(t *testing.T) {
	b := Budgets{ToolMaxCalls: 3, LLMMaxCalls: 3}
	meta := map[string]any{"tool_call_count": 2}
	if err := b.CheckTool(meta); err != nil {
		t.Fatalf("expected no error under ceiling, got %v", err)
	}
}

func TestBudgetsCheckToolAtCeiling(t *testing.T) {
	b := Budgets{ToolMaxCalls: 3, LLMMaxCalls: 3}
	meta := map[string]any{"tool_call_count": 3}
	if err := b.CheckTool(meta); err == nil {
		t.Fatal("expected budget exhausted error at ceiling")
	}
}

func TestBudgetsCheckLLMMissingMetaDefaultsToZero(t *testing.T) {
	b := Budgets{ToolMaxCalls: 1, LLMMaxCalls: 1}
	meta := map[string]any{}
	if err := b.CheckLLM(meta); err != nil {
		t.Fatalf("expected no error for unset counter, got %v", err)
	}
}

func TestIncrementCountsCreateAndBump(t *testing.T) {
	meta := map[string]any{}
	IncrementToolCount(meta)
	IncrementToolCount(meta)
	IncrementLLMCount(meta)
	if meta["tool_call_count"] != 2 {
		t.Fatalf("expected tool_call_count 2, got %v", meta["tool_call_count"])
	}
	if meta["llm_call_count"] != 1 {
		t.Fatalf("expected llm_call_count 1, got %v", meta["llm_call_count"])
	}
}

func TestIncrementCountsHandlesFloatFromJSONRoundtrip(t *testing.T) {
	meta := map[string]any{"tool_call_count": float64(5)}
	IncrementToolCount(meta)
	if meta["tool_call_count"] != 6 {
		t.Fatalf("expected 6 after bumping a float64-backed counter, got %v", meta["tool_call_count"])
	}
}
