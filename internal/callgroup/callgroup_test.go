package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplication(t *testing.T) {
	var g Group[int, string]
	var calls atomic.Int32
	started := make(chan struct{})

	fn := func() (string, error) {
		calls.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "result", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result[string], n)

	// First caller starts the work.
	wg.Go(func() {
		results[0] = <-g.DoChan(1, fn)
	})

	// Wait for fn to start, then pile on.
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			results[i] = <-g.DoChan(1, fn)
		})
	}

	wg.Wait()

	for i, res := range results {
		if res.Err != nil {
			t.Errorf("caller %d got error: %v", i, res.Err)
		}
		if res.Val != "result" {
			t.Errorf("caller %d got %q", i, res.Val)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, key := range []int{1, 2, 3} {
		wg.Go(func() {
			<-g.DoChan(key, fn)
		})
	}

	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn called %d times, want 3", got)
	}
}

func TestWaiterSharesResult(t *testing.T) {
	var g Group[int, int]
	started := make(chan struct{})

	ch1 := g.DoChan(1, func() (int, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 42, nil
	})
	<-started

	ch2 := g.DoChan(1, func() (int, error) {
		t.Error("second fn should not execute")
		return 0, errors.New("unexpected")
	})

	res1 := <-ch1
	res2 := <-ch2

	if res1.Err != nil || res1.Val != 42 {
		t.Errorf("caller 1: %+v", res1)
	}
	if res2.Err != nil || res2.Val != 42 {
		t.Errorf("caller 2: %+v", res2)
	}
	if res1.Shared {
		t.Error("leader should not be marked shared")
	}
	if !res2.Shared {
		t.Error("follower should be marked shared")
	}
}

func TestErrorPropagation(t *testing.T) {
	var g Group[int, int]
	sentinel := errors.New("failed")
	started := make(chan struct{})

	ch1 := g.DoChan(1, func() (int, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 0, sentinel
	})
	<-started

	ch2 := g.DoChan(1, func() (int, error) {
		t.Error("should not execute")
		return 0, nil
	})

	res1 := <-ch1
	res2 := <-ch2

	if !errors.Is(res1.Err, sentinel) {
		t.Errorf("caller 1: got %v, want %v", res1.Err, sentinel)
	}
	if !errors.Is(res2.Err, sentinel) {
		t.Errorf("caller 2: got %v, want %v", res2.Err, sentinel)
	}
}

func TestReuseAfterCompletion(t *testing.T) {
	var g Group[int, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	// First call completes.
	v1, err, _ := g.Do(1, fn)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Second call for same key should trigger a new execution.
	v2, err, _ := g.Do(1, fn)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if v1 != 1 || v2 != 2 {
		t.Errorf("got %d, %d; want fresh executions", v1, v2)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fn called %d times, want 2", got)
	}
}
