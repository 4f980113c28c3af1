// Package callgroup provides call deduplication by key.
//
// If multiple goroutines request the same key concurrently, only one
// executes the function. The others wait and receive the same result.
// Once the function returns, the key is forgotten and future calls
// trigger a new execution.
package callgroup

import "sync"

// Group deduplicates concurrent function calls by key, sharing the
// leader's result with every waiter.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Do executes fn if no call is in flight for key, otherwise blocks until
// the in-flight call finishes and returns its result. shared reports
// whether the result came from another caller's execution.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (val V, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err, true
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.val, c.err, false
}

// DoChan is the non-blocking form of Do. The returned channel receives
// exactly one result and is never closed.
func (g *Group[K, V]) DoChan(key K, fn func() (V, error)) <-chan Result[V] {
	ch := make(chan Result[V], 1)
	go func() {
		val, err, shared := g.Do(key, fn)
		ch <- Result[V]{Val: val, Err: err, Shared: shared}
	}()
	return ch
}

// Result carries one completed call.
type Result[V any] struct {
	Val    V
	Err    error
	Shared bool
}
