package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group coalesces concurrent calls for the same key K so that the supplied
// fn runs at most once at a time. Callers wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a key starts fn on its own goroutine; every
//     caller, the first included, waits for it as a follower.
//   - fn receives a context that keeps the values of the first caller's ctx
//     but is canceled only when every waiting caller has given up. One
//     viewer leaving does not abort a fetch another viewer still wants.
//   - A call that lost all its waiters is forgotten right away, so the next
//     caller for the key starts fresh work.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int
	dups    int
	cancel  context.CancelFunc
}

// Do returns the result of fn for key, sharing it with concurrent callers.
// shared reports whether the result was handed to more than one caller.
// If ctx is canceled first, Do returns ctx.Err().
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(ctx context.Context) (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	c, ok := g.m[key]
	if ok {
		c.waiters++
		c.dups++
	} else {
		// The work outlives the first caller's cancellation; waiters decide.
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{done: make(chan struct{}), waiters: 1, cancel: cancel}
		g.m[key] = c
		go g.run(workCtx, key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		g.mu.Lock()
		shared = c.dups > 0
		g.mu.Unlock()
		return c.val, c.err, shared
	case <-ctx.Done():
		g.leave(key, c)
		var zero V
		return zero, ctx.Err(), false
	}
}

// Forget drops the in-flight call for key, if any. Callers already waiting
// keep waiting for it; the next Do starts new work.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

// run executes fn and publishes its result. A panic in fn becomes an error.
func (g *Group[K, V]) run(ctx context.Context, key K, c *call[V], fn func(context.Context) (V, error)) {
	defer c.cancel()
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("singleflight: panic in call: %v", r)
			}
		}()
		c.val, c.err = fn(ctx)
	}()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	close(c.done)
}

// leave unregisters a waiter that gave up. The last one cancels the work.
func (g *Group[K, V]) leave(key K, c *call[V]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	if g.m[key] == c {
		delete(g.m, key)
	}
	c.cancel()
}
