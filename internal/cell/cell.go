// Package cell implements the single-assignment completion slot that
// backs every future. A cell transitions from pending to resolved
// exactly once, and every hook registered on it runs exactly once with
// the final outcome, no matter how registration races with completion.
//
// All shared state is one result pointer and two intrusive stack heads
// (parked waiters and pending hooks), manipulated exclusively with
// compare-and-swap. The cell holds no locks and spawns no goroutines.
package cell

import (
	"time"

	"go.uber.org/atomic"
)

// Outcome is the final state of a resolved cell: a value or an error.
// Err is nil exactly when the cell completed successfully.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Cell is an atomic single-assignment completion slot.
// The zero value is not usable; create cells with New.
type Cell[T any] struct {
	result  atomic.Pointer[Outcome[T]] // nil while pending
	waiters atomic.Pointer[waiter]     // Treiber stack of parked callers
	hooks   atomic.Pointer[hook[T]]    // Treiber stack of pending hooks
}

// hook is one pending dependent registration. The claim flag guarantees
// a single runner when registration races with the resolving sweep:
// whoever wins CompareAndSwap(0, 1) runs the hook, the other side
// leaves it alone.
type hook[T any] struct {
	fn    func(Outcome[T])
	next  *hook[T]
	claim atomic.Int32
}

// waiter is one parked blocking caller. The sweep closes ready after
// winning the woken flag; a timed-out caller marks itself gone and
// unlinks without ever touching the channel, so the two sides can race
// over the same node safely. next is atomic because removal rewrites
// interior links while a concurrent sweep traverses them.
type waiter struct {
	ready chan struct{}
	woken atomic.Bool
	gone  atomic.Bool
	next  atomic.Pointer[waiter]
}

// New creates a pending cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{}
}

// TryComplete transitions the cell to a successful outcome if it is
// still pending. It reports whether this call performed the transition;
// a false return means another completer won the race. The sweep runs
// either way, helping release waiters and hooks of the winner.
func (c *Cell[T]) TryComplete(value T) bool {
	won := c.result.CompareAndSwap(nil, &Outcome[T]{Value: value})
	c.sweep()
	return won
}

// TryCompleteErr transitions the cell to a failed outcome if it is
// still pending. err must be non-nil.
func (c *Cell[T]) TryCompleteErr(err error) bool {
	if err == nil {
		panic("cell: completed exceptionally with a nil error")
	}
	won := c.result.CompareAndSwap(nil, &Outcome[T]{Err: err})
	c.sweep()
	return won
}

// Resolved reports whether the cell has left the pending state. A false
// result may be stale by the time the caller observes it.
func (c *Cell[T]) Resolved() bool {
	return c.result.Load() != nil
}

// Peek returns the outcome if the cell has resolved. It never blocks.
func (c *Cell[T]) Peek() (Outcome[T], bool) {
	if r := c.result.Load(); r != nil {
		return *r, true
	}
	return Outcome[T]{}, false
}

// Dependents returns the number of hooks still waiting for resolution.
// Intended for monitoring, not synchronization.
func (c *Cell[T]) Dependents() int {
	n := 0
	for h := c.hooks.Load(); h != nil; h = h.next {
		n++
	}
	return n
}

// OnResolved registers fn to run exactly once with the final outcome.
// If the cell is already resolved, fn runs inline on the calling
// goroutine before OnResolved returns. Otherwise the hook is pushed
// onto the completion stack and runs during the sweep. There is no
// ordering guarantee between hooks.
func (c *Cell[T]) OnResolved(fn func(Outcome[T])) {
	if fn == nil {
		panic("cell: nil hook")
	}
	var h *hook[T]
	r := c.result.Load()
	if r == nil {
		h = &hook[T]{fn: fn}
		for {
			if r = c.result.Load(); r != nil {
				break
			}
			h.next = c.hooks.Load()
			if c.hooks.CompareAndSwap(h.next, h) {
				break
			}
		}
	}
	// The cell resolved before the hook was linked: run it here, unless
	// a concurrent sweep already detached and claimed it.
	if r != nil && (h == nil || h.claim.CompareAndSwap(0, 1)) {
		runHook(fn, *r)
	}
	c.help()
}

// Await blocks until the cell resolves and returns the outcome.
func (c *Cell[T]) Await() Outcome[T] {
	if r := c.result.Load(); r != nil {
		c.sweep() // help release others
		return *r
	}
	w, resolved := c.park()
	if resolved == nil {
		<-w.ready
		resolved = c.result.Load()
	}
	return *resolved
}

// AwaitTimeout blocks until the cell resolves or d elapses. The second
// return value reports whether an outcome was obtained. On timeout the
// waiter node is unlinked so an abandoned caller does not retain
// garbage; the removal tolerates racing with a concurrent sweep.
func (c *Cell[T]) AwaitTimeout(d time.Duration) (Outcome[T], bool) {
	if r := c.result.Load(); r != nil {
		c.sweep()
		return *r, true
	}
	w, resolved := c.park()
	if resolved != nil {
		return *resolved, true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ready:
		return *c.result.Load(), true
	case <-t.C:
		if r := c.result.Load(); r != nil {
			c.sweep()
			return *r, true
		}
		c.removeWaiter(w)
		return Outcome[T]{}, false
	}
}

// park links a new waiter node, re-checking the result around the push
// so a resolution racing the link is never missed. If the cell resolved
// during the attempt, the outcome is returned and no parking is needed.
func (c *Cell[T]) park() (*waiter, *Outcome[T]) {
	w := &waiter{ready: make(chan struct{})}
	for {
		if r := c.result.Load(); r != nil {
			c.sweep()
			return w, r
		}
		head := c.waiters.Load()
		w.next.Store(head)
		if c.waiters.CompareAndSwap(head, w) {
			break
		}
	}
	// The sweep may have completed between the last load and the link.
	if r := c.result.Load(); r != nil {
		c.sweep()
		return w, r
	}
	return w, nil
}

// sweep releases every parked waiter and runs every unclaimed hook.
// It is a no-op while the cell is pending and is safe to call from any
// goroutine any number of times; nodes are detached with CAS on the
// head so each is processed once.
func (c *Cell[T]) sweep() {
	r := c.result.Load()
	if r == nil {
		return
	}
	for {
		w := c.waiters.Load()
		if w == nil {
			break
		}
		if c.waiters.CompareAndSwap(w, w.next.Load()) && w.woken.CompareAndSwap(false, true) {
			close(w.ready)
		}
	}
	for {
		h := c.hooks.Load()
		if h == nil {
			break
		}
		if c.hooks.CompareAndSwap(h, h.next) && h.claim.CompareAndSwap(0, 1) {
			runHook(h.fn, *r)
		}
	}
}

// help runs the sweep if the cell has resolved, so readers that observe
// a resolution assist in draining the stacks.
func (c *Cell[T]) help() {
	if c.result.Load() != nil {
		c.sweep()
	}
}

// runHook contains a panicking hook so it cannot stop the rest of the
// sweep. The future layer converts panics out of user functions into
// the dependent cell's failure before they reach this point.
func runHook[T any](fn func(Outcome[T]), r Outcome[T]) {
	defer func() {
		_ = recover()
	}()
	fn(r)
}

// removeWaiter unlinks an abandoned node. Interior links are rewritten
// through the atomic next pointers so a racing sweep traversing them
// observes either the old or the new link, never a torn one; the list
// is retraversed whenever an apparent race is detected, the same
// scheme FutureTask-style queues use.
func (c *Cell[T]) removeWaiter(node *waiter) {
	node.gone.Store(true)
retry:
	for {
		var pred *waiter
		for q := c.waiters.Load(); q != nil; {
			next := q.next.Load()
			if !q.gone.Load() {
				pred = q
			} else if pred != nil {
				pred.next.Store(next)
				if pred.gone.Load() {
					continue retry
				}
			} else if !c.waiters.CompareAndSwap(q, next) {
				continue retry
			}
			q = next
		}
		return
	}
}
