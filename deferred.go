// Package deferred provides single-assignment futures with a
// callback-driven combinator layer.
//
// A Future resolves exactly once, to a value or an error, and every
// observer or combinator attached to it runs exactly once with that
// outcome, whether it was attached before or after resolution.
// Completion never blocks the producer; only Wait does any blocking.
//
// Combinators that change the value type (Map, FlatMap, Transform,
// Collect) are package functions because Go methods cannot introduce
// type parameters; same-type combinators (Filter, Recover, FallbackTo,
// AndThen) are methods on Future.
//
// Dependent computations run on an Executor supplied at the call site.
// Inline runs them on whichever goroutine resolves the future, which
// makes tests deterministic; Default returns a process-wide worker
// pool created on first use.
package deferred

import "sync"

// Unit is the value type of futures that carry no result, such as those
// returned by Submit and AllOf.
type Unit = struct{}

var (
	defaultPool     Pool
	defaultPoolOnce sync.Once
)

// Default returns the process-wide executor used by the package-level
// factories. It is an unbounded worker pool created once, on first use.
func Default() Executor {
	return sharedPool()
}

func sharedPool() Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(0)
	})
	return defaultPool
}

// Submit runs task on the default executor and returns a future
// resolved when it finishes.
func Submit(task func()) *Future[Unit] {
	return sharedPool().Submit(task)
}

// SubmitErr runs an error-returning task on the default executor.
func SubmitErr(task func() error) *Future[Unit] {
	return sharedPool().SubmitErr(task)
}

// Async runs fn on the default executor and returns a future resolved
// by its outcome.
func Async[T any](fn func() (T, error)) *Future[T] {
	return Of(Default(), fn)
}
