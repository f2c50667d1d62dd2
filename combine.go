package deferred

import (
	"sync/atomic"

	"github.com/deferkit/deferred/internal/cell"
)

// Awaitable is the type-erased view of a future consumed by the
// heterogeneous combinators AllOf and AnyOf. Every *Future[T]
// satisfies it.
type Awaitable interface {
	Completed() bool
	subscribe(fn func(any, error))
}

// FirstCompletedOf returns a future resolved with whichever input
// resolves first, value or error. The winner is decided by the
// single-assignment race on the derived cell, not by registration
// order. With no inputs the result stays pending forever: there is no
// race to win.
func FirstCompletedOf[T any](futures ...*Future[T]) *Future[T] {
	requireFutures(futures)
	dst := newFuture[T]()
	for _, f := range futures {
		f.cell.OnResolved(func(r cell.Outcome[T]) {
			resolve(dst.cell, r.Value, r.Err)
		})
	}
	return dst
}

// AnyOf is FirstCompletedOf generalized to inputs of mixed value
// types. With no inputs the result stays pending forever.
func AnyOf(futures ...Awaitable) *Future[any] {
	requireAwaitables(futures)
	dst := newFuture[any]()
	for _, f := range futures {
		f.subscribe(func(v any, err error) {
			resolve(dst.cell, v, err)
		})
	}
	return dst
}

// AllOf returns a future resolved successfully once every input has
// resolved successfully, and failed with the first observed error as
// soon as any input fails. The remaining inputs are not cancelled;
// their results are discarded.
func AllOf(futures ...Awaitable) *Future[Unit] {
	requireAwaitables(futures)
	dst := newFuture[Unit]()
	if len(futures) == 0 {
		dst.cell.TryComplete(Unit{})
		return dst
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(futures)))
	for _, f := range futures {
		f.subscribe(func(_ any, err error) {
			if err != nil {
				dst.cell.TryCompleteErr(err)
				return
			}
			if remaining.Add(-1) == 0 {
				dst.cell.TryComplete(Unit{})
			}
		})
	}
	return dst
}

func requireFutures[T any](futures []*Future[T]) {
	for _, f := range futures {
		if f == nil {
			panic("deferred: nil future in input set")
		}
	}
}

func requireAwaitables(futures []Awaitable) {
	for _, f := range futures {
		if f == nil {
			panic("deferred: nil future in input set")
		}
	}
}

// Pair holds the two values produced by Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip returns a future holding both values once both inputs succeed.
// If fa fails the result carries fa's error regardless of fb; if only
// fb fails the result carries fb's error.
func Zip[A, B any](fa *Future[A], fb *Future[B]) *Future[Pair[A, B]] {
	if fa == nil || fb == nil {
		panic("deferred: Zip requires two futures")
	}
	return FlatMap(Inline, fa, func(a A) *Future[Pair[A, B]] {
		return Map(Inline, fb, func(b B) (Pair[A, B], error) {
			return Pair[A, B]{First: a, Second: b}, nil
		})
	})
}

// Fold combines the values of all inputs with combine, starting from
// zero, in input order, once every input has resolved. The fold runs
// on ex, dispatched from whichever goroutine completes the last input.
// The result is the first failure among the inputs, a failure raised
// by combine, or the folded value. With no inputs the result is zero.
func Fold[T, R any](ex Executor, zero R, combine func(R, T) (R, error), futures ...*Future[T]) *Future[R] {
	if ex == nil {
		panic("deferred: Fold requires an executor")
	}
	if combine == nil {
		panic("deferred: Fold requires a combine function")
	}
	requireFutures(futures)
	if len(futures) == 0 {
		return Successful(zero)
	}
	dst := newFuture[R]()
	values := make([]T, len(futures))
	var remaining atomic.Int64
	remaining.Store(int64(len(futures)))
	for i, f := range futures {
		i := i
		f.cell.OnResolved(func(r cell.Outcome[T]) {
			if r.Err != nil {
				dst.cell.TryCompleteErr(r.Err)
				return
			}
			values[i] = r.Value
			if remaining.Add(-1) > 0 {
				return
			}
			dispatch(ex, dst.cell, func() {
				acc := zero
				for _, v := range values {
					next, err := invokeTask[R](func() (R, error) { return combine(acc, v) }, true)
					if err != nil {
						dst.cell.TryCompleteErr(err)
						return
					}
					acc = next
				}
				dst.cell.TryComplete(acc)
			})
		})
	}
	return dst
}

// Find returns a future holding the first value, by completion order,
// that pred accepts. Failed inputs count as non-matches. Once every
// input has resolved without a match the result fails with
// ErrNoSuchElement, immediately so for an empty input set.
func Find[T any](ex Executor, pred func(T) bool, futures ...*Future[T]) *Future[T] {
	if ex == nil {
		panic("deferred: Find requires an executor")
	}
	if pred == nil {
		panic("deferred: Find requires a predicate")
	}
	requireFutures(futures)
	dst := newFuture[T]()
	if len(futures) == 0 {
		dst.cell.TryCompleteErr(ErrNoSuchElement)
		return dst
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(futures)))
	for _, f := range futures {
		f.cell.OnResolved(func(r cell.Outcome[T]) {
			dispatch(ex, dst.cell, func() {
				if r.Err == nil {
					ok, err := invokeTask[bool](func() (bool, error) { return pred(r.Value), nil }, true)
					if err != nil {
						dst.cell.TryCompleteErr(err)
						return
					}
					if ok {
						dst.cell.TryComplete(r.Value)
						return
					}
				}
				if remaining.Add(-1) == 0 {
					dst.cell.TryCompleteErr(ErrNoSuchElement)
				}
			})
		})
	}
	return dst
}

// Traverse runs fn on ex for every element of in, a parallel map, and
// returns a future holding the results in input order. The first
// failure among the applications fails the result; the rest still run
// to completion.
func Traverse[A, T any](ex Executor, in []A, fn func(A) (T, error)) *Future[[]T] {
	if ex == nil {
		panic("deferred: Traverse requires an executor")
	}
	if fn == nil {
		panic("deferred: Traverse requires a function")
	}
	dst := newFuture[[]T]()
	values := make([]T, len(in))
	if len(in) == 0 {
		dst.cell.TryComplete(values)
		return dst
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(in)))
	for i, a := range in {
		i, a := i, a
		// Each element gets its own cell so a rejected submission fails
		// the result instead of panicking at the caller, and elements
		// already in flight cannot leave it pending.
		ec := cell.New[T]()
		ec.OnResolved(func(r cell.Outcome[T]) {
			if r.Err != nil {
				dst.cell.TryCompleteErr(r.Err)
				return
			}
			values[i] = r.Value
			if remaining.Add(-1) == 0 {
				dst.cell.TryComplete(values)
			}
		})
		dispatch(ex, ec, func() {
			v, err := invokeTask[T](func() (T, error) { return fn(a) }, true)
			resolve(ec, v, err)
		})
	}
	return dst
}
