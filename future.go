package deferred

import (
	"errors"
	"fmt"
	"time"

	"github.com/deferkit/deferred/internal/cell"
)

var (
	// ErrCancelled marks a future completed by cancellation rather than
	// an ordinary failure. Discriminate with errors.Is or Cancelled.
	ErrCancelled = errors.New("future cancelled")
	// ErrNoSuchElement is the failure produced when Filter rejects a
	// value, when Collect declines one, when Find exhausts its inputs,
	// and when Failed projects a future that succeeded.
	ErrNoSuchElement = errors.New("no such element")
	// ErrTimeout is returned by WaitTimeout when the deadline elapses
	// before the future resolves.
	ErrTimeout = errors.New("await timed out")

	errNilFuture = errors.New("combinator returned a nil future")
)

// Cancelled reports whether err marks a cancelled future.
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Future is a read handle on an eventual value or error. A Future has
// no state of its own: it wraps a completion cell, and several Futures
// may share one. All mutation funnels through the owning Promise or
// the producing combinator.
type Future[T any] struct {
	cell *cell.Cell[T]
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{cell: cell.New[T]()}
}

// Successful returns a future already resolved with value.
func Successful[T any](value T) *Future[T] {
	f := newFuture[T]()
	f.cell.TryComplete(value)
	return f
}

// Failed returns a future already resolved with err, which must be
// non-nil.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.cell.TryCompleteErr(err)
	return f
}

// Never returns a future that never resolves. A pending future is
// indistinguishable from a merely slow one; bounded waiting is the
// caller's job.
func Never[T any]() *Future[T] {
	return newFuture[T]()
}

// Of submits fn to ex and returns a future resolved by its outcome.
// A panic in fn fails the future; a rejecting executor panics through
// to the caller, since there is no other future to report into.
func Of[T any](ex Executor, fn func() (T, error)) *Future[T] {
	if ex == nil {
		panic("deferred: Of requires an executor")
	}
	if fn == nil {
		panic("deferred: Of requires a function")
	}
	p := NewPromise[T]()
	ex.Execute(func() {
		p.TryComplete(invokeTask[T](fn, true))
	})
	return p.Future()
}

// Completed reports whether the future has resolved. A false result
// may be stale by the time the caller observes it.
func (f *Future[T]) Completed() bool {
	return f.cell.Resolved()
}

// Peek returns the resolved value and error without blocking. ok is
// false while the future is pending.
func (f *Future[T]) Peek() (value T, err error, ok bool) {
	r, ok := f.cell.Peek()
	return r.Value, r.Err, ok
}

// Cancelled reports whether the future resolved to the cancellation
// failure.
func (f *Future[T]) Cancelled() bool {
	if r, ok := f.cell.Peek(); ok {
		return Cancelled(r.Err)
	}
	return false
}

// Wait blocks until the future resolves and returns its outcome.
func (f *Future[T]) Wait() (T, error) {
	r := f.cell.Await()
	return r.Value, r.Err
}

// WaitTimeout blocks until the future resolves or d elapses, returning
// ErrTimeout in the latter case.
func (f *Future[T]) WaitTimeout(d time.Duration) (T, error) {
	r, ok := f.cell.AwaitTimeout(d)
	if !ok {
		var zero T
		return zero, ErrTimeout
	}
	return r.Value, r.Err
}

// Dependents returns the number of registered hooks still waiting for
// this future to resolve. For monitoring only.
func (f *Future[T]) Dependents() int {
	return f.cell.Dependents()
}

func (f *Future[T]) String() string {
	r, ok := f.cell.Peek()
	switch {
	case !ok && f.cell.Dependents() > 0:
		return fmt.Sprintf("Future[not completed, %d dependents]", f.cell.Dependents())
	case !ok:
		return "Future[not completed]"
	case r.Err != nil:
		return "Future[completed exceptionally]"
	default:
		return "Future[completed normally]"
	}
}

// OnComplete registers fn to run on ex with the outcome, whichever way
// the future resolves. If the future has already resolved, fn is
// dispatched immediately from the calling goroutine.
func (f *Future[T]) OnComplete(ex Executor, fn func(T, error)) {
	requireObserver(ex, fn == nil)
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		safeExecute(ex, func() { fn(r.Value, r.Err) })
	})
}

// OnSuccess registers fn to run on ex with the value if the future
// resolves successfully. It is not called on failure.
func (f *Future[T]) OnSuccess(ex Executor, fn func(T)) {
	requireObserver(ex, fn == nil)
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		if r.Err == nil {
			safeExecute(ex, func() { fn(r.Value) })
		}
	})
}

// OnFailure registers fn to run on ex with the error if the future
// resolves exceptionally. It is not called on success.
func (f *Future[T]) OnFailure(ex Executor, fn func(error)) {
	requireObserver(ex, fn == nil)
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		if r.Err != nil {
			safeExecute(ex, func() { fn(r.Err) })
		}
	})
}

// ForEach is OnSuccess under the name the original traversal API uses.
func (f *Future[T]) ForEach(ex Executor, fn func(T)) {
	f.OnSuccess(ex, fn)
}

// Filter derives a future holding this future's value if pred accepts
// it, failing with ErrNoSuchElement if pred rejects it, and passing
// through this future's failure otherwise.
func (f *Future[T]) Filter(ex Executor, pred func(T) bool) *Future[T] {
	requireStage(ex, f, pred == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[T]) {
		if r.Err != nil {
			dst.TryCompleteErr(r.Err)
			return
		}
		ok, err := invokeTask[bool](func() (bool, error) { return pred(r.Value), nil }, true)
		switch {
		case err != nil:
			dst.TryCompleteErr(err)
		case ok:
			dst.TryComplete(r.Value)
		default:
			dst.TryCompleteErr(ErrNoSuchElement)
		}
	})
}

// Recover derives a future that converts this future's failure into a
// value via fn. A successful result passes through untouched; an error
// or panic out of fn fails the derived future.
func (f *Future[T]) Recover(ex Executor, fn func(error) (T, error)) *Future[T] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[T]) {
		if r.Err == nil {
			dst.TryComplete(r.Value)
			return
		}
		v, err := invokeTask[T](func() (T, error) { return fn(r.Err) }, true)
		resolve(dst, v, err)
	})
}

// RecoverWith is Recover with fn supplying a whole future: the derived
// future tracks whatever fn's future resolves to.
func (f *Future[T]) RecoverWith(ex Executor, fn func(error) *Future[T]) *Future[T] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[T]) {
		if r.Err == nil {
			dst.TryComplete(r.Value)
			return
		}
		inner, err := invokeTask[*Future[T]](func() (*Future[T], error) { return fn(r.Err), nil }, true)
		if err != nil {
			dst.TryCompleteErr(err)
			return
		}
		if inner == nil {
			dst.TryCompleteErr(errNilFuture)
			return
		}
		inner.cell.OnResolved(func(ir cell.Outcome[T]) {
			resolve(dst, ir.Value, ir.Err)
		})
	})
}

// FallbackTo derives a future holding this future's value if it
// succeeds, or other's value if other succeeds. When both fail, the
// derived future holds this future's error, not other's.
func (f *Future[T]) FallbackTo(other *Future[T]) *Future[T] {
	if other == nil {
		panic("deferred: FallbackTo requires a future")
	}
	dst := newFuture[T]()
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		if r.Err == nil {
			dst.cell.TryComplete(r.Value)
			return
		}
		other.cell.OnResolved(func(o cell.Outcome[T]) {
			if o.Err == nil {
				dst.cell.TryComplete(o.Value)
			} else {
				dst.cell.TryCompleteErr(r.Err)
			}
		})
	})
	return dst
}

// AndThen runs fn for its side effect and derives a future carrying
// this future's original outcome regardless of what fn does. A panic
// in fn is swallowed; downstream observers still see the value. Links
// of one AndThen chain run in order, each after the previous returns.
func (f *Future[T]) AndThen(ex Executor, fn func(T, error)) *Future[T] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[T]) {
		_, _ = invokeTask[Unit](func() { fn(r.Value, r.Err) }, true)
		resolve(dst, r.Value, r.Err)
	})
}

// Failed returns the failed projection of this future: a future
// resolved with the error if this future fails, and failed with
// ErrNoSuchElement if this future succeeds.
func (f *Future[T]) Failed() *Future[error] {
	dst := newFuture[error]()
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		if r.Err != nil {
			dst.cell.TryComplete(r.Err)
		} else {
			dst.cell.TryCompleteErr(ErrNoSuchElement)
		}
	})
	return dst
}

// subscribe adapts the typed completion hook to the type-erased form
// the heterogeneous combinators consume.
func (f *Future[T]) subscribe(fn func(any, error)) {
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		fn(r.Value, r.Err)
	})
}

func requireObserver(ex Executor, nilFn bool) {
	if ex == nil {
		panic("deferred: observer requires an executor")
	}
	if nilFn {
		panic("deferred: observer requires a function")
	}
}

func requireStage[T any](ex Executor, f *Future[T], nilFn bool) {
	if ex == nil {
		panic("deferred: combinator requires an executor")
	}
	if f == nil {
		panic("deferred: combinator requires a future")
	}
	if nilFn {
		panic("deferred: combinator requires a function")
	}
}
