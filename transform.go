package deferred

import "github.com/deferkit/deferred/internal/cell"

// then is the shared shape of every derived future: allocate a child
// cell, register a hook on the parent, and dispatch step to ex once
// the parent resolves. step computes the child's resolution from the
// parent's outcome; it runs inline when ex is Inline and the parent
// has already resolved.
func then[T, U any](ex Executor, f *Future[T], step func(cell.Outcome[T], *cell.Cell[U])) *Future[U] {
	dst := cell.New[U]()
	f.cell.OnResolved(func(r cell.Outcome[T]) {
		dispatch(ex, dst, func() { step(r, dst) })
	})
	return &Future[U]{cell: dst}
}

// dispatch hands fn to ex. A rejected submission (a stopped or full
// pool, for example) is reported as the dependent cell's failure
// rather than propagated into the parent's completion sweep.
func dispatch[U any](ex Executor, dst *cell.Cell[U], fn func()) {
	defer func() {
		if p := recover(); p != nil {
			dst.TryCompleteErr(rejectionError(p))
		}
	}()
	ex.Execute(fn)
}

// resolve completes dst from a (value, error) pair, the convention all
// user-supplied functions follow.
func resolve[U any](dst *cell.Cell[U], value U, err error) {
	if err != nil {
		dst.TryCompleteErr(err)
	} else {
		dst.TryComplete(value)
	}
}

// Map derives a future holding fn applied to f's value. If f fails, or
// fn returns an error or panics, the derived future fails and fn's
// result is discarded.
func Map[T, U any](ex Executor, f *Future[T], fn func(T) (U, error)) *Future[U] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[U]) {
		if r.Err != nil {
			dst.TryCompleteErr(r.Err)
			return
		}
		u, err := invokeTask[U](func() (U, error) { return fn(r.Value) }, true)
		resolve(dst, u, err)
	})
}

// FlatMap derives a future that tracks the future returned by fn.
// The first error wins and is never double-wrapped: f's failure, a
// panic in fn, and the inner future's failure all surface unchanged.
func FlatMap[T, U any](ex Executor, f *Future[T], fn func(T) *Future[U]) *Future[U] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[U]) {
		if r.Err != nil {
			dst.TryCompleteErr(r.Err)
			return
		}
		inner, err := invokeTask[*Future[U]](func() (*Future[U], error) { return fn(r.Value), nil }, true)
		if err != nil {
			dst.TryCompleteErr(err)
			return
		}
		if inner == nil {
			dst.TryCompleteErr(errNilFuture)
			return
		}
		inner.cell.OnResolved(func(ir cell.Outcome[U]) {
			resolve(dst, ir.Value, ir.Err)
		})
	})
}

// Transform derives a future from both branches of f's outcome:
// exactly one of onOK and onErr runs, matching how f resolved. An
// error or panic out of either branch fails the derived future.
func Transform[T, U any](ex Executor, f *Future[T], onOK func(T) (U, error), onErr func(error) (U, error)) *Future[U] {
	requireStage(ex, f, onOK == nil || onErr == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[U]) {
		if r.Err != nil {
			u, err := invokeTask[U](func() (U, error) { return onErr(r.Err) }, true)
			resolve(dst, u, err)
			return
		}
		u, err := invokeTask[U](func() (U, error) { return onOK(r.Value) }, true)
		resolve(dst, u, err)
	})
}

// Collect derives a future from the values fn is defined at: fn
// reports whether it accepts the value, and rejection fails the
// derived future with ErrNoSuchElement. f's own failure passes
// through.
func Collect[T, U any](ex Executor, f *Future[T], fn func(T) (U, bool)) *Future[U] {
	requireStage(ex, f, fn == nil)
	return then(ex, f, func(r cell.Outcome[T], dst *cell.Cell[U]) {
		if r.Err != nil {
			dst.TryCompleteErr(r.Err)
			return
		}
		u, ok, err := collectInvoke(fn, r.Value)
		switch {
		case err != nil:
			dst.TryCompleteErr(err)
		case ok:
			dst.TryComplete(u)
		default:
			dst.TryCompleteErr(ErrNoSuchElement)
		}
	})
}

func collectInvoke[T, U any](fn func(T) (U, bool), v T) (u U, ok bool, err error) {
	_, err = invokeTask[Unit](func() {
		u, ok = fn(v)
	}, true)
	return
}
