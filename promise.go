package deferred

import "github.com/deferkit/deferred/internal/cell"

// Promise is the producer side of a future: the one handle allowed to
// complete it. Completion happens at most once; the Try forms report a
// lost race with false, the non-Try forms panic on a future that has
// already resolved.
type Promise[T any] struct {
	future *Future[T]
}

// NewPromise creates a pending future and the promise that completes it.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{future: newFuture[T]()}
}

// Future returns the read handle on this promise's eventual result.
func (p *Promise[T]) Future() *Future[T] {
	return p.future
}

// Completed reports whether the promise has been completed.
func (p *Promise[T]) Completed() bool {
	return p.future.cell.Resolved()
}

// TryComplete resolves the future from a (value, error) pair: a nil
// err completes successfully, a non-nil err exceptionally. It reports
// whether this call performed the transition.
func (p *Promise[T]) TryComplete(value T, err error) bool {
	if err != nil {
		return p.future.cell.TryCompleteErr(err)
	}
	return p.future.cell.TryComplete(value)
}

// Complete is TryComplete that panics when the promise has already
// been completed.
func (p *Promise[T]) Complete(value T, err error) {
	if !p.TryComplete(value, err) {
		panic("deferred: promise already completed")
	}
}

// TrySuccess resolves the future with value if still pending.
func (p *Promise[T]) TrySuccess(value T) bool {
	return p.future.cell.TryComplete(value)
}

// Success resolves the future with value, panicking if the promise has
// already been completed.
func (p *Promise[T]) Success(value T) {
	if !p.TrySuccess(value) {
		panic("deferred: promise already completed")
	}
}

// TryFailure resolves the future with err if still pending.
func (p *Promise[T]) TryFailure(err error) bool {
	return p.future.cell.TryCompleteErr(err)
}

// Failure resolves the future with err, panicking if the promise has
// already been completed.
func (p *Promise[T]) Failure(err error) {
	if !p.TryFailure(err) {
		panic("deferred: promise already completed")
	}
}

// Cancel resolves the future with the cancellation marker if still
// pending. Work already submitted on its behalf is not interrupted.
func (p *Promise[T]) Cancel() bool {
	return p.TryFailure(ErrCancelled)
}

// TryCompleteWith arranges for this promise to adopt other's outcome
// once other resolves, unless the promise is completed first by some
// other path.
func (p *Promise[T]) TryCompleteWith(other *Future[T]) *Promise[T] {
	if other == nil {
		panic("deferred: TryCompleteWith requires a future")
	}
	other.cell.OnResolved(func(r cell.Outcome[T]) {
		p.TryComplete(r.Value, r.Err)
	})
	return p
}
