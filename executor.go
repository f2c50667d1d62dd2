package deferred

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped into a dependent future's failure when an
// executor refuses a work item.
var ErrRejected = errors.New("executor rejected work")

// Executor accepts zero-argument units of work and runs them,
// synchronously or asynchronously, at its own discretion. An executor
// that cannot accept a work item panics; combinators convert that into
// a failure of the dependent future.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

func (e ExecutorFunc) Execute(fn func()) { e(fn) }

// Inline runs work synchronously on the calling goroutine. Dependent
// computations dispatched to it run on whichever goroutine resolved
// the parent future, which makes tests deterministic.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Spawn runs each unit of work on its own goroutine.
var Spawn Executor = ExecutorFunc(func(fn func()) { go fn() })

// rejectionError normalizes a panic out of Executor.Execute into an
// error wrapping ErrRejected.
func rejectionError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrRejected, p)
}

// safeExecute hands fn to ex, swallowing a rejected submission.
// Observers have no dependent cell to report the rejection into.
func safeExecute(ex Executor, fn func()) {
	defer func() {
		_ = recover()
	}()
	ex.Execute(fn)
}
