package deferred

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrPanic wraps panics recovered from tasks and user-supplied
// functions when panic capture is enabled.
var ErrPanic = errors.New("task panicked")

// wrapTask binds a task of any supported shape to a completion
// callback, producing the function the pool's workers run.
func wrapTask[R any](task any, complete func(R, error), catchPanics bool) func() error {
	return func() error {
		r, err := invokeTask[R](task, catchPanics)
		complete(r, err)
		return err
	}
}

// invokeTask runs a task of any supported shape, optionally converting
// a panic into an error carrying the stack.
func invokeTask[R any](task any, catchPanics bool) (out R, err error) {
	if catchPanics {
		defer func() {
			if p := recover(); p != nil {
				if e, ok := p.(error); ok {
					err = fmt.Errorf("%w: %w\n%s", ErrPanic, e, debug.Stack())
				} else {
					err = fmt.Errorf("%w: %v\n%s", ErrPanic, p, debug.Stack())
				}
			}
		}()
	}

	switch fn := task.(type) {
	case func():
		fn()
	case func() error:
		err = fn()
	case func() R:
		out = fn()
	case func() (R, error):
		out, err = fn()
	default:
		panic(fmt.Sprintf("unsupported task type: %T", task))
	}
	return
}
