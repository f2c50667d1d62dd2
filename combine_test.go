package deferred_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/deferkit/deferred"
)

func TestFirstCompletedOf(t *testing.T) {
	p := deferred.NewPromise[int]()
	f := deferred.FirstCompletedOf(deferred.Never[int](), p.Future(), deferred.Never[int]())

	p.Success(7)
	if v, err := f.Wait(); err != nil || v != 7 {
		t.Errorf("Wait() = (%d, %v), want (7, nil)", v, err)
	}
}

func TestFirstCompletedOfFailureWins(t *testing.T) {
	sampleErr := errors.New("sample error")
	f := deferred.FirstCompletedOf(deferred.Never[int](), deferred.Failed[int](sampleErr))

	if _, err := f.Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestFirstCompletedOfEmptyPends(t *testing.T) {
	f := deferred.FirstCompletedOf[int]()

	if _, err := f.WaitTimeout(10 * time.Millisecond); !errors.Is(err, deferred.ErrTimeout) {
		t.Errorf("WaitTimeout() err = %v, want ErrTimeout", err)
	}
}

func TestAnyOfMixedTypes(t *testing.T) {
	f := deferred.AnyOf(deferred.Never[int](), deferred.Successful("mixed"))

	v, err := f.Wait()
	if err != nil {
		t.Errorf("Wait() err = %v, want nil", err)
	}
	if s, ok := v.(string); !ok || s != "mixed" {
		t.Errorf("Wait() value = %v, want \"mixed\"", v)
	}
}

func TestAllOf(t *testing.T) {
	a := deferred.NewPromise[int]()
	b := deferred.NewPromise[string]()
	f := deferred.AllOf(a.Future(), b.Future())

	if f.Completed() {
		t.Error("Completed() = true before inputs resolved")
	}
	a.Success(1)
	if f.Completed() {
		t.Error("Completed() = true with one input pending")
	}
	b.Success("done")

	if _, err := f.Wait(); err != nil {
		t.Errorf("Wait() err = %v, want nil", err)
	}
}

func TestAllOfFirstErrorWins(t *testing.T) {
	sampleErr := errors.New("sample error")
	f := deferred.AllOf(deferred.Never[int](), deferred.Failed[int](sampleErr))

	// The failure resolves AllOf without waiting for the pending input.
	if _, err := f.Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestAllOfEmpty(t *testing.T) {
	f := deferred.AllOf()
	if !f.Completed() {
		t.Error("Completed() = false for empty AllOf, want true")
	}
}

func TestZip(t *testing.T) {
	f := deferred.Zip(deferred.Successful(1), deferred.Successful("a"))

	v, err := f.Wait()
	if err != nil {
		t.Fatalf("Wait() err = %v", err)
	}
	if v.First != 1 || v.Second != "a" {
		t.Errorf("Wait() = %+v, want {1 a}", v)
	}
}

func TestZipFirstErrorPrecedence(t *testing.T) {
	firstErr := errors.New("first")
	secondErr := errors.New("second")
	f := deferred.Zip(deferred.Failed[int](firstErr), deferred.Failed[string](secondErr))

	_, err := f.Wait()
	if !errors.Is(err, firstErr) {
		t.Errorf("Wait() err = %v, want first error", err)
	}
}

func TestFold(t *testing.T) {
	sum := func(acc, v int) (int, error) { return acc + v, nil }
	f := deferred.Fold(deferred.Inline, 0, sum,
		deferred.Successful(1), deferred.Successful(2), deferred.Successful(3))

	if v, err := f.Wait(); err != nil || v != 6 {
		t.Errorf("Wait() = (%d, %v), want (6, nil)", v, err)
	}
}

func TestFoldEmpty(t *testing.T) {
	f := deferred.Fold(deferred.Inline, 10, func(acc, v int) (int, error) { return acc + v, nil })

	if v, err := f.Wait(); err != nil || v != 10 {
		t.Errorf("Wait() = (%d, %v), want (10, nil)", v, err)
	}
}

func TestFoldCombineError(t *testing.T) {
	sampleErr := errors.New("sample error")
	f := deferred.Fold(deferred.Inline, 0, func(acc, v int) (int, error) {
		if v == 2 {
			return 0, sampleErr
		}
		return acc + v, nil
	}, deferred.Successful(1), deferred.Successful(2))

	if _, err := f.Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestFoldInputFailure(t *testing.T) {
	sampleErr := errors.New("sample error")
	f := deferred.Fold(deferred.Inline, 0, func(acc, v int) (int, error) { return acc + v, nil },
		deferred.Successful(1), deferred.Failed[int](sampleErr))

	if _, err := f.Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestFind(t *testing.T) {
	f := deferred.Find(deferred.Inline, func(v int) bool { return v > 10 },
		deferred.Successful(3), deferred.Successful(15), deferred.Successful(20))

	v, err := f.Wait()
	if err != nil {
		t.Fatalf("Wait() err = %v", err)
	}
	if v != 15 && v != 20 {
		t.Errorf("Wait() = %d, want a matching value", v)
	}
}

func TestFindNoMatch(t *testing.T) {
	f := deferred.Find(deferred.Inline, func(v int) bool { return v > 10 },
		deferred.Successful(1), deferred.Successful(2))

	if _, err := f.Wait(); !errors.Is(err, deferred.ErrNoSuchElement) {
		t.Errorf("Wait() err = %v, want ErrNoSuchElement", err)
	}
}

func TestFindFailedInputsAreNonMatches(t *testing.T) {
	f := deferred.Find(deferred.Inline, func(v int) bool { return v > 10 },
		deferred.Failed[int](errors.New("sample")), deferred.Successful(15))

	if v, err := f.Wait(); err != nil || v != 15 {
		t.Errorf("Wait() = (%d, %v), want (15, nil)", v, err)
	}
}

func TestFindEmpty(t *testing.T) {
	f := deferred.Find(deferred.Inline, func(int) bool { return true })

	if _, err := f.Wait(); !errors.Is(err, deferred.ErrNoSuchElement) {
		t.Errorf("Wait() err = %v, want ErrNoSuchElement", err)
	}
}

func TestTraverse(t *testing.T) {
	in := []int{1, 2, 3, 4}
	f := deferred.Traverse(deferred.Spawn, in, func(v int) (string, error) {
		return strconv.Itoa(v * 10), nil
	})

	got, err := f.Wait()
	if err != nil {
		t.Fatalf("Wait() err = %v", err)
	}
	want := []string{"10", "20", "30", "40"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTraverseFirstFailure(t *testing.T) {
	sampleErr := errors.New("sample error")
	f := deferred.Traverse(deferred.Inline, []int{1, 2, 3}, func(v int) (int, error) {
		if v == 2 {
			return 0, sampleErr
		}
		return v, nil
	})

	if _, err := f.Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestTraverseRejectingExecutorFailsFuture(t *testing.T) {
	pool := deferred.NewPool(1)
	pool.StopAndWait()

	f := deferred.Traverse(pool, []int{1, 2}, func(v int) (int, error) {
		return v, nil
	})

	_, err := f.Wait()
	if !errors.Is(err, deferred.ErrRejected) {
		t.Errorf("Wait() err = %v, want ErrRejected", err)
	}
	if !errors.Is(err, deferred.ErrPoolStopped) {
		t.Errorf("Wait() err = %v, want wrapped ErrPoolStopped", err)
	}
}

func TestNilInputPanics(t *testing.T) {
	sum := func(acc, v int) (int, error) { return acc + v, nil }
	cases := map[string]func(){
		"FirstCompletedOf": func() { deferred.FirstCompletedOf[int](nil) },
		"AnyOf":            func() { deferred.AnyOf(nil) },
		"AllOf":            func() { deferred.AllOf(nil) },
		"Fold":             func() { deferred.Fold(deferred.Inline, 0, sum, nil) },
		"Find":             func() { deferred.Find(deferred.Inline, func(int) bool { return true }, nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s with a nil input did not panic", name)
				}
			}()
			fn()
		})
	}
}

func TestTraverseEmpty(t *testing.T) {
	f := deferred.Traverse(deferred.Inline, nil, func(v int) (int, error) { return v, nil })

	got, err := f.Wait()
	if err != nil || len(got) != 0 {
		t.Errorf("Wait() = (%v, %v), want empty slice", got, err)
	}
}
