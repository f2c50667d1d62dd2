package deferred_test

import (
	"errors"
	"testing"

	"github.com/deferkit/deferred"
)

func TestPromiseSuccess(t *testing.T) {
	p := deferred.NewPromise[int]()

	if p.Completed() {
		t.Error("Completed() = true before completion")
	}
	p.Success(42)
	if !p.Completed() {
		t.Error("Completed() = false after Success")
	}
	if v, err := p.Future().Wait(); err != nil || v != 42 {
		t.Errorf("Wait() = (%d, %v), want (42, nil)", v, err)
	}
}

func TestPromiseFailure(t *testing.T) {
	p := deferred.NewPromise[int]()
	sampleErr := errors.New("sample error")

	p.Failure(sampleErr)
	if _, err := p.Future().Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestPromiseTryForms(t *testing.T) {
	p := deferred.NewPromise[int]()

	if !p.TrySuccess(1) {
		t.Error("TrySuccess = false on pending promise")
	}
	if p.TrySuccess(2) {
		t.Error("second TrySuccess = true, want false")
	}
	if p.TryFailure(errors.New("late")) {
		t.Error("TryFailure after completion = true, want false")
	}
	if v, _ := p.Future().Wait(); v != 1 {
		t.Errorf("Wait() = %d, want 1", v)
	}
}

func TestPromiseTryComplete(t *testing.T) {
	ok := deferred.NewPromise[int]()
	if !ok.TryComplete(5, nil) {
		t.Error("TryComplete with nil err = false, want true")
	}
	if v, err := ok.Future().Wait(); err != nil || v != 5 {
		t.Errorf("Wait() = (%d, %v), want (5, nil)", v, err)
	}

	sampleErr := errors.New("sample error")
	failed := deferred.NewPromise[int]()
	if !failed.TryComplete(0, sampleErr) {
		t.Error("TryComplete with err = false, want true")
	}
	if _, err := failed.Future().Wait(); !errors.Is(err, sampleErr) {
		t.Errorf("Wait() err = %v, want sampleErr", err)
	}
}

func TestPromiseSuccessPanicsWhenCompleted(t *testing.T) {
	p := deferred.NewPromise[int]()
	p.Success(1)

	defer func() {
		if recover() == nil {
			t.Error("Success on a completed promise did not panic")
		}
	}()
	p.Success(2)
}

func TestPromiseFailurePanicsWhenCompleted(t *testing.T) {
	p := deferred.NewPromise[int]()
	p.Success(1)

	defer func() {
		if recover() == nil {
			t.Error("Failure on a completed promise did not panic")
		}
	}()
	p.Failure(errors.New("late"))
}

func TestPromiseCancel(t *testing.T) {
	p := deferred.NewPromise[int]()

	if !p.Cancel() {
		t.Error("Cancel() = false on pending promise")
	}
	if p.Cancel() {
		t.Error("second Cancel() = true, want false")
	}
	_, err := p.Future().Wait()
	if !errors.Is(err, deferred.ErrCancelled) {
		t.Errorf("Wait() err = %v, want ErrCancelled", err)
	}
}

func TestPromiseTryCompleteWith(t *testing.T) {
	source := deferred.NewPromise[int]()
	p := deferred.NewPromise[int]().TryCompleteWith(source.Future())

	if p.Completed() {
		t.Error("Completed() = true before source resolved")
	}
	source.Success(9)
	if v, err := p.Future().Wait(); err != nil || v != 9 {
		t.Errorf("Wait() = (%d, %v), want (9, nil)", v, err)
	}
}

func TestPromiseTryCompleteWithLosesRace(t *testing.T) {
	source := deferred.NewPromise[int]()
	p := deferred.NewPromise[int]().TryCompleteWith(source.Future())

	p.Success(1)
	source.Success(2)

	if v, _ := p.Future().Wait(); v != 1 {
		t.Errorf("Wait() = %d, want the directly-completed value 1", v)
	}
}
