package deferred

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/deferkit/deferred/internal/queue"
)

const (
	Unbounded          = math.MaxInt // Unbounded queue size
	DefaultQueueSize   = Unbounded
	DefaultNonBlocking = false

	queueInitialSize = 1024
	queueMaxCapacity = 100 * 1024
)

var (
	ErrQueueFull             = errors.New("queue is full")
	ErrQueueEmpty            = errors.New("queue is empty")
	ErrPoolStopped           = errors.New("pool stopped")
	ErrMaxConcurrencyReached = errors.New("max concurrency reached")

	poolStoppedFuture = Failed[Unit](ErrPoolStopped)
)

// Pool is a pool of goroutines executing submitted tasks with bounded
// concurrency. It satisfies Executor, so futures can dispatch their
// dependent computations onto it; a stopped or full pool rejects work
// by panicking with the sentinel error, which the combinator layer
// converts into the dependent future's failure.
type Pool interface {
	Executor
	// Go submits a task without a future. Returns ErrPoolStopped if stopped.
	Go(task func()) error
	// Submit submits a task and returns a future resolved by its completion.
	Submit(task func()) *Future[Unit]
	// SubmitErr submits a task that returns an error.
	SubmitErr(task func() error) *Future[Unit]
	// TrySubmit attempts non-blocking submit. Returns false if queue full.
	TrySubmit(task func()) (*Future[Unit], bool)
	// TrySubmitErr attempts non-blocking submit for an error-returning task.
	TrySubmitErr(task func() error) (*Future[Unit], bool)

	RunningWorkers() int64   // Number of active workers
	SubmittedTasks() uint64  // Total tasks submitted
	WaitingTasks() uint64    // Tasks waiting in queue
	FailedTasks() uint64     // Tasks completed with error
	SuccessfulTasks() uint64 // Tasks completed successfully
	CompletedTasks() uint64  // Total completed tasks
	DroppedTasks() uint64    // Tasks dropped (queue full or pool stopped)
	MaxConcurrency() int     // Maximum concurrent workers
	QueueSize() int          // Task queue size
	NonBlocking() bool       // True if pool doesn't block on full queue
	Context() context.Context

	// Stop stops the pool and returns a future for its completion.
	// Queued tasks that never started are failed with ErrPoolStopped.
	Stop() *Future[Unit]
	// StopAndWait stops the pool and waits for all tasks.
	StopAndWait()
	// Stopped reports whether the pool is stopped or its context canceled.
	Stopped() bool
	// Resize changes the maximum concurrency (0 = unlimited).
	Resize(maxConcurrency int)
}

// Option configures a pool.
type Option func(*pool)

// WithContext sets the context for the pool. Canceling it stops the
// pool and fails queued tasks with the context error.
func WithContext(ctx context.Context) Option {
	return func(p *pool) { p.ctx = ctx }
}

// WithQueueSize sets the max queue size.
func WithQueueSize(size int) Option {
	return func(p *pool) { p.queueSize = size }
}

// WithNonBlocking makes the pool non-blocking when the queue is full.
func WithNonBlocking(nonBlocking bool) Option {
	return func(p *pool) { p.nonBlocking = nonBlocking }
}

// WithoutPanicRecovery disables panic recovery in workers.
func WithoutPanicRecovery() Option {
	return func(p *pool) { p.panicRecovery = false }
}

// poolTask pairs a queued wrapped task with the failure path used when
// the task is dropped before ever running (stop or context cancel), so
// its future still resolves.
type poolTask struct {
	run  func() error
	fail func(error)
}

type pool struct {
	mutex               sync.Mutex
	ctx                 context.Context
	cancel              context.CancelCauseFunc
	nonBlocking         bool
	panicRecovery       bool
	maxConcurrency      int
	closed              atomic.Bool
	workerCount         atomic.Int64
	workerWaitGroup     sync.WaitGroup
	submitWaiters       chan struct{}
	queueSize           int
	tasks               *queue.Chunked[any]
	submittedTaskCount  atomic.Uint64
	successfulTaskCount atomic.Uint64
	failedTaskCount     atomic.Uint64
	droppedTaskCount    atomic.Uint64
}

func (p *pool) Context() context.Context { return p.ctx }
func (p *pool) Stopped() bool            { return p.closed.Load() || p.ctx.Err() != nil }
func (p *pool) QueueSize() int           { return p.queueSize }
func (p *pool) NonBlocking() bool        { return p.nonBlocking }
func (p *pool) RunningWorkers() int64    { return p.workerCount.Load() }
func (p *pool) SubmittedTasks() uint64   { return p.submittedTaskCount.Load() }
func (p *pool) WaitingTasks() uint64     { return p.tasks.Len() }
func (p *pool) FailedTasks() uint64      { return p.failedTaskCount.Load() }
func (p *pool) SuccessfulTasks() uint64  { return p.successfulTaskCount.Load() }
func (p *pool) CompletedTasks() uint64 {
	return p.successfulTaskCount.Load() + p.failedTaskCount.Load()
}
func (p *pool) DroppedTasks() uint64 { return p.droppedTaskCount.Load() }

func (p *pool) MaxConcurrency() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.maxConcurrency
}

func (p *pool) Resize(maxConcurrency int) {
	if maxConcurrency == 0 {
		maxConcurrency = math.MaxInt
	}
	if maxConcurrency < 0 {
		panic(errors.New("maxConcurrency must be greater than or equal to 0"))
	}

	p.mutex.Lock()
	newWorkers := min(maxConcurrency-p.maxConcurrency, int(p.tasks.Len()))
	p.maxConcurrency = maxConcurrency
	if newWorkers > 0 {
		p.workerCount.Add(int64(newWorkers))
		p.workerWaitGroup.Add(newWorkers)
	}
	p.mutex.Unlock()

	for _n := 0; _n < newWorkers; _n++ {
		go p.worker(nil)
	}
}

// Execute implements Executor. It panics if the pool cannot accept the
// work item; dependent futures submitting through the combinator layer
// observe that as a failure wrapping ErrRejected.
func (p *pool) Execute(fn func()) {
	if fn == nil {
		panic("deferred: nil work item")
	}
	if err := p.submit(fn, p.nonBlocking); err != nil {
		panic(err)
	}
}

func (p *pool) worker(task any) {
	for {
		if task != nil {
			p.updateMetrics(p.invoke(task))
		}
		var err error
		if task, err = p.readTask(); err != nil {
			return
		}
	}
}

func (p *pool) invoke(task any) error {
	if t, ok := task.(*poolTask); ok {
		return t.run()
	}
	_, err := invokeTask[any](task, p.panicRecovery)
	return err
}

func (p *pool) Go(task func()) error { return p.submit(task, p.nonBlocking) }
func (p *pool) Submit(task func()) *Future[Unit] {
	f, _ := p.wrapAndSubmit(task, p.nonBlocking)
	return f
}
func (p *pool) SubmitErr(task func() error) *Future[Unit] {
	f, _ := p.wrapAndSubmit(task, p.nonBlocking)
	return f
}
func (p *pool) TrySubmit(task func()) (*Future[Unit], bool) { return p.wrapAndSubmit(task, true) }
func (p *pool) TrySubmitErr(task func() error) (*Future[Unit], bool) {
	return p.wrapAndSubmit(task, true)
}

func (p *pool) wrapAndSubmit(task any, nonBlocking bool) (*Future[Unit], bool) {
	if p.Stopped() {
		return poolStoppedFuture, false
	}
	pr := NewPromise[Unit]()
	wrapped := &poolTask{
		run: wrapTask[Unit](task, func(v Unit, err error) { pr.TryComplete(v, err) }, p.panicRecovery),
		fail: func(err error) {
			pr.TryFailure(err)
		},
	}
	if err := p.submit(wrapped, nonBlocking); err != nil {
		pr.TryFailure(err)
		return pr.Future(), false
	}
	return pr.Future(), true
}

func (p *pool) submit(task any, nonBlocking bool) error {
	p.submittedTaskCount.Add(1)
	var err error
	if nonBlocking {
		err = p.trySubmit(task)
	} else {
		err = p.blockingTrySubmit(task)
	}
	if err != nil {
		p.droppedTaskCount.Add(1)
	}
	return err
}

func (p *pool) blockingTrySubmit(task any) error {
	for {
		if err := p.trySubmit(task); err != ErrQueueFull {
			return err
		}
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-p.submitWaiters:
			if p.ctx.Err() != nil {
				return p.ctx.Err()
			}
		}
	}
}

func (p *pool) trySubmit(task any) error {
	p.mutex.Lock()
	if p.Stopped() {
		p.mutex.Unlock()
		return ErrPoolStopped
	}

	queueEnabled := p.queueSize > 0
	tasksLen := int(p.tasks.Len())

	if queueEnabled && tasksLen >= p.queueSize {
		p.mutex.Unlock()
		return ErrQueueFull
	}

	if int(p.workerCount.Load()) >= p.maxConcurrency {
		if !queueEnabled {
			p.mutex.Unlock()
			return ErrQueueFull
		}
		p.tasks.Write(task)
		p.mutex.Unlock()
		return nil
	}

	p.workerCount.Add(1)
	p.workerWaitGroup.Add(1)

	if queueEnabled && tasksLen > 0 {
		p.tasks.Write(task)
		task, _ = p.tasks.Read()
	}
	p.mutex.Unlock()

	go p.worker(task)
	p.notifySubmitWaiter()
	return nil
}

func (p *pool) readTask() (any, error) {
	p.mutex.Lock()

	select {
	case <-p.ctx.Done():
		p.workerCount.Add(-1)
		p.workerWaitGroup.Done()
		p.mutex.Unlock()
		return nil, p.ctx.Err()
	default:
	}

	if p.tasks.Len() == 0 {
		p.workerCount.Add(-1)
		p.workerWaitGroup.Done()
		p.mutex.Unlock()
		p.notifySubmitWaiter()
		return nil, ErrQueueEmpty
	}

	if p.maxConcurrency > 0 && int(p.workerCount.Load()) > p.maxConcurrency {
		p.workerCount.Add(-1)
		p.workerWaitGroup.Done()
		p.mutex.Unlock()
		return nil, ErrMaxConcurrencyReached
	}

	task, _ := p.tasks.Read()
	p.mutex.Unlock()
	p.notifySubmitWaiter()
	return task, nil
}

func (p *pool) notifySubmitWaiter() {
	select {
	case p.submitWaiters <- struct{}{}:
	default:
	}
}

func (p *pool) updateMetrics(err error) {
	if err != nil {
		p.failedTaskCount.Add(1)
	} else {
		p.successfulTaskCount.Add(1)
	}
}

// drainPending fails every queued task that never ran, so its future
// still resolves. Called after workers have exited or will no longer
// read from the queue.
func (p *pool) drainPending(cause error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for {
		task, err := p.tasks.Read()
		if err != nil {
			return
		}
		p.droppedTaskCount.Add(1)
		if t, ok := task.(*poolTask); ok {
			t.fail(cause)
		}
	}
}

func (p *pool) Stop() *Future[Unit] {
	return Submit(func() {
		p.mutex.Lock()
		p.closed.Store(true)
		p.mutex.Unlock()
		p.workerWaitGroup.Wait()
		p.cancel(ErrPoolStopped)
		p.drainPending(ErrPoolStopped)
	})
}

func (p *pool) StopAndWait() { p.Stop().Wait() }

// NewPool creates a pool with the given max concurrency (0 = unlimited).
func NewPool(maxConcurrency int, options ...Option) Pool {
	if maxConcurrency == 0 {
		maxConcurrency = math.MaxInt
	}
	if maxConcurrency < 0 {
		panic(errors.New("maxConcurrency must be greater than or equal to 0"))
	}

	p := &pool{
		ctx:            context.Background(),
		nonBlocking:    DefaultNonBlocking,
		panicRecovery:  true,
		maxConcurrency: maxConcurrency,
		queueSize:      DefaultQueueSize,
		submitWaiters:  make(chan struct{}, 1), // buffer 1 to prevent deadlock
	}

	for _, opt := range options {
		opt(p)
	}

	external := p.ctx
	p.ctx, p.cancel = context.WithCancelCause(p.ctx)
	p.tasks = queue.NewChunked[any](queueInitialSize, queueMaxCapacity)

	if external.Done() != nil {
		// Fail queued futures when the caller's context is canceled;
		// workers stop reading on their own.
		go func() {
			<-external.Done()
			if !p.closed.Load() {
				p.drainPending(external.Err())
			}
		}()
	}

	return p
}
