// Package executor owns the single dedicated OS thread that hosts every
// call into the embedded runtime. The runtime is single-threaded and
// non-reentrant, so all invocations are funneled through one worker
// goroutine pinned with runtime.LockOSThread; at most one body executes at
// any instant.
package executor

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

var (
	// ErrStartTimeout is returned when the worker does not signal readiness
	// within the startup timeout. Initialization is retryable.
	ErrStartTimeout = errors.New("executor: worker did not start in time")
	// ErrClosed is returned for calls issued after Close.
	ErrClosed = errors.New("executor: closed")
)

// DefaultStartTimeout bounds how long Initialize waits for the worker.
const DefaultStartTimeout = 2 * time.Second

// Result carries the outcome of an asynchronous call.
type Result struct {
	Value string
	Err   error
}

type pendingCall struct {
	body func() (string, error)
	res  chan Result
}

// Executor serializes calls onto the dedicated worker thread. Bodies must be
// short, self-contained calls into the embedded runtime: a body that never
// returns starves every future call.
type Executor struct {
	logger       *zap.Logger
	startTimeout time.Duration

	mu      sync.Mutex
	calls   chan *pendingCall
	stop    chan struct{}
	started bool
	closed  bool

	// Goroutine id of the running worker, 0 when absent. Used to detect the
	// reentrant fast path: a body calling back into CallSync must execute
	// directly instead of queueing behind itself.
	workerID atomic.Int64

	// Test hook: artificial delay before the worker signals readiness.
	startDelay time.Duration
}

// New creates an executor. The worker starts lazily on first use.
func New(logger *zap.Logger) *Executor {
	return &Executor{
		logger:       logger,
		startTimeout: DefaultStartTimeout,
	}
}

// Initialize starts the worker if it is not running, blocking until it
// signals readiness or the startup timeout elapses. Idempotent; safe for
// concurrent callers. After ErrStartTimeout a later call may retry.
func (e *Executor) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}

	calls := make(chan *pendingCall)
	stop := make(chan struct{})
	ready := make(chan struct{})
	go e.run(calls, stop, ready)

	select {
	case <-ready:
		e.calls = calls
		e.stop = stop
		e.started = true
		e.logger.Info("executor worker started")
		return nil
	case <-time.After(e.startTimeout):
		// Abandon this worker; it exits as soon as it observes stop.
		close(stop)
		e.logger.Error("executor worker start timed out")
		return ErrStartTimeout
	}
}

func (e *Executor) run(calls chan *pendingCall, stop, ready chan struct{}) {
	// The embedded runtime keeps thread-local state; every body must see the
	// same OS thread for the lifetime of the session.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if e.startDelay > 0 {
		time.Sleep(e.startDelay)
	}

	// An abandoned worker (Initialize timed out and moved on) must not
	// publish its id over a replacement's.
	select {
	case <-stop:
		return
	default:
	}
	id := goid.Get()
	e.workerID.Store(id)
	close(ready)

	for {
		select {
		case c := <-calls:
			c.res <- runBody(c.body)
		case <-stop:
			e.workerID.CompareAndSwap(id, 0)
			return
		}
	}
}

func runBody(body func() (string, error)) Result {
	v, err := body()
	return Result{Value: v, Err: err}
}

// CallSync executes body on the dedicated worker and blocks until it
// completes. When invoked from the worker itself it runs body directly:
// synchronous wrappers recurse through here from inside a running body, and
// queueing would deadlock.
func (e *Executor) CallSync(body func() (string, error)) (string, error) {
	if err := e.Initialize(); err != nil {
		return "", err
	}

	if goid.Get() == e.workerID.Load() {
		return body()
	}

	e.mu.Lock()
	calls, stop, closed := e.calls, e.stop, e.closed
	e.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	c := &pendingCall{body: body, res: make(chan Result, 1)}
	select {
	case calls <- c:
	case <-stop:
		return "", ErrClosed
	}
	r := <-c.res
	return r.Value, r.Err
}

// CallAsync schedules body on the worker without blocking the caller. The
// returned channel is buffered and receives exactly one Result; abandoning
// it does not leak the worker.
func (e *Executor) CallAsync(body func() (string, error)) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		v, err := e.CallSync(body)
		out <- Result{Value: v, Err: err}
	}()
	return out
}

// Close stops the worker. Calls already executing finish and report to their
// callers; everything else fails with ErrClosed.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.started {
		close(e.stop)
		e.started = false
	}
}
