package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dumpwatch/internal/notify"
)

// Sender delivers one batch notification. *notify.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, batch notify.Batch, policy notify.Policy) error
}

type dispatchRequest struct {
	cycleID    string
	batch      notify.Batch
	policy     notify.Policy
	archiveDir string
}

type dispatchResult struct {
	req dispatchRequest
	err error
}

// dispatchWorker runs sends off the cycle goroutine. At most one request is
// outstanding: inFlight is set on submit and cleared only when the result has
// been collected.
type dispatchWorker struct {
	sender   Sender
	requests chan dispatchRequest
	results  chan dispatchResult
	inFlight atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDispatchWorker(sender Sender) *dispatchWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &dispatchWorker{
		sender:   sender,
		requests: make(chan dispatchRequest, 1),
		results:  make(chan dispatchResult, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *dispatchWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.requests:
			w.results <- dispatchResult{req: req, err: w.send(req)}
		}
	}
}

func (w *dispatchWorker) send(req dispatchRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &notify.Error{Kind: notify.KindUnknown, Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()
	return w.sender.Send(w.ctx, req.batch, req.policy)
}

// submit hands req to the worker. It returns false while a previous request
// is still outstanding.
func (w *dispatchWorker) submit(req dispatchRequest) bool {
	if !w.inFlight.CompareAndSwap(false, true) {
		return false
	}
	w.requests <- req
	return true
}

// poll returns a finished result without waiting.
func (w *dispatchWorker) poll() (dispatchResult, bool) {
	select {
	case res := <-w.results:
		w.inFlight.Store(false)
		return res, true
	default:
		return dispatchResult{}, false
	}
}

func (w *dispatchWorker) busy() bool {
	return w.inFlight.Load()
}

// close cancels the worker and waits up to timeout for it to exit. It
// reports false when a send ignored cancellation and was left running.
func (w *dispatchWorker) close(timeout time.Duration) bool {
	w.cancel()
	exited := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(exited)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}

// await waits up to timeout for the outstanding result.
func (w *dispatchWorker) await(timeout time.Duration) (dispatchResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-w.results:
		w.inFlight.Store(false)
		return res, true
	case <-timer.C:
		return dispatchResult{}, false
	}
}
