package testsupport

import (
	"context"
	"sync"

	"dumpwatch/internal/notify"
)

// FakeTransport records messages and returns queued errors in order. Once
// the queue is empty every send succeeds.
type FakeTransport struct {
	mu      sync.Mutex
	sent    []notify.Message
	calls   int
	errs    []error
	block   chan struct{}
	started chan struct{}
}

// NewFakeTransport returns a transport that fails with errs before succeeding.
func NewFakeTransport(errs ...error) *FakeTransport {
	return &FakeTransport{errs: errs}
}

// Block makes subsequent sends wait until Release is called or the context
// ends. Started receives once per blocked send.
func (f *FakeTransport) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
	f.started = make(chan struct{}, 16)
}

// Release unblocks pending and future sends.
func (f *FakeTransport) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

// Started signals when a blocked send begins.
func (f *FakeTransport) Started() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeTransport) Name() string { return "fake" }

func (f *FakeTransport) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if block != nil {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

// Sent returns successfully delivered messages.
func (f *FakeTransport) Sent() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.sent...)
}

// Calls returns the number of send attempts.
func (f *FakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
