// Package asyncobj manages clean asynchronous shutdown of long-lived objects
// (sessions, transports, bridges) and of the children they own.
package asyncobj

import (
	"context"
	"sync"

	"github.com/sammck-go/chanbridge/pkg/logger"
)

// HandleOnceShutdowner is an interface that must be implemented by the object managed by Helper
type HandleOnceShutdowner interface {
	// HandleOnceShutdown will be called exactly once, in its own goroutine. It should take completionError
	// as an advisory completion value, actually shut down, then return the real completion value.
	// This method will never be called while shutdown is deferred.
	HandleOnceShutdown(completionError error) error
}

// AsyncShutdowner is an interface implemented by objects that provide
// asynchronous shutdown capability.
type AsyncShutdowner interface {
	// StartShutdown schedules asynchronous shutdown of the object. If the object
	// has already been scheduled for shutdown, it has no effect.
	// completionErr is an advisory error (or nil) to use as the completion status
	// from WaitShutdown(). The implementation may use this value or decide to return
	// something else.
	StartShutdown(completionErr error)

	// ShutdownDoneChan returns a chan that is closed after shutdown is complete.
	// After this channel is closed, it is guaranteed that IsDoneShutdown() will
	// return true, and WaitShutdown will not block.
	ShutdownDoneChan() <-chan struct{}

	// IsDoneShutdown returns false if the object is not yet completely
	// shut down. Otherwise it returns true with the guarantee that
	// ShutdownDoneChan() will be immediately closed and WaitShutdown
	// will immediately return the final status.
	IsDoneShutdown() bool

	// WaitShutdown blocks until the object is completely shut down, and
	// returns the final completion status
	WaitShutdown() error
}

// Helper is a base that manages clean asynchronous object shutdown for an
// object that implements HandleOnceShutdowner
type Helper struct {
	// Logger is the Logger that will be used for log output from this helper
	logger.Logger

	// Lock is a general-purpose fine-grained mutex for this helper; it may be used
	// as a general-purpose lock by derived objects as well
	Lock sync.Mutex

	// The object that is being managed by this helper, which is called exactly once
	// to perform synchronous shutdown.
	shutdownHandler HandleOnceShutdowner

	// deferCount is the number of times UndeferShutdown() must be called before
	// shutdown can commence
	deferCount int

	isActivated         bool
	isScheduledShutdown bool
	isStartedShutdown   bool
	isDoneShutdown      bool

	// shutdownErr contains the final completion status after isDoneShutdown is true
	shutdownErr error

	shutdownStartedChan chan struct{}

	// shutdownHandlerDoneChan is closed after shutdownHandler returns, before we
	// begin waiting on the waitgroup. It wakes up goroutines that actively shut
	// down children.
	shutdownHandlerDoneChan chan struct{}

	shutdownDoneChan chan struct{}

	// wg is waited on before shutdown is considered complete; it is incremented
	// for each child that we are waiting on.
	wg sync.WaitGroup
}

// NewHelper creates a new Helper on the heap
func NewHelper(lg logger.Logger, shutdownHandler HandleOnceShutdowner) *Helper {
	h := &Helper{}
	h.InitHelper(lg, shutdownHandler)
	return h
}

// InitHelper initializes a Helper in place
func (h *Helper) InitHelper(lg logger.Logger, shutdownHandler HandleOnceShutdowner) {
	if lg == nil {
		lg = logger.NilLogger
	}
	h.Logger = lg
	h.shutdownHandler = shutdownHandler
	h.shutdownStartedChan = make(chan struct{})
	h.shutdownHandlerDoneChan = make(chan struct{})
	h.shutdownDoneChan = make(chan struct{})
}

// asyncDoStartedShutdown starts background processing of shutdown *after*
// h.isStartedShutdown has already been set to true and h.shutdownErr has been set
// to the advisory completion error
func (h *Helper) asyncDoStartedShutdown() {
	h.TLogf("->shutdownStarted")
	close(h.shutdownStartedChan)
	go func() {
		h.Lock.Lock()
		advisoryErr := h.shutdownErr
		h.Lock.Unlock()
		finalErr := h.shutdownHandler.HandleOnceShutdown(advisoryErr)
		h.Lock.Lock()
		h.shutdownErr = finalErr
		h.Lock.Unlock()
		h.TLogf("->shutdownHandlerDone")
		close(h.shutdownHandlerDoneChan)
		h.wg.Wait()
		h.Lock.Lock()
		h.isDoneShutdown = true
		h.Lock.Unlock()
		h.TLogf("->shutdownDone")
		close(h.shutdownDoneChan)
	}()
}

// SetIsActivated marks the object as activated. Fails if shutdown has already been started.
func (h *Helper) SetIsActivated() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if !h.isActivated {
		if h.isStartedShutdown {
			return h.Errorf("cannot activate; shutdown already initiated")
		}
		h.isActivated = true
	}
	return nil
}

// IsActivated returns true if this helper has been activated
func (h *Helper) IsActivated() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.isActivated
}

// DoOnceActivate defers shutdown, invokes onceActivateHandler and, if it succeeds, marks the
// object activated. If the handler fails, shutdown is started with its error; if waitOnFail is
// true, shutdown is waited for before returning. Returns nil if already activated.
func (h *Helper) DoOnceActivate(onceActivateHandler func() error, waitOnFail bool) error {
	h.Lock.Lock()
	if h.isActivated {
		h.Lock.Unlock()
		return nil
	}
	if h.isStartedShutdown {
		h.Lock.Unlock()
		var err error
		if waitOnFail {
			err = h.WaitShutdown()
		}
		if err == nil {
			err = h.Errorf("shutdown already started; cannot activate")
		}
		return err
	}
	h.deferCount++
	h.Lock.Unlock()

	err := onceActivateHandler()
	if err == nil {
		err = h.SetIsActivated()
	}
	if err != nil {
		h.StartShutdown(err)
	}
	h.UndeferShutdown()
	if err != nil && waitOnFail {
		h.WaitShutdown()
	}
	return err
}

// DeferShutdown increments the shutdown defer count, preventing shutdown from starting. Returns an error
// if shutdown has already started. Deferring does not prevent shutdown from being scheduled
// with StartShutdown(), it just prevents actual async shutdown from beginning. Each successful call
// to DeferShutdown must pair with a matching call to UndeferShutdown.
func (h *Helper) DeferShutdown() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if h.isStartedShutdown {
		return h.Errorf("shutdown already started; cannot defer")
	}
	h.deferCount++
	return nil
}

// UndeferShutdown decrements the shutdown defer count, and if it becomes zero, allows shutdown to start
func (h *Helper) UndeferShutdown() {
	h.Lock.Lock()
	if h.deferCount < 1 {
		h.Lock.Unlock()
		h.Panicf("UndeferShutdown before DeferShutdown")
		return
	}
	h.deferCount--
	doShutdownNow := h.deferCount == 0 && h.isScheduledShutdown && !h.isStartedShutdown
	if doShutdownNow {
		h.isStartedShutdown = true
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// StartShutdown schedules asynchronous shutdown of the object. If the object
// has already been scheduled for shutdown, it has no effect. If shutting down has
// been deferred, actual starting of the shutdown process is delayed.
//
// Asynchronously, only the first time it is called:
//
//   - Wait for the shutdown defer count to reach 0
//   - Signal that shutdown has started
//   - Invoke HandleOnceShutdown with the advisory completion status; its return
//     value becomes the final completion status
//   - Start shutdown of every registered child and wait for each to finish
//   - Signal shutdown complete
func (h *Helper) StartShutdown(completionErr error) {
	var doShutdownNow bool
	h.Lock.Lock()
	if !h.isScheduledShutdown {
		h.shutdownErr = completionErr
		h.isScheduledShutdown = true
		doShutdownNow = h.deferCount == 0
		h.isStartedShutdown = doShutdownNow
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// ShutdownOnContext begins background monitoring of a context.Context, and
// will begin asynchronously shutting down this helper with the context's error
// if the context is completed. This method does not block, it just
// constrains the lifetime of this object to a context.
func (h *Helper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.shutdownStartedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// IsStartedShutdown returns true if shutdown has begun. It continues to return true after shutdown
// is complete
func (h *Helper) IsStartedShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.isStartedShutdown
}

// IsDoneShutdown returns true if shutdown is complete.
func (h *Helper) IsDoneShutdown() bool {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.isDoneShutdown
}

// ShutdownStartedChan returns a channel that will be closed as soon as shutdown is initiated
func (h *Helper) ShutdownStartedChan() <-chan struct{} {
	return h.shutdownStartedChan
}

// ShutdownDoneChan returns a channel that will be closed after shutdown is done
func (h *Helper) ShutdownDoneChan() <-chan struct{} {
	return h.shutdownDoneChan
}

// WaitShutdown waits for the shutdown to complete, then returns the shutdown status
// It does not initiate shutdown, so it can be used to wait on an object that
// will shutdown at an unspecified point in the future.
func (h *Helper) WaitShutdown() error {
	<-h.shutdownDoneChan
	h.Lock.Lock()
	defer h.Lock.Unlock()
	return h.shutdownErr
}

// Shutdown performs a synchronous shutdown, It initiates shutdown if it has
// not already started, waits for the shutdown to complete, then returns
// the final shutdown status
func (h *Helper) Shutdown(completionError error) error {
	h.StartShutdown(completionError)
	return h.WaitShutdown()
}

// Close is a default implementation of Close(), which simply shuts down
// with an advisory completion status of nil, and returns the final completion
// status
func (h *Helper) Close() error {
	h.TLogf("Close()")
	return h.Shutdown(nil)
}

// AddShutdownChild adds a child object to the set of objects that will be
// actively shut down by this helper after HandleOnceShutdown() returns, before this
// object's shutdown is considered complete. The child will be shut down with an advisory
// completion status equal to the status returned from HandleOnceShutdown. A child that
// finishes shutting down on its own is simply forgotten.
func (h *Helper) AddShutdownChild(child AsyncShutdowner) {
	h.TLogf("AddShutdownChild(%v)", child)
	h.Lock.Lock()
	if h.isStartedShutdown {
		err := h.shutdownErr
		h.Lock.Unlock()
		child.StartShutdown(err)
		return
	}
	h.wg.Add(1)
	h.Lock.Unlock()
	go func() {
		select {
		case <-child.ShutdownDoneChan():
		case <-h.shutdownHandlerDoneChan:
			h.Lock.Lock()
			err := h.shutdownErr
			h.Lock.Unlock()
			child.StartShutdown(err)
			child.WaitShutdown()
		}
		h.wg.Done()
	}()
}
