package asyncobj

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sammck-go/chanbridge/internal/testutil/testlog"
)

type testObj struct {
	*Helper
	name     string
	nCalls   atomic.Int32
	finalErr error
}

func newTestObj(t *testing.T, name string) *testObj {
	o := &testObj{name: name}
	o.Helper = NewHelper(testlog.New(t).ForkLogStr(name), o)
	return o
}

func (o *testObj) String() string {
	return o.name
}

func (o *testObj) HandleOnceShutdown(completionErr error) error {
	o.nCalls.Add(1)
	if o.finalErr != nil {
		return o.finalErr
	}
	return completionErr
}

func TestShutdownRunsHandlerOnce(t *testing.T) {
	o := newTestObj(t, "obj")
	if err := o.SetIsActivated(); err != nil {
		t.Fatalf("SetIsActivated() returned error: %v", err)
	}
	advisory := errors.New("advisory")
	o.StartShutdown(advisory)
	o.StartShutdown(errors.New("ignored"))
	if err := o.WaitShutdown(); !errors.Is(err, advisory) {
		t.Errorf("WaitShutdown() = %v, want %v", err, advisory)
	}
	if err := o.Close(); !errors.Is(err, advisory) {
		t.Errorf("Close() after shutdown = %v, want %v", err, advisory)
	}
	if n := o.nCalls.Load(); n != 1 {
		t.Errorf("HandleOnceShutdown called %d times", n)
	}
	if !o.IsDoneShutdown() {
		t.Errorf("%v was not done shutting down", o)
	}
	if err := o.SetIsActivated(); err != nil {
		t.Errorf("SetIsActivated() on an activated object returned %v", err)
	}
}

func TestDeferShutdownDelaysHandler(t *testing.T) {
	o := newTestObj(t, "deferred")
	if err := o.DeferShutdown(); err != nil {
		t.Fatalf("DeferShutdown() returned error: %v", err)
	}
	o.StartShutdown(nil)
	select {
	case <-o.ShutdownStartedChan():
		t.Fatalf("shutdown started while deferred")
	case <-time.After(20 * time.Millisecond):
	}
	o.UndeferShutdown()
	if err := o.WaitShutdown(); err != nil {
		t.Errorf("WaitShutdown() = %v", err)
	}
	if err := o.DeferShutdown(); err == nil {
		t.Errorf("DeferShutdown() after shutdown should fail")
	}
}

func TestChildrenShutDownWithParent(t *testing.T) {
	parent := newTestObj(t, "parent")
	parent.finalErr = errors.New("parent failed")
	children := make([]*testObj, 3)
	for i := range children {
		children[i] = newTestObj(t, fmt.Sprintf("child#%d", i))
		parent.AddShutdownChild(children[i])
	}
	// a child that finishes on its own is released without waiting for the parent
	if err := children[0].Close(); err != nil {
		t.Fatalf("child Close() = %v", err)
	}

	if err := parent.Close(); !errors.Is(err, parent.finalErr) {
		t.Errorf("parent Close() = %v", err)
	}
	for _, c := range children[1:] {
		if !c.IsDoneShutdown() {
			t.Errorf("%v was not shut down by parent", c)
		}
		if err := c.WaitShutdown(); !errors.Is(err, parent.finalErr) {
			t.Errorf("%v completion = %v, want parent's", c, err)
		}
	}

	late := newTestObj(t, "late")
	parent.AddShutdownChild(late)
	if err := late.WaitShutdown(); !errors.Is(err, parent.finalErr) {
		t.Errorf("late child completion = %v", err)
	}
}

func TestShutdownOnContext(t *testing.T) {
	o := newTestObj(t, "ctx")
	ctx, cancel := context.WithCancel(context.Background())
	o.ShutdownOnContext(ctx)
	cancel()
	if err := o.WaitShutdown(); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitShutdown() = %v, want context.Canceled", err)
	}
}

func TestDoOnceActivateFailure(t *testing.T) {
	o := newTestObj(t, "activate")
	boom := errors.New("boom")
	err := o.DoOnceActivate(func() error { return boom }, true)
	if !errors.Is(err, boom) {
		t.Fatalf("DoOnceActivate() = %v", err)
	}
	if !o.IsDoneShutdown() {
		t.Errorf("failed activation should shut the object down")
	}
	if o.IsActivated() {
		t.Errorf("failed activation should not activate")
	}
}
