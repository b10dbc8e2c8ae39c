package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sammck-go/chanbridge/pkg/asyncobj"
	"github.com/sammck-go/chanbridge/pkg/logger"
)

var lastHubID atomic.Int32

type subscription struct {
	id uint64
	h  Handler
}

// Hub implements Transport over a TextConn. A single goroutine reads the conn and
// dispatches each message synchronously, in order, to a snapshot of the current
// subscribers. Sends are serialized. The Hub shuts down when the conn fails or
// is closed by the remote end.
type Hub struct {
	*asyncobj.Helper
	name string
	conn TextConn

	wlock sync.Mutex

	subLock sync.Mutex
	subs    []subscription
	lastSub uint64

	stats counters
}

// NewHub creates a Hub that owns conn. Nothing is read until Start is called.
func NewHub(lg logger.Logger, conn TextConn) *Hub {
	if lg == nil {
		lg = logger.NilLogger
	}
	h := &Hub{
		name: fmt.Sprintf("Hub#%d", lastHubID.Add(1)),
		conn: conn,
	}
	h.Helper = asyncobj.NewHelper(lg.ForkLogStr(h.name), h)
	return h
}

func (h *Hub) String() string {
	return h.name
}

// Start begins reading from the conn. Subscribe before starting to be sure of
// seeing the first message.
func (h *Hub) Start() error {
	return h.DoOnceActivate(func() error {
		go h.readLoop()
		return nil
	}, false)
}

func (h *Hub) readLoop() {
	for {
		text, err := h.conn.ReadText()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.DLogf("Remote end closed")
				err = nil
			} else if !h.IsStartedShutdown() {
				err = h.DLogErrorf("read failed: %s", err)
			}
			h.StartShutdown(err)
			return
		}
		h.stats.received(len(text))
		h.TLogf("<- %d bytes", len(text))
		for _, s := range h.snapshot() {
			s.h(text)
		}
	}
}

func (h *Hub) snapshot() []subscription {
	h.subLock.Lock()
	defer h.subLock.Unlock()
	return h.subs
}

// Subscribe registers handler for every inbound message. After the Hub has shut
// down, handler is never called.
func (h *Hub) Subscribe(handler Handler) (cancel func()) {
	h.subLock.Lock()
	h.lastSub++
	id := h.lastSub
	// copy on write: dispatch holds on to the previous slice
	subs := make([]subscription, len(h.subs), len(h.subs)+1)
	copy(subs, h.subs)
	h.subs = append(subs, subscription{id: id, h: handler})
	h.subLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.subLock.Lock()
	defer h.subLock.Unlock()
	subs := make([]subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	h.subs = subs
}

// NumSubscribers returns the number of registered handlers
func (h *Hub) NumSubscribers() int {
	h.subLock.Lock()
	defer h.subLock.Unlock()
	return len(h.subs)
}

// Send writes one message. A write failure shuts the Hub down.
func (h *Hub) Send(text string) error {
	if h.IsStartedShutdown() {
		return fmt.Errorf("%s: %w", h, ErrClosed)
	}
	h.wlock.Lock()
	err := h.conn.WriteText(text)
	h.wlock.Unlock()
	if err != nil {
		err = h.DLogErrorf("write failed: %w", err)
		h.StartShutdown(err)
		return err
	}
	h.stats.sent(len(text))
	h.TLogf("-> %d bytes", len(text))
	return nil
}

// Stats returns the Hub's traffic counters
func (h *Hub) Stats() Stats {
	return h.stats.snapshot()
}

// HandleOnceShutdown closes the conn and drops all subscribers
func (h *Hub) HandleOnceShutdown(completionErr error) error {
	err := h.conn.Close()
	h.subLock.Lock()
	h.subs = nil
	h.subLock.Unlock()
	h.DLogf("Close (%s)", h.Stats())
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}
