// Package endpoint provides linked pairs of in-process structured-message ports.
// A payload sent on one end is received on the other, optionally together with
// other Ports whose ownership is transferred to the receiver.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sammck-go/chanbridge/pkg/asyncobj"
	"github.com/sammck-go/chanbridge/pkg/logger"
)

var (
	// ErrClosed is returned when sending on or receiving from a closed Port
	ErrClosed = errors.New("endpoint: port closed")

	// ErrInvalidTransfer is returned when a transfer list names a nil Port, the
	// sending Port or its peer
	ErrInvalidTransfer = errors.New("endpoint: invalid transfer")

	// ErrAlreadyTransferred is returned when a Port in a transfer list has already
	// been transferred
	ErrAlreadyTransferred = errors.New("endpoint: port already transferred")

	// ErrNotSerializable is returned by encoders that meet a live Port
	ErrNotSerializable = errors.New("endpoint: port is not serializable")
)

var lastPortID atomic.Uint64

// Message is one unit received from a Port
type Message struct {
	// Payload is the value that was sent
	Payload any

	// Ports are the Ports transferred along with Payload
	Ports []*Port
}

// Port is one end of a linked pair. Send and Close are safe for concurrent use;
// a Port is expected to have a single receiving owner.
type Port struct {
	*asyncobj.Helper
	id   uint64
	peer *Port

	qlock  sync.Mutex
	queue  []Message
	notify chan struct{}

	transferred atomic.Bool
}

// NewPair creates two linked Ports. Closing either one closes the other.
func NewPair(lg logger.Logger) (*Port, *Port) {
	if lg == nil {
		lg = logger.NilLogger
	}
	a := newPort(lg)
	b := newPort(lg)
	a.peer = b
	b.peer = a
	a.DLogf("Linked with %s", b)
	return a, b
}

func newPort(lg logger.Logger) *Port {
	p := &Port{
		id:     lastPortID.Add(1),
		notify: make(chan struct{}, 1),
	}
	p.Helper = asyncobj.NewHelper(lg.Fork("Port#%d", p.id), p)
	p.SetIsActivated()
	return p
}

func (p *Port) String() string {
	return fmt.Sprintf("Port#%d", p.id)
}

// ID returns a process-unique number for this Port, for diagnostics
func (p *Port) ID() uint64 {
	return p.id
}

// IsTransferred returns true once this Port has been handed over in a transfer list
func (p *Port) IsTransferred() bool {
	return p.transferred.Load()
}

// Send queues payload for delivery on the peer Port. It never blocks. The payload is
// moved into the Port: the caller must not mutate it afterwards. Each Port in transfer
// is delivered alongside the payload and marked transferred.
func (p *Port) Send(payload any, transfer ...*Port) error {
	if p.IsStartedShutdown() || p.peer.IsStartedShutdown() {
		return fmt.Errorf("%s: send: %w", p, ErrClosed)
	}
	for _, tp := range transfer {
		if tp == nil || tp == p || tp == p.peer {
			return fmt.Errorf("%s: send: %w", p, ErrInvalidTransfer)
		}
	}
	for i, tp := range transfer {
		if !tp.transferred.CompareAndSwap(false, true) {
			for _, prev := range transfer[:i] {
				prev.transferred.Store(false)
			}
			return fmt.Errorf("%s: send: %s: %w", p, tp, ErrAlreadyTransferred)
		}
	}
	var ports []*Port
	if len(transfer) > 0 {
		ports = append(ports, transfer...)
	}
	p.peer.enqueue(Message{Payload: payload, Ports: ports})
	return nil
}

func (p *Port) enqueue(msg Message) {
	p.qlock.Lock()
	p.queue = append(p.queue, msg)
	p.qlock.Unlock()
	p.wake()
}

func (p *Port) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Receive returns the next queued Message, blocking until one arrives, the Port is
// closed or ctx is done. Messages queued before close are still returned; after they
// are drained Receive returns ErrClosed.
func (p *Port) Receive(ctx context.Context) (Message, error) {
	for {
		p.qlock.Lock()
		if len(p.queue) > 0 {
			msg := p.queue[0]
			p.queue[0] = Message{}
			p.queue = p.queue[1:]
			more := len(p.queue) > 0
			p.qlock.Unlock()
			if more {
				p.wake()
			}
			return msg, nil
		}
		p.qlock.Unlock()

		select {
		case <-p.notify:
		case <-p.ShutdownStartedChan():
			p.qlock.Lock()
			empty := len(p.queue) == 0
			p.qlock.Unlock()
			if empty {
				return Message{}, fmt.Errorf("%s: receive: %w", p, ErrClosed)
			}
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued, unreceived messages
func (p *Port) Pending() int {
	p.qlock.Lock()
	defer p.qlock.Unlock()
	return len(p.queue)
}

// HandleOnceShutdown closes the peer along with this Port
func (p *Port) HandleOnceShutdown(completionErr error) error {
	p.DLogf("Closing; peer %s", p.peer)
	p.peer.StartShutdown(completionErr)
	p.wake()
	return completionErr
}

// MarshalJSON fails: a live Port must be replaced by a placeholder before encoding
func (p *Port) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", p, ErrNotSerializable)
}

// MarshalCBOR fails for the same reason as MarshalJSON
func (p *Port) MarshalCBOR() ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", p, ErrNotSerializable)
}
