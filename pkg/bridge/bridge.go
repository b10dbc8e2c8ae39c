// Package bridge relays Ports over a text-only transport. Every Port embedded in
// a payload, at any depth, becomes its own identity-tagged session on the same
// transport and reappears as a live Port at the same place on the far side.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sammck-go/chanbridge/pkg/asyncobj"
	"github.com/sammck-go/chanbridge/pkg/endpoint"
	"github.com/sammck-go/chanbridge/pkg/identity"
	"github.com/sammck-go/chanbridge/pkg/logger"
	"github.com/sammck-go/chanbridge/pkg/transport"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

// ErrSessionIdle is the completion error of a session released by the idle timeout
var ErrSessionIdle = errors.New("bridge: session idle")

var lastBridgeID atomic.Int32

// Bridge hooks Ports onto one transport. All sessions created through a Bridge,
// including the nested ones, share its transport, codec and identity generator.
// Closing the Bridge releases every session; so does shutdown of a transport that
// implements asyncobj.AsyncShutdowner.
type Bridge struct {
	*asyncobj.Helper
	name        string
	lg          logger.Logger
	transport   transport.Transport
	codec       wire.Codec
	ids         *identity.Generator
	idleTimeout time.Duration

	lastSessionID atomic.Int64
	sessLock      sync.Mutex
	sessions      map[*session]struct{}
}

// New creates a Bridge over t
func New(t transport.Transport, opts ...Option) *Bridge {
	b := &Bridge{
		name:      fmt.Sprintf("Bridge#%d", lastBridgeID.Add(1)),
		lg:        logger.NilLogger,
		transport: t,
		codec:     wire.JSON(),
		ids:       identity.NewGenerator(nil),
		sessions:  make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Helper = asyncobj.NewHelper(b.lg.ForkLogStr(b.name), b)
	b.SetIsActivated()
	if ts, ok := t.(asyncobj.AsyncShutdowner); ok {
		go func() {
			select {
			case <-ts.ShutdownDoneChan():
				b.DLogf("Transport shut down")
				b.StartShutdown(transport.ErrClosed)
			case <-b.ShutdownStartedChan():
			}
		}()
	}
	return b
}

func (b *Bridge) String() string {
	return b.name
}

// Wrap creates a Port pair, hooks a session onto one end and returns the other.
// With an empty identity the session binds lazily: to a fresh identity on its first
// send, or to the identity of the first envelope it accepts if that comes first.
//
// A Port sent inside a payload is taken over by a session of its own. A Port should
// appear at most once per payload: at two paths it gets two sessions that both
// drain it, splitting its outbound messages, and releasing either one closes it.
func (b *Bridge) Wrap(id string) (*endpoint.Port, error) {
	external, internal := endpoint.NewPair(b.Logger)
	s, err := b.hookup(internal, id)
	if err != nil {
		external.Close()
		return nil, err
	}
	s.run()
	return external, nil
}

// Wrap creates a Bridge over t and wraps a single Port with it. The Bridge lives
// until the Port's session and the transport are done with it.
func Wrap(t transport.Transport, id string, opts ...Option) (*endpoint.Port, error) {
	return New(t, opts...).Wrap(id)
}

// NumSessions returns the number of sessions that have not been released
func (b *Bridge) NumSessions() int {
	b.sessLock.Lock()
	defer b.sessLock.Unlock()
	return len(b.sessions)
}

// hookup registers and subscribes a session for port as id. Its outbound relay is
// not running until run is called.
func (b *Bridge) hookup(port *endpoint.Port, id string) (*session, error) {
	if err := b.DeferShutdown(); err != nil {
		return nil, fmt.Errorf("%s: %w", b, transport.ErrClosed)
	}
	defer b.UndeferShutdown()

	s := newSession(b, port, id)
	b.sessLock.Lock()
	b.sessions[s] = struct{}{}
	b.sessLock.Unlock()
	b.AddShutdownChild(s)
	s.attach()
	return s, nil
}

func (b *Bridge) removeSession(s *session) {
	b.sessLock.Lock()
	delete(b.sessions, s)
	b.sessLock.Unlock()
}

// HandleOnceShutdown releases the Bridge; its sessions are shut down as children
func (b *Bridge) HandleOnceShutdown(completionErr error) error {
	b.DLogf("Shutting down %d sessions", b.NumSessions())
	return completionErr
}
