package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sammck-go/chanbridge/pkg/asyncobj"
	"github.com/sammck-go/chanbridge/pkg/endpoint"
	"github.com/sammck-go/chanbridge/pkg/payload"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

// session relays one Port over the Bridge's transport. Outbound messages are read
// from the Port by a relay goroutine; inbound envelopes arrive on the transport's
// dispatch goroutine and are filtered by identity.
type session struct {
	*asyncobj.Helper
	bridge *Bridge
	name   string
	port   *endpoint.Port

	idLock   sync.Mutex
	identity string

	cancelSub   func()
	cancelRelay context.CancelFunc
	relayCtx    context.Context
	relayOnce   sync.Once
	relayDone   chan struct{}
	activity    chan struct{}
}

func newSession(b *Bridge, port *endpoint.Port, id string) *session {
	s := &session{
		bridge:    b,
		name:      fmt.Sprintf("Session#%d", b.lastSessionID.Add(1)),
		port:      port,
		identity:  id,
		relayDone: make(chan struct{}),
		activity:  make(chan struct{}, 1),
	}
	s.relayCtx, s.cancelRelay = context.WithCancel(context.Background())
	s.Helper = asyncobj.NewHelper(b.Logger.ForkLogStr(s.name), s)
	return s
}

func (s *session) String() string {
	return s.name
}

// attach subscribes the session to the transport. Inbound envelopes are delivered
// from then on.
func (s *session) attach() {
	s.SetIsActivated()
	s.DLogf("Relaying %s as %q", s.port, s.getIdentity())
	s.cancelSub = s.bridge.transport.Subscribe(s.handleText)
}

// run starts the outbound relay and the idle timer. It does nothing once shutdown
// has begun.
func (s *session) run() {
	s.relayOnce.Do(func() {
		go s.relayLoop()
		if d := s.bridge.idleTimeout; d > 0 {
			go s.idleLoop(d)
		}
	})
}

func (s *session) getIdentity() string {
	s.idLock.Lock()
	defer s.idLock.Unlock()
	return s.identity
}

// outboundIdentity returns the session identity, generating it on first use
func (s *session) outboundIdentity() string {
	s.idLock.Lock()
	defer s.idLock.Unlock()
	if s.identity == "" {
		s.identity = s.bridge.ids.Next()
		s.DLogf("Bound to fresh identity %q", s.identity)
	}
	return s.identity
}

// accepts binds an unbound session to id and reports whether an envelope
// carrying id belongs to this session
func (s *session) accepts(id string) bool {
	s.idLock.Lock()
	defer s.idLock.Unlock()
	if s.identity == "" {
		s.identity = id
		s.DLogf("Bound to inbound identity %q", id)
		return true
	}
	return s.identity == id
}

func (s *session) touch() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

func (s *session) idleLoop(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-s.activity:
			t.Reset(d)
		case <-t.C:
			s.DLogf("Idle for %s", d)
			s.StartShutdown(ErrSessionIdle)
			return
		case <-s.ShutdownStartedChan():
			return
		}
	}
}

func (s *session) relayLoop() {
	defer close(s.relayDone)
	for {
		msg, err := s.port.Receive(s.relayCtx)
		if err != nil {
			if errors.Is(err, endpoint.ErrClosed) {
				s.DLogf("Port closed")
				s.StartShutdown(nil)
			}
			return
		}
		s.touch()
		if err := s.relay(msg); err != nil {
			s.StartShutdown(err)
			return
		}
	}
}

// relay sends one outbound message. Every Port inside the payload is hooked up as
// a new session and replaced in place by that session's identity. The nested
// sessions start relaying only after the envelope announcing them has been sent,
// so the far side knows their identities before their first envelope arrives.
// A payload that cannot be encoded is dropped and its nested Ports are closed with
// the error; an error is returned only when the session can no longer work.
func (s *session) relay(msg endpoint.Message) error {
	v := msg.Payload
	paths, err := payload.FindChannels(v)
	if err != nil {
		s.ELogf("Dropping outbound message: %s", err)
		return nil
	}
	channelPaths := make([]payload.Path, 0, len(paths))
	nested := make([]*session, 0, len(paths))
	seen := make(map[*endpoint.Port]bool, len(paths))
	abort := func(err error) {
		for _, ns := range nested {
			ns.StartShutdown(err)
		}
	}
	for _, path := range paths {
		cur, err := payload.Get(v, path)
		if err != nil {
			err = s.Errorf("outbound path %s: %w", path, err)
			abort(err)
			return err
		}
		port, ok := cur.(*endpoint.Port)
		if !ok {
			s.WLogf("Channel at %s is inside a container already reached by another path; the far side gets its identity only", path)
			continue
		}
		if seen[port] {
			s.WLogf("%s appears at more than one path; each gets its own session", port)
		}
		seen[port] = true
		id := s.bridge.ids.Next()
		if len(path) == 0 {
			v = id
		} else if _, err := payload.ReplaceAt(v, path, id); err != nil {
			err = s.Errorf("outbound path %s: %w", path, err)
			abort(err)
			return err
		}
		ns, err := s.bridge.hookup(port, id)
		if err != nil {
			abort(err)
			return err
		}
		nested = append(nested, ns)
		channelPaths = append(channelPaths, path)
	}
	if len(msg.Ports) > 0 {
		s.TLogf("Ignoring transfer list of %d; nested ports are found by scanning", len(msg.Ports))
	}

	text, err := s.bridge.codec.Encode(&wire.Envelope{
		Identity:     s.outboundIdentity(),
		Payload:      v,
		ChannelPaths: channelPaths,
	})
	if err != nil {
		s.ELogf("Dropping outbound message: %s", err)
		abort(fmt.Errorf("%s: message not sent: %w", s, err))
		return nil
	}
	if err := s.bridge.transport.Send(text); err != nil {
		err = s.Errorf("send failed: %w", err)
		abort(err)
		return err
	}
	for _, ns := range nested {
		ns.run()
	}
	return nil
}

// handleText receives every text on the transport. Malformed text and envelopes
// for other sessions are ignored. An envelope whose channel paths do not resolve
// to identity strings shuts the session down with payload.ErrBrokenPath.
func (s *session) handleText(text string) {
	if s.IsStartedShutdown() {
		return
	}
	env, err := s.bridge.codec.Decode(text)
	if err != nil {
		s.TLogf("Ignoring text: %s", err)
		return
	}
	if !s.accepts(env.Identity) {
		return
	}
	s.touch()

	v := env.Payload
	nested := make([]*endpoint.Port, 0, len(env.ChannelPaths))
	abort := func(err error) {
		for _, p := range nested {
			p.StartShutdown(err)
		}
		s.StartShutdown(err)
	}
	for _, path := range env.ChannelPaths {
		cur, err := payload.Get(v, path)
		if err != nil {
			abort(s.ELogErrorf("inbound channel path %s: %w", path, err))
			return
		}
		id, ok := cur.(string)
		if !ok {
			abort(s.ELogErrorf("inbound channel path %s: %w: holds %T, not an identity", path, payload.ErrBrokenPath, cur))
			return
		}
		port, err := s.bridge.Wrap(id)
		if err != nil {
			abort(err)
			return
		}
		nested = append(nested, port)
		if len(path) == 0 {
			v = port
		} else if _, err := payload.ReplaceAt(v, path, port); err != nil {
			abort(s.ELogErrorf("inbound channel path %s: %w", path, err))
			return
		}
	}
	if err := s.port.Send(v, nested...); err != nil {
		s.DLogf("Dropping inbound message: %s", err)
		for _, p := range nested {
			p.StartShutdown(err)
		}
	}
}

// HandleOnceShutdown unsubscribes from the transport and closes the Port
func (s *session) HandleOnceShutdown(completionErr error) error {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	s.port.StartShutdown(completionErr)
	s.cancelRelay()
	// a relay that never ran is done already
	s.relayOnce.Do(func() { close(s.relayDone) })
	<-s.relayDone
	s.bridge.removeSession(s)
	s.DLogf("Released (%v)", completionErr)
	return completionErr
}
