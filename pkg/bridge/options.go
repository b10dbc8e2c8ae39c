package bridge

import (
	"time"

	"github.com/sammck-go/chanbridge/pkg/identity"
	"github.com/sammck-go/chanbridge/pkg/logger"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger the Bridge and its sessions fork from
func WithLogger(lg logger.Logger) Option {
	return func(b *Bridge) {
		if lg != nil {
			b.lg = lg
		}
	}
}

// WithCodec selects the envelope codec. Both ends of a transport must agree.
func WithCodec(c wire.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithIdentityGenerator sets the source of fresh session identities
func WithIdentityGenerator(g *identity.Generator) Option {
	return func(b *Bridge) {
		if g != nil {
			b.ids = g
		}
	}
}

// WithIdleTimeout releases a session that has neither sent nor accepted an envelope
// for d. Zero, the default, keeps sessions until they are closed.
func WithIdleTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.idleTimeout = d
	}
}
