// Package wire encodes envelopes, the text units that carry one session's
// payload across a shared string transport.
package wire

import (
	"errors"
	"fmt"

	"github.com/sammck-go/chanbridge/pkg/payload"
)

var (
	// ErrMalformedEnvelope is returned when text does not decode as an envelope
	ErrMalformedEnvelope = errors.New("wire: malformed envelope")

	// ErrUnknownCodec is returned by Lookup for an unregistered codec name
	ErrUnknownCodec = errors.New("wire: unknown codec")
)

// Envelope is one message of one session. Every path in ChannelPaths locates, inside
// Payload, the identity string of a nested session.
type Envelope struct {
	Identity     string         `json:"identity" cbor:"identity"`
	Payload      any            `json:"payload" cbor:"payload"`
	ChannelPaths []payload.Path `json:"channelPaths" cbor:"channelPaths"`
}

// Validate checks the fields every codec requires
func (env *Envelope) Validate() error {
	if env.Identity == "" {
		return fmt.Errorf("%w: missing identity", ErrMalformedEnvelope)
	}
	return nil
}

// normalized returns a copy whose ChannelPaths and paths are never nil, so they
// always encode as arrays
func (env *Envelope) normalized() *Envelope {
	out := *env
	out.ChannelPaths = make([]payload.Path, len(env.ChannelPaths))
	for i, p := range env.ChannelPaths {
		if p == nil {
			p = payload.Path{}
		}
		out.ChannelPaths[i] = p
	}
	return &out
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
}
