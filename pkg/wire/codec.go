package wire

import (
	"fmt"
)

// Codec turns envelopes into transport text and back
type Codec interface {
	// Name is the name a codec is selected by
	Name() string

	// Encode renders env as a single text message
	Encode(env *Envelope) (string, error)

	// Decode parses a single text message. Any failure wraps ErrMalformedEnvelope.
	Decode(text string) (*Envelope, error)
}

// Codec names accepted by Lookup
const (
	CodecJSON  = "json"
	CodecCBOR  = "cbor"
	CodecProto = "proto"
)

// Names returns the names of all available codecs
func Names() []string {
	return []string{CodecJSON, CodecCBOR, CodecProto}
}

// Lookup returns the codec with the given name. An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON(), nil
	case CodecCBOR:
		return CBOR()
	case CodecProto:
		return Proto(), nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownCodec, name, Names())
}
