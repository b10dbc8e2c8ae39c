package wire

import (
	"encoding/base64"
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a codec that sends canonical CBOR, base64 encoded so it fits a text
// transport. Maps inside payloads decode as map[string]any.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return CodecCBOR }

func (c cborCodec) Encode(env *Envelope) (string, error) {
	b, err := c.enc.Marshal(env.normalized())
	if err != nil {
		return "", fmt.Errorf("wire: cbor encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c cborCodec) Decode(text string) (*Envelope, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, malformed(err)
	}
	env := &Envelope{}
	if err := c.dec.Unmarshal(b, env); err != nil {
		return nil, malformed(err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
