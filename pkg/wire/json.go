package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type jsonCodec struct{}

// JSON returns the default codec. Its text is exactly
// {"identity":...,"payload":...,"channelPaths":[[...],...]}.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Encode(env *Envelope) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env.normalized()); err != nil {
		return "", fmt.Errorf("wire: json encode: %w", err)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// Decode accepts exactly one JSON object; characters after it are an error
func (jsonCodec) Decode(text string) (*Envelope, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed(err)
	}
	if rest := bytes.TrimSpace([]byte(text[dec.InputOffset():])); len(rest) > 0 {
		return nil, malformed(fmt.Errorf("unexpected character(s) after valid JSON value: %q", rest))
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, malformed(fmt.Errorf("envelope is not a JSON object"))
	}
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, malformed(err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
