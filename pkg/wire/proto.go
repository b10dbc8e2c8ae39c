package wire

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sammck-go/chanbridge/pkg/payload"
)

type protoCodec struct{}

// Proto returns a codec that sends the envelope as a google.protobuf.Struct,
// base64 encoded. Numbers in payloads decode as float64, as with JSON.
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string { return CodecProto }

func (protoCodec) Encode(env *Envelope) (string, error) {
	pv, err := structpb.NewValue(env.Payload)
	if err != nil {
		return "", fmt.Errorf("wire: proto encode payload: %w", err)
	}
	paths := make([]*structpb.Value, 0, len(env.ChannelPaths))
	for _, p := range env.ChannelPaths {
		keys := make([]*structpb.Value, len(p))
		for i, k := range p {
			keys[i] = structpb.NewStringValue(k)
		}
		paths = append(paths, structpb.NewListValue(&structpb.ListValue{Values: keys}))
	}
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"identity":     structpb.NewStringValue(env.Identity),
		"payload":      pv,
		"channelPaths": structpb.NewListValue(&structpb.ListValue{Values: paths}),
	}}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("wire: proto encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (protoCodec) Decode(text string) (*Envelope, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, malformed(err)
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, malformed(err)
	}
	id, ok := s.Fields["identity"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, malformed(fmt.Errorf("identity is not a string"))
	}
	env := &Envelope{
		Identity:     id.StringValue,
		Payload:      s.Fields["payload"].AsInterface(),
		ChannelPaths: []payload.Path{},
	}
	if v, present := s.Fields["channelPaths"]; present {
		list, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return nil, malformed(fmt.Errorf("channelPaths is not a list"))
		}
		for _, pv := range list.ListValue.GetValues() {
			keys, ok := pv.GetKind().(*structpb.Value_ListValue)
			if !ok {
				return nil, malformed(fmt.Errorf("channel path is not a list"))
			}
			path := payload.Path{}
			for _, kv := range keys.ListValue.GetValues() {
				k, ok := kv.GetKind().(*structpb.Value_StringValue)
				if !ok {
					return nil, malformed(fmt.Errorf("channel path key is not a string"))
				}
				path = append(path, k.StringValue)
			}
			env.ChannelPaths = append(env.ChannelPaths, path)
		}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
