package warp

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/linkwire/swim/value"
)

// Text form of an envelope:
//     {"@event": {"node": "/house", "lane": "light"}, "body": "on"}
//     {"@link": {"node": "/house", "lane": "light", "prio": 0.5}}
//     {"@auth": null, "body": {"jwt": "..."}}

const (
	nodeField = "node"
	laneField = "lane"
	prioField = "prio"
	bodyField = "body"
)

var ErrMalformedEnvelope = errors.New("Malformed envelope.")
var ErrUnknownKind = errors.New("Unknown envelope kind.")

func Encode(envelope *Envelope) ([]byte, error) {
	tag := envelope.Kind.Tag()
	if tag == "" {
		return nil, fmt.Errorf("%w %d", ErrUnknownKind, int(envelope.Kind))
	}

	var header *structpb.Value
	if envelope.Kind.IsHostScoped() {
		header = structpb.NewNullValue()
	} else {
		headerFields := map[string]*structpb.Value{
			nodeField: structpb.NewStringValue(envelope.Node),
		}
		if !envelope.Kind.IsNodeScoped() {
			headerFields[laneField] = structpb.NewStringValue(envelope.Lane)
		}
		if envelope.Prio != 0 {
			headerFields[prioField] = structpb.NewNumberValue(envelope.Prio)
		}
		header = structpb.NewStructValue(&structpb.Struct{Fields: headerFields})
	}

	fields := map[string]*structpb.Value{
		tag: header,
	}
	if envelope.Body != nil {
		fields[bodyField] = envelope.Body
	}
	return protojson.Marshal(&structpb.Struct{Fields: fields})
}

func EncodeString(envelope *Envelope) (string, error) {
	text, err := Encode(envelope)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func RequireEncode(envelope *Envelope) []byte {
	text, err := Encode(envelope)
	if err != nil {
		panic(err)
	}
	return text
}

func Decode(text []byte) (*Envelope, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(text, s); err != nil {
		return nil, fmt.Errorf("%w %s", ErrMalformedEnvelope, err)
	}
	fields := s.GetFields()

	var tag string
	for key := range fields {
		if strings.HasPrefix(key, "@") {
			if tag != "" {
				return nil, fmt.Errorf("%w multiple tags %s, %s", ErrMalformedEnvelope, tag, key)
			}
			tag = key
		} else if key != bodyField {
			return nil, fmt.Errorf("%w unexpected field %s", ErrMalformedEnvelope, key)
		}
	}
	kind, ok := tagKinds[tag]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownKind, tag)
	}

	envelope := &Envelope{
		Kind: kind,
		Body: fields[bodyField],
	}
	if kind.IsHostScoped() {
		return envelope, nil
	}

	header := fields[tag].GetStructValue()
	if header == nil {
		return nil, fmt.Errorf("%w %s requires a header", ErrMalformedEnvelope, tag)
	}
	headerFields := header.GetFields()

	node, ok := value.TextOf(headerFields[nodeField])
	if !ok {
		return nil, fmt.Errorf("%w %s requires a node", ErrMalformedEnvelope, tag)
	}
	envelope.Node = node

	if !kind.IsNodeScoped() {
		lane, ok := value.TextOf(headerFields[laneField])
		if !ok {
			return nil, fmt.Errorf("%w %s requires a lane", ErrMalformedEnvelope, tag)
		}
		envelope.Lane = lane
	}

	if prio, ok := headerFields[prioField]; ok {
		number, ok := prio.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w %s prio must be a number", ErrMalformedEnvelope, tag)
		}
		envelope.Prio = number.NumberValue
	}

	return envelope, nil
}

func DecodeString(text string) (*Envelope, error) {
	return Decode([]byte(text))
}
