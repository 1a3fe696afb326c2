package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec converts frames to and from wire bytes.
type Codec interface {
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
	// Binary reports whether encoded frames go out as binary websocket
	// messages rather than text.
	Binary() bool
	Name() string
}

var (
	// Binary encodes frames as protobuf google.protobuf.Struct messages.
	Binary Codec = binaryCodec{}
	// JSON encodes frames as {"event": ..., "data": ...} objects.
	JSON Codec = jsonCodec{}
)

// CodecByName returns the codec registered under name ("proto" or "json").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "proto", "protobuf":
		return Binary, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type binaryCodec struct{}

func (binaryCodec) Binary() bool { return true }
func (binaryCodec) Name() string { return "proto" }

// Encode encodes the frame into bytes using protobuf
func (binaryCodec) Encode(f Frame) ([]byte, error) {
	pbMsg, err := toProto(f)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(pbMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes bytes into a frame using protobuf
func (binaryCodec) Decode(data []byte) (Frame, error) {
	pbMsg := &structpb.Struct{}
	if err := proto.Unmarshal(data, pbMsg); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return fromProto(pbMsg)
}

// toProto converts the Frame to a protobuf Struct.
// The payload travels as a structpb.Value so any JSON shape survives.
func toProto(f Frame) (*structpb.Struct, error) {
	data := structpb.NewNullValue()
	if len(f.Data) > 0 {
		data = &structpb.Value{}
		if err := protojson.Unmarshal(f.Data, data); err != nil {
			return nil, fmt.Errorf("failed to convert %s payload: %w", f.Event, err)
		}
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"event": structpb.NewStringValue(string(f.Event)),
			"data":  data,
		},
	}, nil
}

// fromProto converts a protobuf Struct back to a Frame.
func fromProto(pbMsg *structpb.Struct) (Frame, error) {
	ev, ok := pbMsg.GetFields()["event"]
	if !ok || ev.GetStringValue() == "" {
		return Frame{}, errors.New("frame has no event name")
	}
	f := Frame{Event: EventName(ev.GetStringValue())}

	data, ok := pbMsg.GetFields()["data"]
	if !ok {
		return f, nil
	}
	if _, isNull := data.GetKind().(*structpb.Value_NullValue); isNull {
		return f, nil
	}
	raw, err := protojson.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to convert %s payload: %w", f.Event, err)
	}
	f.Data = raw
	return f, nil
}

type jsonCodec struct{}

type jsonFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (jsonCodec) Binary() bool { return false }
func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(jsonFrame{Event: f.Event, Data: f.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Frame, error) {
	var jf jsonFrame
	if err := json.Unmarshal(data, &jf); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if jf.Event == "" {
		return Frame{}, errors.New("frame has no event name")
	}
	if string(jf.Data) == "null" {
		jf.Data = nil
	}
	return Frame{Event: jf.Event, Data: jf.Data}, nil
}
