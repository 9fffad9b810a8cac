package checkpoints

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// marshalProto encodes a checkpoint as a protobuf Struct message. The struct
// mirrors the JSON layout, so both formats carry the same fields.
func marshalProto(checkpoint *Checkpoint) ([]byte, error) {
	msg, err := toStruct(checkpoint)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal protobuf message")
	}
	return data, nil
}

// unmarshalProto decodes a checkpoint written by marshalProto.
func unmarshalProto(data []byte, checkpoint *Checkpoint) error {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "failed to unmarshal protobuf message")
	}
	return fromStruct(msg, checkpoint)
}

func toStruct(checkpoint *Checkpoint) (*structpb.Struct, error) {
	jsonData, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode checkpoint fields")
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(jsonData, msg); err != nil {
		return nil, errors.Wrap(err, "failed to build protobuf struct")
	}
	return msg, nil
}

func fromStruct(msg *structpb.Struct, checkpoint *Checkpoint) error {
	jsonData, err := protojson.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to read protobuf struct")
	}
	if err := json.Unmarshal(jsonData, checkpoint); err != nil {
		return errors.Wrap(err, "failed to decode checkpoint fields")
	}
	return nil
}
