// Package results persists and transports benchmark measurements.
package results

import (
	"NWBBenchmarks/internal/core/model"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a measurement into a protobuf Struct carrying the same
// fields as its JSON form.
func ToStruct(m *model.Measurement) (*structpb.Struct, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// FromStruct is the inverse of ToStruct.
func FromStruct(s *structpb.Struct) (*model.Measurement, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, err
	}
	var m model.Measurement
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid measurement: %w", err)
	}
	return &m, nil
}

// Encode serializes a measurement to protobuf wire format.
func Encode(m *model.Measurement) ([]byte, error) {
	s, err := ToStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Decode parses the output of Encode.
func Decode(data []byte) (*model.Measurement, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return FromStruct(&s)
}
