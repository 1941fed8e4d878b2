package persistence

import (
	"encoding/json"
	"reflect"

	"github.com/statemill/statemill/fsm"
)

// Serializer converts values to and from opaque bytes. Two independent
// instances are configured: one for entities, one for events. The
// runtime never inspects the bytes.
type Serializer interface {
	Serialize(v any) ([]byte, error)

	// Deserialize parses bytes into a value of the type registered under
	// typeName. The returned value is the concrete type, not a pointer.
	Deserialize(typeName string, data []byte) (any, error)
}

// jsonSerializer is the default Serializer: encoding/json over a
// registry of named types.
type jsonSerializer struct {
	reg *fsm.Registry
}

// JSON returns the default JSON serializer backed by reg.
func JSON(reg *fsm.Registry) Serializer {
	return &jsonSerializer{reg: reg}
}

func (s *jsonSerializer) Serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, serializationError("serialize", err)
	}
	return data, nil
}

func (s *jsonSerializer) Deserialize(typeName string, data []byte) (any, error) {
	target, err := s.reg.New(typeName)
	if err != nil {
		return nil, serializationError("deserialize", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, serializationError("deserialize "+typeName, err)
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}
