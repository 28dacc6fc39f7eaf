package codec

import (
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec serializes values with json-iterator, the drop-in faster
// encoding/json replacement the rest of the pack already depends on. A
// single leading marker byte distinguishes a stored nil from real, possibly
// zero-length, JSON payloads -- encoding/json's null literal isn't enough on
// its own, since a T whose zero value is the empty string also marshals to
// a short, non-"null" payload.
type JSONCodec struct{}

// NewJSONCodec returns the default codec used when a layer is constructed
// without one explicitly.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (c *JSONCodec) Encode(value any) ([]byte, error) {
	if isNil(value) {
		return []byte{nullMarker}, nil
	}
	body, err := api.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, presentMarker)
	out = append(out, body...)
	return out, nil
}

func (c *JSONCodec) Decode(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == nullMarker {
		return nil
	}
	return api.Unmarshal(data[1:], out)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
