package codec

// EncodeValue encodes a typed value through c. It exists so call sites that
// hold a generic T never have to box it into an any themselves.
func EncodeValue[T any](c Codec, value T) ([]byte, error) {
	return c.Encode(value)
}

// DecodeValue decodes data through c into a fresh T.
func DecodeValue[T any](c Codec, data []byte) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	err := c.Decode(data, &out)
	return out, err
}

// EncodeStruct/DecodeInto are aliases kept for call-site clarity where the
// payload is a fixed internal record (e.g. a layer's expiry metadata)
// rather than a user-supplied T.
func EncodeStruct(c Codec, value any) ([]byte, error) { return c.Encode(value) }

func DecodeInto(c Codec, data []byte, out any) error { return c.Decode(data, out) }
