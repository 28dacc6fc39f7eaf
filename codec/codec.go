// Package codec serializes the values a cache layer persists to and reads
// from an opaque byte representation.
package codec

// Codec serializes/deserializes arbitrary typed values to/from opaque byte
// strings. A nil value must round-trip through a sentinel marker byte,
// never through zero-length or zero-valued bytes, so a legitimately stored
// zero value is never confused with "no value".
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte, out any) error
}

const (
	nullMarker    byte = 0x00
	presentMarker byte = 0x01
)
