package codec

import "github.com/klauspost/compress/zstd"

const (
	rawMarker        byte = 'r'
	compressedMarker byte = 'z'
	defaultThreshold      = 256
)

// CompressingCodec decorates another Codec, zstd-compressing its output --
// worthwhile for the large hash payloads a remote layer persists. Payloads
// under the threshold (including the single null marker byte) pass through
// uncompressed, since zstd's frame overhead would make tiny entries bigger,
// not smaller. This mirrors the teacher's instrumentedCache decorator
// shape: wrap the same interface, add one cross-cutting concern, change
// nothing about the call site.
type CompressingCodec struct {
	inner     Codec
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressingCodec wraps inner with zstd compression above the default
// size threshold.
func NewCompressingCodec(inner Codec) (*CompressingCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &CompressingCodec{inner: inner, threshold: defaultThreshold, encoder: enc, decoder: dec}, nil
}

func (c *CompressingCodec) Encode(value any) ([]byte, error) {
	body, err := c.inner.Encode(value)
	if err != nil {
		return nil, err
	}
	if len(body) < c.threshold {
		return append([]byte{rawMarker}, body...), nil
	}
	compressed := c.encoder.EncodeAll(body, nil)
	return append([]byte{compressedMarker}, compressed...), nil
}

func (c *CompressingCodec) Decode(data []byte, out any) error {
	if len(data) == 0 {
		return c.inner.Decode(data, out)
	}
	marker, body := data[0], data[1:]
	if marker == compressedMarker {
		decoded, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return err
		}
		return c.inner.Decode(decoded, out)
	}
	return c.inner.Decode(body, out)
}

// Close releases the zstd encoder/decoder's background resources.
func (c *CompressingCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
