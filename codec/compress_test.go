package codec

import "testing"

func TestCompressingCodecSmallPayloadPassesThrough(t *testing.T) {
	cc, err := NewCompressingCodec(NewJSONCodec())
	if err != nil {
		t.Fatalf("NewCompressingCodec: %v", err)
	}
	defer cc.Close()

	data, err := cc.Encode("tiny")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != rawMarker {
		t.Fatalf("expected raw marker for a small payload, got %v", data[0])
	}

	var out string
	if err := cc.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != "tiny" {
		t.Fatalf("got %q, want %q", out, "tiny")
	}
}

func TestCompressingCodecLargePayloadCompresses(t *testing.T) {
	cc, err := NewCompressingCodec(NewJSONCodec())
	if err != nil {
		t.Fatalf("NewCompressingCodec: %v", err)
	}
	defer cc.Close()

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 17)
	}

	data, err := cc.Encode(big)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != compressedMarker {
		t.Fatalf("expected compressed marker for a large payload, got %v", data[0])
	}

	var out []byte
	if err := cc.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(big) {
		t.Fatalf("got %d bytes back, want %d", len(out), len(big))
	}
	for i := range out {
		if out[i] != big[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, out[i], big[i])
		}
	}
}
