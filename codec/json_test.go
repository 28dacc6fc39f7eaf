package codec

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	c := NewJSONCodec()

	data, err := c.Encode(42)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out int
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != 42 {
		t.Fatalf("got %d, want 42", out)
	}
}

func TestJSONCodecNilRoundTrip(t *testing.T) {
	c := NewJSONCodec()

	data, err := c.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != 1 || data[0] != nullMarker {
		t.Fatalf("expected a single null marker byte, got %v", data)
	}

	var out *string
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil, got %v", *out)
	}
}

func TestJSONCodecZeroValueIsNotNil(t *testing.T) {
	c := NewJSONCodec()

	data, err := c.Encode("")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != presentMarker {
		t.Fatalf("expected a present marker for an empty string, got marker %v", data[0])
	}

	var out string
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != "" {
		t.Fatalf("got %q, want empty string", out)
	}
}

func TestJSONCodecNilSlice(t *testing.T) {
	c := NewJSONCodec()

	var s []int
	data, err := c.Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != nullMarker {
		t.Fatalf("expected a nil slice to encode as the null marker, got marker %v", data[0])
	}
}
