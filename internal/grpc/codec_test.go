package grpc

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &AuthRequest{Token: "abc.def.ghi"}

	raw, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out AuthRequest
	if err := c.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Token != in.Token {
		t.Fatalf("Token = %q, want %q", out.Token, in.Token)
	}
}

func TestJSONCodecRegisteredUnderProtoName(t *testing.T) {
	if (jsonCodec{}).Name() != "proto" {
		t.Fatalf("Name() = %q, want %q", (jsonCodec{}).Name(), "proto")
	}
}
