package ref

import "testing"

func TestCompleterEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Completer{
		{Index: 0, Gen: 0},
		{Index: 1, Gen: 1},
		{Index: 0xffffffff, Gen: 0},
		{Index: 0, Gen: 0xffffffff},
		{Index: 42, Gen: 7},
	}

	for _, c := range cases {
		token := c.Encode()
		got := DecodeCompleter(token)
		if got != c {
			t.Errorf("round trip of %+v produced %+v", c, got)
		}
	}
}

func TestDecodeCompleterFieldLayout(t *testing.T) {
	// High 32 bits must be the generation, low 32 bits the index.
	token := uint64(5)<<32 | uint64(9)
	got := DecodeCompleter(token)
	if got.Gen != 5 || got.Index != 9 {
		t.Errorf("DecodeCompleter(%#x) = %+v, want Gen=5 Index=9", token, got)
	}
}
