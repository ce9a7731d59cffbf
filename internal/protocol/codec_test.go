package protocol

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		New(InputStart),
		New(InputEval, "1+1"),
		New(OutputEvalResult, "2"),
		New(OutputOther, "hello", "world"),
		{Type: OutputReady, Args: [][]byte{}},
	}

	for _, msg := range cases {
		wire := Encode(nil, msg)
		got, consumed, result := Decode(wire)
		if result != Decoded {
			t.Fatalf("Decode(%v) result = %v, want Decoded", msg, result)
		}
		if consumed != len(wire) {
			t.Fatalf("Decode consumed %d bytes, want %d", consumed, len(wire))
		}
		if got.Type != msg.Type {
			t.Fatalf("Decode type = %v, want %v", got.Type, msg.Type)
		}
		if len(got.Args) != len(msg.Args) {
			t.Fatalf("Decode args = %v, want %v", got.Args, msg.Args)
		}
		for i := range got.Args {
			if !bytes.Equal(got.Args[i], msg.Args[i]) {
				t.Fatalf("Decode arg[%d] = %q, want %q", i, got.Args[i], msg.Args[i])
			}
		}
	}
}

func TestPrefixIncompleteness(t *testing.T) {
	wire := Encode(nil, New(InputEval, "abc", "de"))
	for k := 0; k < len(wire); k++ {
		_, _, result := Decode(wire[:k])
		if result != Incomplete {
			t.Fatalf("Decode(wire[:%d]) result = %v, want Incomplete", k, result)
		}
	}
	_, _, result := Decode(wire)
	if result != Decoded {
		t.Fatalf("Decode(full wire) result = %v, want Decoded", result)
	}
}

func TestZeroArgs(t *testing.T) {
	wire := Encode(nil, New(InputPoll))
	if len(wire) != 2 {
		t.Fatalf("encoded zero-arg message length = %d, want 2", len(wire))
	}
	_, consumed, result := Decode(wire)
	if result != Decoded || consumed != 2 {
		t.Fatalf("Decode(zero-arg) = (%d, %v), want (2, Decoded)", consumed, result)
	}
}

func TestZeroLengthArg(t *testing.T) {
	wire := Encode(nil, New(InputEval, ""))
	if len(wire) != 2+4 {
		t.Fatalf("encoded zero-length-arg message length = %d, want %d", len(wire), 2+4)
	}
	msg, _, result := Decode(wire)
	if result != Decoded {
		t.Fatalf("Decode result = %v, want Decoded", result)
	}
	if len(msg.Args) != 1 || len(msg.Args[0]) != 0 {
		t.Fatalf("Decode args = %v, want one empty arg", msg.Args)
	}
}

func TestMalformedArgLength(t *testing.T) {
	// type=InputEval, nargs=1, arg_len absurdly large
	wire := []byte{byte(InputEval), 1, 0xff, 0xff, 0xff, 0xff}
	_, _, result := Decode(wire)
	if result != Malformed {
		t.Fatalf("Decode(huge arg_len) result = %v, want Malformed", result)
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	wire := Encode(nil, New(OutputOther, "payload"))
	cp := make([]byte, len(wire))
	copy(cp, wire)

	_, _, _ = Decode(wire)

	if !bytes.Equal(wire, cp) {
		t.Fatalf("Decode mutated its input buffer")
	}
}

func TestFIFOMultipleMessages(t *testing.T) {
	var buf []byte
	buf = Encode(buf, New(InputEval, "a"))
	buf = Encode(buf, New(InputEval, "b"))
	buf = Encode(buf, New(InputEval, "c"))

	var got []string
	for len(buf) > 0 {
		msg, consumed, result := Decode(buf)
		if result != Decoded {
			t.Fatalf("Decode result = %v, want Decoded", result)
		}
		got = append(got, string(msg.Args[0]))
		buf = buf[consumed:]
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
