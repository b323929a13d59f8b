package wire

import (
	"bytes"
	"math"
	"testing"
)

func TestDecodeInteger(t *testing.T) {
	tok, n, err := Decode([]byte(":123\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindInteger || tok.Int != 123 {
		t.Fatalf("got %+v", tok)
	}
	if n != len(":123\r\n") {
		t.Fatalf("consumed %d, want %d", n, len(":123\r\n"))
	}
}

func TestDecodeEmptyIsIncomplete(t *testing.T) {
	_, _, err := Decode(nil)
	if !IsIncomplete(err) {
		t.Fatalf("expected incomplete, got %v", err)
	}
}

func TestDecodeIntegerOverflow(t *testing.T) {
	cases := []string{
		":19223372036854775807\r\n",
		":9223372036854775808\r\n",
	}
	for _, c := range cases {
		_, _, err := Decode([]byte(c))
		var de *DecodeError
		if !asDecodeError(err, &de) || de.Kind != Malformed {
			t.Fatalf("%q: expected malformed overflow, got %v", c, err)
		}
	}
}

func TestDecodeInt64MinSucceeds(t *testing.T) {
	tok, _, err := Decode([]byte(":-9223372036854775808\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Int != math.MinInt64 {
		t.Fatalf("got %d, want math.MinInt64", tok.Int)
	}
}

func TestDecodeSimpleString(t *testing.T) {
	tok, _, err := Decode([]byte("+hello\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindSimpleString || tok.Str != "hello" {
		t.Fatalf("got %+v", tok)
	}
}

func TestDecodeErrorToken(t *testing.T) {
	tok, _, err := Decode([]byte("-ERR unknown command\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindError || tok.Str != "ERR unknown command" {
		t.Fatalf("got %+v", tok)
	}
}

func TestDecodeBulkString(t *testing.T) {
	tok, n, err := Decode([]byte("$5\r\nhello\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindBulkString || string(tok.Bulk) != "hello" {
		t.Fatalf("got %+v", tok)
	}
	if n != len("$5\r\nhello\r\n") {
		t.Fatalf("consumed %d", n)
	}
}

func TestDecodeBulkStringEmpty(t *testing.T) {
	tok, _, err := Decode([]byte("$0\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindBulkString || len(tok.Bulk) != 0 || tok.Null {
		t.Fatalf("got %+v", tok)
	}
}

func TestDecodeBulkStringNull(t *testing.T) {
	tok, n, err := Decode([]byte("$-1\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != KindBulkString || !tok.Null {
		t.Fatalf("got %+v", tok)
	}
	if n != len("$-1\r\n") {
		t.Fatalf("consumed %d", n)
	}
}

func TestDecodeArrayAndElements(t *testing.T) {
	encoded := []byte("*3\r\n+hello\r\n+world\r\n:1\r\n")
	want := []Token{
		Array(3),
		SimpleString("hello"),
		SimpleString("world"),
		Integer(1),
	}
	off := 0
	for i, w := range want {
		tok, n, err := Decode(encoded[off:])
		if err != nil {
			t.Fatalf("element %d: unexpected error: %v", i, err)
		}
		if tok.Kind != w.Kind || tok.Str != w.Str || tok.Int != w.Int || tok.Length != w.Length {
			t.Fatalf("element %d: got %+v want %+v", i, tok, w)
		}
		off += n
	}
	if off != len(encoded) {
		t.Fatalf("consumed %d of %d", off, len(encoded))
	}
}

func TestIncompleteDecodeDoesNotConsume(t *testing.T) {
	full := []byte("$5\r\nhello\r\n")
	for i := 0; i < len(full)-1; i++ {
		_, _, err := Decode(full[:i])
		if !IsIncomplete(err) {
			t.Fatalf("prefix %d: expected incomplete, got %v", i, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	messages := []string{
		":123\r\n",
		"+hello\r\n",
		"-ERR unknown command\r\n",
		"$5\r\nhello\r\n",
		"$0\r\n\r\n",
		"$-1\r\n",
		"*3\r\n",
	}
	for _, msg := range messages {
		tok, n, err := Decode([]byte(msg))
		if err != nil {
			t.Fatalf("%q: decode failed: %v", msg, err)
		}
		if n != len(msg) {
			t.Fatalf("%q: consumed %d, want %d", msg, n, len(msg))
		}
		var buf bytes.Buffer
		if err := Encode(&buf, tok); err != nil {
			t.Fatalf("%q: encode failed: %v", msg, err)
		}
		if buf.String() != msg {
			t.Fatalf("round trip mismatch: got %q want %q", buf.String(), msg)
		}
	}
}

func TestDecodeLossyUTF8(t *testing.T) {
	encoded := append([]byte("+"), 0xff, 0xfe)
	encoded = append(encoded, '\r', '\n')
	tok, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Str == "" {
		t.Fatalf("expected a lossily-decoded replacement string, got empty")
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, _, err := Decode([]byte("?foo\r\n"))
	var de *DecodeError
	if !asDecodeError(err, &de) || de.Kind != NotImplemented {
		t.Fatalf("expected not-implemented, got %v", err)
	}
}

func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if !ok {
		return false
	}
	*target = de
	return true
}
