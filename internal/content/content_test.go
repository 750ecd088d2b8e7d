package content

import (
	"bytes"
	"errors"
	"testing"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

func TestURLEncodedDecode(t *testing.T) {
	r := Default()

	var pl proto.ParameterList
	if err := r.Decode(proto.MIME_URLENCODED, "", []byte("a=3&b=4&flag"), &pl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pl.Get("a") != "3" || pl.Get("b") != "4" || !pl.IsSet("flag") {
		t.Fatalf("decoded %q", pl.String())
	}

	var m map[string]string
	if err := r.Decode(proto.MIME_URLENCODED, "", []byte("x=1&x=2"), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["x"] != "1" {
		t.Fatalf("map should hold the first value, got %v", m)
	}
}

func TestURLEncodedEncode(t *testing.T) {
	out, err := URLEncoded{}.Encode(map[string]string{"b": "2", "a": "1 2"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "a=1+2&b=2" {
		t.Fatalf("got %q", out)
	}
}

func TestURLEncodedBadInput(t *testing.T) {
	var pl proto.ParameterList
	err := URLEncoded{}.Decode([]byte("a=%zz"), "", &pl)
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("expected a conversion error, got %v", err)
	}
	if !errors.Is(err, proto.ErrQueryEncoding) {
		t.Fatalf("cause should be preserved, got %v", err)
	}

	var s string
	if err := (URLEncoded{}).Decode([]byte("a=1"), "", &s); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestPlainCharset(t *testing.T) {
	var s string
	if err := (Plain{}).Decode([]byte{'c', 'a', 'f', 0xe9}, "ISO-8859-1", &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "café" {
		t.Fatalf("got %q", s)
	}

	out, err := Plain{}.Encode("café", "ISO-8859-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{'c', 'a', 'f', 0xe9}) {
		t.Fatalf("got %v", out)
	}

	if _, err := (Plain{}).Encode("x", "no-such-charset"); !errors.Is(err, ErrConversion) {
		t.Fatalf("expected a conversion error, got %v", err)
	}
}

type sample struct {
	Name  string `xml:"name" cbor:"name"`
	Count int    `xml:"count" cbor:"count"`
}

func TestXMLRoundTrip(t *testing.T) {
	c := XML{Type: proto.MIME_TEXT_XML}

	data, err := c.Encode(sample{Name: "n", Count: 2}, "UTF-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var back sample
	if err := c.Decode(data, "UTF-8", &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Name != "n" || back.Count != 2 {
		t.Fatalf("got %+v", back)
	}

	if err := c.Decode([]byte("<sample><count>x</count></sample>"), "", &back); !errors.Is(err, ErrConversion) {
		t.Fatalf("expected a conversion error, got %v", err)
	}
}

func TestCBORRoundTrip(t *testing.T) {
	r := Default()

	data, err := r.Encode(proto.MIME_CBOR, "", sample{Name: "n", Count: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var back sample
	if err := r.Decode("Application/CBOR", "", data, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Count != 7 {
		t.Fatalf("got %+v", back)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	_, err := Default().Encode("image/png", "", []byte{})
	if !errors.Is(err, ErrConversion) || !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected an unsupported media type conversion error, got %v", err)
	}
}
