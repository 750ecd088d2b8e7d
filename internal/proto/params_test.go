package proto

import (
	"errors"
	"testing"
)

func TestParseQuery(t *testing.T) {
	pl, err := ParseQuery("a=1&b&a=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if keys := pl.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %v", keys)
	}

	a := pl.All("a")
	if len(a) != 2 || a[0].Value != "1" || a[1].Value != "2" {
		t.Fatalf("unexpected values for a: %v", a)
	}

	b := pl.All("b")
	if len(b) != 1 || !b[0].Null {
		t.Fatalf("expected a single null value for b, got %v", b)
	}
	if !pl.IsSet("b") {
		t.Fatalf("valueless key must still be set")
	}
}

func TestParseQueryFirstValueKept(t *testing.T) {
	pl, _ := ParseQuery("x=1")
	if v, ok := pl.First("x"); !ok || v.Value != "1" {
		t.Fatalf("first value lost: %v %v", v, ok)
	}
}

func TestParseQuerySplitsAtFirstEquals(t *testing.T) {
	pl, _ := ParseQuery("k=v=w")
	if got := pl.Get("k"); got != "v=w" {
		t.Fatalf("got %q", got)
	}
}

func TestParseQueryDecodeFailure(t *testing.T) {
	pl, err := ParseQuery("a=1&b=%zz")
	if !errors.Is(err, ErrQueryEncoding) {
		t.Fatalf("expected ErrQueryEncoding, got %v", err)
	}
	if pl.Len() != 0 {
		t.Fatalf("list should be empty after a decode failure, has %v", pl.Keys())
	}
}

func TestParameterListRoundTrip(t *testing.T) {
	pl := ParameterList{}
	pl.Set("name", "a b&c")
	pl.SetNull("flag")
	pl.Set("name", "2")

	back, err := ParseQuery(pl.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.String() != pl.String() {
		t.Fatalf("round trip changed the list: %q vs %q", back.String(), pl.String())
	}
	if back.Get("name") != "a b&c" {
		t.Fatalf("value not decoded: %q", back.Get("name"))
	}
}

func TestParameterListRemove(t *testing.T) {
	pl, _ := ParseQuery("a=1&a=2&b=3")

	if !pl.Remove("a", "1") {
		t.Fatalf("Remove reported nothing removed")
	}
	if pl.Remove("a", "missing") {
		t.Fatalf("Remove of an absent value reported success")
	}
	if got := pl.String(); got != "a=2&b=3" {
		t.Fatalf("got %q", got)
	}

	pl.Remove("b", "3")
	if pl.IsSet("b") || pl.Len() != 1 {
		t.Fatalf("emptied name should be dropped, keys %v", pl.Keys())
	}
}

func TestParameterListZeroValue(t *testing.T) {
	var pl ParameterList
	if pl.String() != "" || pl.Len() != 0 || pl.All("x") != nil {
		t.Fatalf("zero value should be an empty list")
	}
	pl.Set("x", "y")
	if pl.Get("x") != "y" {
		t.Fatalf("zero value not usable")
	}
}
