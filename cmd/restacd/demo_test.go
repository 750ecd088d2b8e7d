package main

import (
	"context"
	"testing"

	"dev.l1qu1d.net/wraith-labs/restac/internal/content"
	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
)

func demoDispatcher() *dispatch.Dispatcher {
	d := dispatch.NewDispatcher(nil)
	mathResource(nil).Register(d)
	echoResource(nil).Register(d)
	return d
}

func send(t *testing.T, d *dispatch.Dispatcher, method, path, contentType string, body []byte) (*proto.StatusMessage, []byte) {
	t.Helper()

	var req *proto.ActionMessage
	if body == nil {
		req = proto.NewActionMessage(method, proto.PROTOCOL_HTTP, "", 0, proto.ParsePath(path), proto.ParameterList{}, nil, nil)
	} else {
		out := stream.NewPlainOutput(contentType, proto.DEFAULT_CHARSET)
		_ = out.WriteBuffered(body)
		req = out.ActionMessage(method, proto.PROTOCOL_HTTP, "", 0, proto.ParsePath(path), proto.ParameterList{}, nil)
	}

	res, err := d.DeliverSync(context.Background(), req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	in := stream.NewInput(&res.Message)
	if in == nil {
		return res, nil
	}
	data, err := in.ReadBuffered()
	if err != nil {
		t.Fatalf("%s %s: reading reply: %v", method, path, err)
	}
	return res, data
}

func TestMathAddForm(t *testing.T) {
	d := demoDispatcher()

	res, data := send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_URLENCODED, []byte("x=2&y=3"))
	if res.StatusCode != 200 || string(data) != "result=5" {
		t.Fatalf("unexpected reply %d %q", res.StatusCode, data)
	}

	res, data = send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_URLENCODED, []byte("a=1&b=2&b=4&verbose"))
	if res.StatusCode != 200 || string(data) != "result=7" {
		t.Fatalf("unexpected reply %d %q", res.StatusCode, data)
	}

	res, data = send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_URLENCODED, []byte("a=one"))
	if res.StatusCode != 400 || string(data) != "a=one is not a number" {
		t.Fatalf("unexpected reply %d %q", res.StatusCode, data)
	}

	res, _ = send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_TEXT_PLAIN, []byte("1+2"))
	if res.StatusCode != 415 {
		t.Fatalf("expected 415 for text, got %d", res.StatusCode)
	}

	res, _ = send(t, d, proto.METHOD_GET, "/math/add", "", nil)
	if res.StatusCode != 405 || res.Headers.Get(proto.HEADER_ALLOW) != proto.METHOD_POST {
		t.Fatalf("expected 405 allowing POST, got %d %q", res.StatusCode, res.Headers.Get(proto.HEADER_ALLOW))
	}
}

func TestMathAddCBOR(t *testing.T) {
	d := demoDispatcher()
	codec := content.CBOR{}

	body, err := codec.Encode(map[string]int{"x": 40, "y": 2}, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	res, data := send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_CBOR, body)
	if res.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var result map[string]int
	if err := codec.Decode(data, "", &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["result"] != 42 {
		t.Fatalf("unexpected result %v", result)
	}

	res, _ = send(t, d, proto.METHOD_POST, "/math/add", proto.MIME_CBOR, []byte{0xff, 0x00})
	if res.StatusCode != 415 {
		t.Fatalf("expected 415 for undecodable CBOR, got %d", res.StatusCode)
	}
}

func TestEchoStore(t *testing.T) {
	d := demoDispatcher()

	if res, _ := send(t, d, proto.METHOD_GET, "/echo", "", nil); res.StatusCode != 204 {
		t.Fatalf("expected 204 from an empty store, got %d", res.StatusCode)
	}

	if res, _ := send(t, d, proto.METHOD_PUT, "/echo", proto.MIME_TEXT_PLAIN, []byte("kept")); res.StatusCode != 200 {
		t.Fatalf("expected 200 from PUT, got %d", res.StatusCode)
	}

	res, data := send(t, d, proto.METHOD_GET, "/echo", "", nil)
	if res.StatusCode != 200 || string(data) != "kept" {
		t.Fatalf("unexpected stored document %d %q", res.StatusCode, data)
	}
	if ct, _ := stream.ParseContentType(res.Headers.Get(proto.HEADER_CONTENT_TYPE)); ct != proto.MIME_TEXT_PLAIN {
		t.Fatalf("stored media type lost, got %q", ct)
	}

	if res, _ := send(t, d, proto.METHOD_HEAD, "/echo", "", nil); res.StatusCode != 200 {
		t.Fatalf("expected 200 from HEAD, got %d", res.StatusCode)
	}
	if res, _ := send(t, d, proto.METHOD_DELETE, "/echo", "", nil); res.StatusCode != 200 {
		t.Fatalf("expected 200 from DELETE, got %d", res.StatusCode)
	}
	if res, _ := send(t, d, proto.METHOD_GET, "/echo", "", nil); res.StatusCode != 204 {
		t.Fatalf("expected 204 after DELETE, got %d", res.StatusCode)
	}
}

func TestEchoPostIsChunked(t *testing.T) {
	d := demoDispatcher()

	payload := make([]byte, proto.MAX_CHUNK_SIZE*2+10)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	res, data := send(t, d, proto.METHOD_POST, "/echo", proto.MIME_TEXT_PLAIN, payload)
	if res.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if !stream.IsChunked(&res.Message) {
		t.Fatalf("expected a chunked reply")
	}
	if string(data) != string(payload) {
		t.Fatalf("echo mismatch: got %d bytes", len(data))
	}
}
