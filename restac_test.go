package restac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/journal"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/resource"
	"dev.l1qu1d.net/wraith-labs/restac/internal/stream"
	"dev.l1qu1d.net/wraith-labs/restac/internal/transport"
)

func startPair(t *testing.T, serverOpts Options) (*Transceiver, *Transceiver) {
	t.Helper()

	serverOpts.EnableTCPServer = true
	serverOpts.TCPAddr = "127.0.0.1:0"

	server, err := New(serverOpts)
	if err != nil {
		t.Fatalf("New server: %v", err)
	}
	client, err := New(Options{EnableTCPClient: true})
	if err != nil {
		t.Fatalf("New client: %v", err)
	}

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	t.Cleanup(server.Stop)

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	t.Cleanup(client.Stop)

	return server, client
}

func TestTransceiverResourceOverTCP(t *testing.T) {
	server, client := startPair(t, Options{})

	r := resource.New(dispatch.ResourceFilter{Path: "/math"}, nil)
	r.Handle(proto.METHOD_POST, "/add", func(_ context.Context, req *resource.Request) (stream.Output, error) {
		var terms proto.ParameterList
		if err := req.Decode(&terms); err != nil {
			return nil, err
		}
		sum := 0
		for _, k := range terms.Keys() {
			n, _ := strconv.Atoi(terms.Get(k))
			sum += n
		}
		var result proto.ParameterList
		result.Set("result", strconv.Itoa(sum))
		return req.Encode(proto.MIME_URLENCODED, result)
	})
	server.Mount(r)

	p, err := client.Proxy(fmt.Sprintf("http://127.0.0.1:%d/math/add", server.TCPServer().Port()))
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}

	body := stream.NewPlainOutput(proto.MIME_URLENCODED, proto.DEFAULT_CHARSET)
	_ = body.WriteBuffered([]byte("a=1&b=2&c=3"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := p.Post(ctx, body)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	data, err := in.ReadBuffered()
	if err != nil || string(data) != "result=6" {
		t.Fatalf("unexpected reply %q, %v", data, err)
	}

	missing, err := client.Proxy(fmt.Sprintf("http://127.0.0.1:%d/nothing", server.TCPServer().Port()))
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	var rerr *resource.Error
	if _, err := missing.Get(ctx); !errors.As(err, &rerr) || rerr.Status.Code != 404 {
		t.Fatalf("expected a 404 for an unserved path, got %v", err)
	}
}

func TestTransceiverDeferredReplyIsJournaled(t *testing.T) {
	server, client := startPair(t, Options{JournalPath: ":memory:"})

	server.Register(dispatch.PlainFilter{Path: "/slow"}, &Handler{
		Name: "slow",
		Async: func(_ context.Context, req *ActionMessage) (*Handle, error) {
			h := dispatch.NewHandle()
			go func() {
				time.Sleep(20 * time.Millisecond)
				h.Fulfill(proto.Correlate(proto.NewStatusMessage(proto.STATUS_ACCEPTED, req.Protocol, nil, nil), req))
			}()
			return h, nil
		},
	})

	req := proto.NewActionMessage(proto.METHOD_GET, proto.PROTOCOL_HTTP, "127.0.0.1", server.TCPServer().Port(), proto.ParsePath("/slow"), proto.ParameterList{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Call(ctx, req)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	res.CloseBody()
	if res.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", res.StatusCode)
	}

	id := res.Headers.Get(proto.HEADER_UNIQUE_ID)
	if id == "" {
		t.Fatalf("deferred reply carries no %s", proto.HEADER_UNIQUE_ID)
	}

	// The outcome is recorded after the reply is written.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ex, err := server.Journal().Get(id)
		if err == nil && ex.Outcome == transport.OUTCOME_DELIVERED {
			if ex.StatusCode != 202 || ex.Target != "/slow" {
				t.Fatalf("unexpected journal entry %+v", ex)
			}
			break
		}
		if err == nil && ex.Outcome != journal.OUTCOME_PENDING {
			t.Fatalf("unexpected outcome %q", ex.Outcome)
		}
		if time.Now().After(deadline) {
			t.Fatalf("exchange %s never recorded as delivered: %v", id, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransceiverLifecycle(t *testing.T) {
	tr, err := New(Options{EnableTCPServer: true, TCPAddr: "127.0.0.1:0", JournalPath: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Start(context.Background()); err == nil {
		t.Fatalf("second Start must fail")
	}
	if !tr.IsRunning() || tr.Journal() == nil {
		t.Fatalf("expected a running transceiver with a journal")
	}

	infos := tr.Transports()
	if len(infos) != 1 || infos[0].Protocol != proto.PROTOCOL_HTTP || infos[0].Port == 0 {
		t.Fatalf("unexpected transports %+v", infos)
	}

	tr.Stop()
	if tr.IsRunning() || tr.Journal() != nil {
		t.Fatalf("expected a stopped transceiver without a journal")
	}
	tr.Stop()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	tr.Stop()
}

func TestTransceiverWithoutTransports(t *testing.T) {
	tr, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := tr.Call(context.Background(), proto.NewActionMessage(proto.METHOD_GET, proto.PROTOCOL_HTTP, "peer", 0, proto.ParsePath("/"), proto.ParameterList{}, nil, nil))
	if err != nil || res.StatusCode != 404 {
		t.Fatalf("expected the outbound dispatcher's 404, got %v, %v", res, err)
	}
	if err := tr.Deliver(proto.NewStatusMessage(proto.STATUS_OK, "", nil, nil)); err != ErrNoTCPServer {
		t.Fatalf("expected ErrNoTCPServer, got %v", err)
	}
}
