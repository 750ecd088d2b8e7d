package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

func request(method, protocol, host string, port int, path, query string) *proto.ActionMessage {
	q, _ := proto.ParseQuery(query)
	return proto.NewActionMessage(method, protocol, host, port, proto.ParsePath(path), q, nil, nil)
}

func syncHandler(name string, code proto.Status) *Handler {
	return &Handler{
		Name: name,
		Sync: func(_ context.Context, req *proto.ActionMessage) (*proto.StatusMessage, error) {
			m := proto.NewStatusMessage(code, req.Protocol, nil, nil)
			m.Headers.Set("X-Handler", name)
			return m, nil
		},
	}
}

func TestFilterWildcards(t *testing.T) {
	if !(PlainFilter{}).Matches("HTTP", "h", 1, "/x", "q=1") {
		t.Fatalf("the zero filter must match everything")
	}

	f := PlainFilter{Protocol: "http", Path: "/Math/"}
	if !f.Matches("HTTP", "any", 80, "/math", "") {
		t.Fatalf("protocol and path comparison must ignore case")
	}
	if f.Matches("HTTP", "any", 80, "/math/add", "") {
		t.Fatalf("path comparison is exact, not prefix")
	}
	if f.Matches("HTTPU", "any", 80, "/math", "") {
		t.Fatalf("protocol mismatch must not match")
	}

	if (PlainFilter{Port: 81}).Matches("HTTP", "", 80, "/", "") {
		t.Fatalf("port mismatch must not match")
	}
	if (PlainFilter{Host: "a"}).Matches("HTTP", "", 80, "/", "") {
		t.Fatalf("a set host does not match an empty request host")
	}
}

func TestFilterEquality(t *testing.T) {
	a := ResourceFilter{Protocol: "HTTP", Path: "/math"}
	if !a.Equal(ResourceFilter{Protocol: "http", Path: "/MATH/"}) {
		t.Fatalf("expected equal resource filters")
	}
	if a.Equal(PlainFilter{Protocol: "HTTP", Path: "/math"}) {
		t.Fatalf("filters of different kinds are never equal")
	}
	if a.Root().String() != "/math" {
		t.Fatalf("bad root %q", a.Root())
	}
}

func TestLongestPrefixRouting(t *testing.T) {
	d := NewDispatcher(nil)

	root := syncHandler("root", proto.STATUS_OK)
	a := syncHandler("a", proto.STATUS_OK)
	ab := syncHandler("ab", proto.STATUS_OK)

	// Registration order deliberately puts the shallow paths first.
	d.Register(PlainFilter{Path: "/"}, root)
	d.Register(PlainFilter{Path: "/a"}, a)
	d.Register(PlainFilter{Path: "/a/b"}, ab)

	cases := map[string]string{
		"/a/b/c": "ab",
		"/a/b":   "ab",
		"/a/x":   "a",
		"/z":     "root",
		"/":      "root",
	}

	for path, want := range cases {
		res, err := d.DeliverSync(context.Background(), request("GET", "HTTP", "", 0, path, ""))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if got := res.Headers.Get("X-Handler"); got != want {
			t.Fatalf("%s routed to %q, want %q", path, got, want)
		}
	}
}

func TestRegistrationOrderBreaksTies(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(PlainFilter{Path: "/a"}, syncHandler("first", proto.STATUS_OK))
	d.Register(PlainFilter{Path: "/a"}, syncHandler("second", proto.STATUS_OK))

	res, _ := d.DeliverSync(context.Background(), request("GET", "", "", 0, "/a", ""))
	if res.Headers.Get("X-Handler") != "first" {
		t.Fatalf("earliest registration should win")
	}
}

func TestSyncNoHandler(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(PlainFilter{Path: "/other"}, syncHandler("x", proto.STATUS_OK))

	res, err := d.DeliverSync(context.Background(), request("GET", "HTTP", "", 0, "/a/b", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != 404 || res.Reason != "Not Found" {
		t.Fatalf("expected a synthesised 404, got %d %q", res.StatusCode, res.Reason)
	}
}

func TestResolveTerminates(t *testing.T) {
	var r Registry
	_, attempts, ok := r.resolve(request("GET", "", "", 0, "/a/b/c", ""), CAPABILITY_SYNC)
	if ok || attempts != 4 {
		t.Fatalf("expected depth+1 = 4 attempts and no match, got %d, %v", attempts, ok)
	}
}

func TestCapabilityFiltering(t *testing.T) {
	d := NewDispatcher(nil)

	var plainCalls int
	plain := &Handler{Name: "plain", Plain: func(context.Context, *proto.ActionMessage) error {
		plainCalls++
		return nil
	}}
	d.Register(PlainFilter{}, plain)

	res, _ := d.DeliverSync(context.Background(), request("GET", "", "", 0, "/", ""))
	if res.StatusCode != 404 {
		t.Fatalf("a plain-only handler must not serve sync delivery")
	}

	h, err := d.DeliverAsync(context.Background(), request("GET", "", "", 0, "/", ""))
	if h != nil || err != nil {
		t.Fatalf("async delivery without a handler yields nil, got %v %v", h, err)
	}

	if err := d.DeliverPlain(context.Background(), request("GET", "", "", 0, "/x", "")); err != nil || plainCalls != 1 {
		t.Fatalf("plain delivery: %v, calls %d", err, plainCalls)
	}
}

func TestQueryFilter(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(PlainFilter{Query: "mode=fast"}, syncHandler("fast", proto.STATUS_OK))

	res, _ := d.DeliverSync(context.Background(), request("GET", "", "", 0, "/a/b", "mode=fast"))
	if res.Headers.Get("X-Handler") != "fast" {
		t.Fatalf("query filter did not match")
	}
	res, _ = d.DeliverSync(context.Background(), request("GET", "", "", 0, "/a/b", "mode=slow"))
	if res.StatusCode != 404 {
		t.Fatalf("query filter matched the wrong query")
	}
}

type recordingManaged struct {
	Registry
}

func (r *recordingManaged) Register(f Filter, h *Handler)   { r.Add(f, h) }
func (r *recordingManaged) Unregister(f Filter, h *Handler) { r.Remove(f, h) }
func (r *recordingManaged) Protocol() string                { return "HTTP" }
func (r *recordingManaged) Addr() string                    { return "127.0.0.1" }
func (r *recordingManaged) Port() int                       { return 2048 }

func TestMirroredRegistration(t *testing.T) {
	d := NewDispatcher(nil)
	h := syncHandler("h", proto.STATUS_OK)

	early := &recordingManaged{}
	d.Register(PlainFilter{Path: "/early"}, h)
	d.Attach(early)
	if early.Len() != 1 {
		t.Fatalf("existing registrations should be replayed on attach")
	}

	late := &recordingManaged{}
	d.Attach(late)
	d.Register(PlainFilter{Path: "/late"}, h)
	if early.Len() != 2 || late.Len() != 2 {
		t.Fatalf("registration not mirrored: %d %d", early.Len(), late.Len())
	}

	// Duplicates and nils leave everything untouched.
	d.Register(PlainFilter{Path: "/LATE"}, h)
	d.Register(nil, h)
	d.Register(PlainFilter{}, nil)
	if len(d.Registrations()) != 2 || late.Len() != 2 {
		t.Fatalf("duplicate or nil registration changed state")
	}

	d.Unregister(PlainFilter{Path: "/early"}, h)
	if early.Len() != 1 || late.Len() != 1 {
		t.Fatalf("unregistration not mirrored")
	}

	// Unregistering something absent is a no-op.
	d.Unregister(PlainFilter{Path: "/nope"}, h)
	if len(d.Registrations()) != 1 {
		t.Fatalf("absent unregister changed state")
	}

	infos := d.Managed()
	if len(infos) != 2 || infos[0].Port != 2048 {
		t.Fatalf("unexpected managed info %v", infos)
	}

	d.Detach(late)
	if late.Len() != 0 || len(d.Managed()) != 1 {
		t.Fatalf("detach should withdraw mirrored registrations")
	}
}

func TestHandleCallbackAfterFulfill(t *testing.T) {
	h := NewHandle()
	msg := proto.NewStatusMessage(proto.STATUS_OK, "", nil, nil)

	if !h.Fulfill(msg) {
		t.Fatalf("first fulfil should succeed")
	}
	if h.Fulfill(msg) || h.Fail(errors.New("late")) {
		t.Fatalf("a handle completes only once")
	}

	var got *proto.StatusMessage
	h.OnStatus(func(m *proto.StatusMessage, err error) { got = m })
	if got != msg {
		t.Fatalf("a buffered response must be delivered on attach")
	}

	// A second callback never sees the response again.
	calls := 0
	h.OnStatus(func(*proto.StatusMessage, error) { calls++ })
	if calls != 0 {
		t.Fatalf("response delivered twice")
	}
}

func TestHandleConcurrentCompletion(t *testing.T) {
	h := NewHandle()

	var lock sync.Mutex
	calls := 0
	h.OnStatus(func(*proto.StatusMessage, error) {
		lock.Lock()
		calls++
		lock.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Fulfill(proto.NewStatusMessage(proto.STATUS_OK, "", nil, nil))
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("callback ran %d times", calls)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if m, err := h.Wait(ctx); err != nil || m.StatusCode != 200 {
		t.Fatalf("Wait: %v %v", m, err)
	}
}

func TestHandleWaitTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := NewHandle().Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}

func TestQueryFilterEscaping(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(PlainFilter{Query: "q=a b&flag"}, syncHandler("spaced", proto.STATUS_OK))

	res, _ := d.DeliverSync(context.Background(), request("GET", "", "", 0, "/search", "q=a+b&flag"))
	if res.Headers.Get("X-Handler") != "spaced" {
		t.Fatalf("filter query was not matched after escaping")
	}
	res, _ = d.DeliverSync(context.Background(), request("GET", "", "", 0, "/search", "q=a%20b&flag"))
	if res.Headers.Get("X-Handler") != "spaced" {
		t.Fatalf("percent-escaped query was not matched")
	}

	if !(PlainFilter{Query: "q=a b"}).Equal(PlainFilter{Query: "q=a+b"}) {
		t.Fatalf("filters differing only in escaping should be equal")
	}
}

func TestZeroHandle(t *testing.T) {
	var h Handle

	got := make(chan int, 1)
	h.OnStatus(func(msg *proto.StatusMessage, err error) { got <- msg.StatusCode })

	if !h.Fulfill(proto.NewStatusMessage(proto.STATUS_OK, "", nil, nil)) {
		t.Fatalf("first Fulfill should complete the handle")
	}
	if h.Fail(errors.New("late")) {
		t.Fatalf("second completion should be refused")
	}
	if code := <-got; code != 200 {
		t.Fatalf("callback got %d", code)
	}

	select {
	case <-h.Done():
	default:
		t.Fatalf("Done not closed after completion")
	}

	other := new(Handle)
	other.Fail(errors.New("broken"))
	if _, err := other.Wait(context.Background()); err == nil || err.Error() != "broken" {
		t.Fatalf("Wait on a completed zero handle returned %v", err)
	}
}
