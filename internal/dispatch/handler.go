package dispatch

import (
	"context"
	"strings"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// The delivery styles a handler supports.
type Capability uint8

const (
	CAPABILITY_SYNC Capability = 1 << iota
	CAPABILITY_ASYNC
	CAPABILITY_PLAIN
)

func (c Capability) String() string {
	var names []string
	if c&CAPABILITY_SYNC != 0 {
		names = append(names, "sync")
	}
	if c&CAPABILITY_ASYNC != 0 {
		names = append(names, "async")
	}
	if c&CAPABILITY_PLAIN != 0 {
		names = append(names, "plain")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Produce a response before returning.
type SyncFunc func(ctx context.Context, req *proto.ActionMessage) (*proto.StatusMessage, error)

// Return a handle which will be fulfilled with the response later.
type AsyncFunc func(ctx context.Context, req *proto.ActionMessage) (*Handle, error)

// Consume a request without producing any response.
type PlainFunc func(ctx context.Context, req *proto.ActionMessage) error

// A message handler. Each non-nil function declares one capability; a
// handler may offer any combination of them.
type Handler struct {
	// A label for logs and introspection.
	Name string

	Sync  SyncFunc
	Async AsyncFunc
	Plain PlainFunc
}

func (h *Handler) Capabilities() Capability {
	var c Capability
	if h == nil {
		return c
	}
	if h.Sync != nil {
		c |= CAPABILITY_SYNC
	}
	if h.Async != nil {
		c |= CAPABILITY_ASYNC
	}
	if h.Plain != nil {
		c |= CAPABILITY_PLAIN
	}
	return c
}

// Whether the handler offers at least one capability in want.
func (h *Handler) Offers(want Capability) bool {
	return h.Capabilities()&want != 0
}

func (h *Handler) String() string {
	name := h.Name
	if name == "" {
		name = "anonymous"
	}
	return name + "[" + h.Capabilities().String() + "]"
}

// Receives the outcome of an asynchronous request: a response, or an error
// if none could be obtained.
type StatusCallback func(msg *proto.StatusMessage, err error)

// A single-slot promise for the response to an asynchronous request. The
// outcome is delivered to the attached callback exactly once, whichever of
// OnStatus and Fulfill/Fail happens first. The zero value is ready to use.
type Handle struct {
	lock      sync.Mutex
	callback  StatusCallback
	completed bool
	delivered bool
	msg       *proto.StatusMessage
	err       error
	done      chan struct{}
}

func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Attach the callback, replacing any callback not yet invoked. If the handle
// has already been completed the callback runs immediately.
func (h *Handle) OnStatus(cb StatusCallback) {
	h.lock.Lock()
	h.callback = cb
	if cb == nil || !h.completed || h.delivered {
		h.lock.Unlock()
		return
	}
	h.delivered = true
	msg, err := h.msg, h.err
	h.lock.Unlock()

	cb(msg, err)
}

// Complete the handle with a response. Reports false if it was already complete.
func (h *Handle) Fulfill(msg *proto.StatusMessage) bool {
	return h.complete(msg, nil)
}

// Complete the handle with an error. Reports false if it was already complete.
func (h *Handle) Fail(err error) bool {
	return h.complete(nil, err)
}

func (h *Handle) complete(msg *proto.StatusMessage, err error) bool {
	h.lock.Lock()
	if h.completed {
		h.lock.Unlock()
		return false
	}
	h.completed = true
	h.msg, h.err = msg, err
	close(h.doneLocked())

	cb := h.callback
	if cb != nil {
		h.delivered = true
	}
	h.lock.Unlock()

	if cb != nil {
		cb(msg, err)
	}
	return true
}

// Closed once the handle is complete.
func (h *Handle) Done() <-chan struct{} {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.doneLocked()
}

func (h *Handle) doneLocked() chan struct{} {
	if h.done == nil {
		h.done = make(chan struct{})
	}
	return h.done
}

// Block until the handle completes or ctx expires.
func (h *Handle) Wait(ctx context.Context) (*proto.StatusMessage, error) {
	select {
	case <-h.Done():
		h.lock.Lock()
		defer h.lock.Unlock()
		return h.msg, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
