// Package transport implements the managed dispatchers which move messages
// over the network: a TCP server and client for HTTP, and UDP unicast (HTTPU)
// and multicast (HTTPMU) endpoints.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/misc"
)

var (
	ErrAlreadyRunning   = errors.New("transport is already running")
	ErrNotRunning       = errors.New("transport is not running")
	ErrNoHost           = errors.New("request has no target host")
	ErrDatagramTooLarge = errors.New("message does not fit in a single datagram")
	ErrNotMulticast     = errors.New("not a multicast group address")
)

// Outcomes of an asynchronous exchange, as reported to a Recorder.
const (
	OUTCOME_DELIVERED = "delivered"
	OUTCOME_EXPIRED   = "expired"
	OUTCOME_FAILED    = "failed"
	OUTCOME_ABORTED   = "aborted"
)

// Receives the lifecycle of asynchronous exchanges held open by a TCP server.
type Recorder interface {
	Begin(id, remote, method, path string) error
	Finish(id, outcome string, status int) error
}

// A managed dispatcher with a network lifecycle.
type Transport interface {
	dispatch.Managed

	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	Registrations() []dispatch.Registration
}

// State shared by every transport: its own registrations, its config and
// its run state.
type base struct {
	registry dispatch.Registry
	conf     config

	// Once instances ensuring that Start and Stop never overlap.
	startOnce misc.CheckableOnce
	stopOnce  misc.CheckableOnce

	lock    sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	local   net.Addr
	running bool
}

func (b *base) Register(f dispatch.Filter, h *dispatch.Handler) {
	b.registry.Add(f, h)
}

func (b *base) Unregister(f dispatch.Filter, h *dispatch.Handler) {
	b.registry.Remove(f, h)
}

func (b *base) Registrations() []dispatch.Registration {
	return b.registry.Snapshot()
}

func (b *base) IsRunning() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.running
}

// Run setup once, under the start guard. setup receives a context which is
// cancelled by Stop and returns the bound local address.
func (b *base) start(parent context.Context, setup func(ctx context.Context) (net.Addr, error)) error {
	// Reset startOnce when this function exits.
	defer b.startOnce.Reset()

	err := ErrAlreadyRunning
	b.startOnce.Do(func() {
		if b.IsRunning() {
			return
		}

		ctx, cancel := context.WithCancel(parent)

		local, setupErr := setup(ctx)
		if setupErr != nil {
			cancel()
			b.wg.Wait()
			err = setupErr
			return
		}

		b.lock.Lock()
		b.ctx, b.cancel, b.local, b.running = ctx, cancel, local, true
		b.lock.Unlock()

		err = nil
	})
	return err
}

// Cancel the run context and wait for every goroutine of the transport to
// exit. teardown runs after cancellation and before waiting.
func (b *base) stop(teardown func()) {
	// Reset stopOnce when this function exits.
	defer b.stopOnce.Reset()

	b.stopOnce.Do(func() {
		b.lock.Lock()
		if !b.running {
			b.lock.Unlock()
			return
		}
		cancel := b.cancel
		b.running = false
		b.lock.Unlock()

		cancel()
		if teardown != nil {
			teardown()
		}
		b.wg.Wait()

		b.lock.Lock()
		b.ctx, b.cancel, b.local = nil, nil, nil
		b.lock.Unlock()
	})
}

// The run context, or a background context when not running.
func (b *base) runContext() context.Context {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *base) localAddr() net.Addr {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.local
}

// Split a local address into host and port for ManagedInfo.
func addrParts(a net.Addr) (string, int) {
	switch v := a.(type) {
	case *net.TCPAddr:
		return v.IP.String(), v.Port
	case *net.UDPAddr:
		return v.IP.String(), v.Port
	}
	return "", 0
}

// Bind with fallback to an ephemeral port on the same host.
func listenWithFallback[T any](c configSnapshot, listen func(addr string) (T, error)) (T, error) {
	l, err := listen(c.listenAddr)
	if err == nil || !c.fallbackToEphemeral {
		return l, err
	}

	host, _, splitErr := net.SplitHostPort(c.listenAddr)
	if splitErr != nil {
		host = ""
	}
	c.logger.Warnf("could not bind %s (%v); falling back to an ephemeral port", c.listenAddr, err)
	return listen(net.JoinHostPort(host, "0"))
}
