// Package dispatch routes requests to registered handlers by filter and path.
package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"github.com/gologme/log"
)

var ErrNoHandler = errors.New("no handler was found")

// Something that accepts registrations.
type Registrar interface {
	Register(f Filter, h *Handler)
	Unregister(f Filter, h *Handler)
}

// Addressing details of a managed dispatcher.
type ManagedInfo interface {
	Protocol() string
	Addr() string
	Port() int
}

// A dispatcher attached to a proxy. It receives a copy of every registration
// made on the proxy.
type Managed interface {
	Registrar
	ManagedInfo
}

// A snapshot of a managed dispatcher's addressing details.
type Info struct {
	Protocol string `json:"protocol"`
	Addr     string `json:"addr"`
	Port     int    `json:"port"`
}

// The proxy dispatcher. Registrations made here are held locally, for
// in-process delivery, and mirrored onto every attached managed dispatcher.
type Dispatcher struct {
	registry Registry
	logger   *log.Logger

	lock    sync.RWMutex
	managed []Managed
}

func NewDispatcher(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) Register(f Filter, h *Handler) {
	if !d.registry.Add(f, h) {
		return
	}

	d.lock.RLock()
	defer d.lock.RUnlock()

	for _, m := range d.managed {
		m.Register(f, h)
	}
}

func (d *Dispatcher) Unregister(f Filter, h *Handler) {
	if !d.registry.Remove(f, h) {
		return
	}

	d.lock.RLock()
	defer d.lock.RUnlock()

	for _, m := range d.managed {
		m.Unregister(f, h)
	}
}

// Attach a managed dispatcher. Registrations already present are replayed
// onto it.
func (d *Dispatcher) Attach(m Managed) {
	if m == nil {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	for _, existing := range d.managed {
		if existing == m {
			return
		}
	}
	d.managed = append(d.managed, m)

	for _, r := range d.registry.Snapshot() {
		m.Register(r.Filter, r.Handler)
	}
}

// Detach a managed dispatcher, withdrawing the registrations mirrored onto it.
func (d *Dispatcher) Detach(m Managed) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, existing := range d.managed {
		if existing == m {
			d.managed = append(d.managed[:i:i], d.managed[i+1:]...)
			for _, r := range d.registry.Snapshot() {
				m.Unregister(r.Filter, r.Handler)
			}
			return
		}
	}
}

// Addressing details of every attached managed dispatcher.
func (d *Dispatcher) Managed() []Info {
	d.lock.RLock()
	defer d.lock.RUnlock()

	infos := make([]Info, 0, len(d.managed))
	for _, m := range d.managed {
		infos = append(infos, Info{Protocol: m.Protocol(), Addr: m.Addr(), Port: m.Port()})
	}
	return infos
}

func (d *Dispatcher) Registrations() []Registration {
	return d.registry.Snapshot()
}

//
// Delivery.
//

// Deliver a request to the matching synchronous handler and return its
// response. A 404 response is produced when no handler matches.
func (d *Dispatcher) DeliverSync(ctx context.Context, m *proto.ActionMessage) (*proto.StatusMessage, error) {
	reg, ok := d.registry.Resolve(m, CAPABILITY_SYNC)
	if !ok {
		d.logger.Infof("No Handler was found for sync %s %s://%s:%d%s", m.Method, m.Protocol, m.Host, m.Port, m.Target())
		return proto.NewStatusMessage(proto.STATUS_NOT_FOUND, m.Protocol, nil, nil), nil
	}

	d.logger.Debugf("delivering sync %s %s to %s", m.Method, m.Target(), reg.Handler)
	return reg.Handler.Sync(ctx, m)
}

// Deliver a request to the matching asynchronous handler. Returns a nil handle
// and no error when no handler matches.
func (d *Dispatcher) DeliverAsync(ctx context.Context, m *proto.ActionMessage) (*Handle, error) {
	reg, ok := d.registry.Resolve(m, CAPABILITY_ASYNC)
	if !ok {
		d.logger.Infof("No Handler was found for async %s %s://%s:%d%s", m.Method, m.Protocol, m.Host, m.Port, m.Target())
		return nil, nil
	}

	d.logger.Debugf("delivering async %s %s to %s", m.Method, m.Target(), reg.Handler)
	return reg.Handler.Async(ctx, m)
}

// Deliver a request to the matching plain handler. Nothing happens, beyond a
// log line, when no handler matches.
func (d *Dispatcher) DeliverPlain(ctx context.Context, m *proto.ActionMessage) error {
	reg, ok := d.registry.Resolve(m, CAPABILITY_PLAIN)
	if !ok {
		d.logger.Infof("No Handler was found for plain %s %s://%s:%d%s", m.Method, m.Protocol, m.Host, m.Port, m.Target())
		return nil
	}

	d.logger.Debugf("delivering plain %s %s to %s", m.Method, m.Target(), reg.Handler)
	return reg.Handler.Plain(ctx, m)
}
