package dispatch

import (
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// A filter paired with the handler it selects requests for.
type Registration struct {
	Filter  Filter
	Handler *Handler
}

func (r Registration) same(f Filter, h *Handler) bool {
	return r.Handler == h && r.Filter.Equal(f)
}

// An ordered list of registrations. Safe for concurrent use; routing works on
// a snapshot so handlers never run under the registry lock.
type Registry struct {
	lock    sync.RWMutex
	entries []Registration
}

// Append a registration. Nil arguments and duplicate pairs are ignored.
// Reports whether the registry changed.
func (r *Registry) Add(f Filter, h *Handler) bool {
	if f == nil || h == nil {
		return false
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for _, e := range r.entries {
		if e.same(f, h) {
			return false
		}
	}
	r.entries = append(r.entries, Registration{Filter: f, Handler: h})
	return true
}

// Remove a registration. Absent pairs are ignored. Reports whether the
// registry changed.
func (r *Registry) Remove(f Filter, h *Handler) bool {
	if f == nil || h == nil {
		return false
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for i, e := range r.entries {
		if e.same(f, h) {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// A copy of the registrations in registration order.
func (r *Registry) Snapshot() []Registration {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return append([]Registration(nil), r.entries...)
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.entries)
}

// Find the handler for m which offers one of the capabilities in want. The
// full request path is tried first, then each parent in turn up to the root;
// within one path the earliest registration wins.
func (r *Registry) Resolve(m *proto.ActionMessage, want Capability) (Registration, bool) {
	reg, _, ok := r.resolve(m, want)
	return reg, ok
}

// Like Resolve, also reporting how many paths were tried.
func (r *Registry) resolve(m *proto.ActionMessage, want Capability) (Registration, int, bool) {
	entries := r.Snapshot()
	query := m.QueryString()
	path := m.Path
	attempts := 0

	for {
		attempts++
		rendered := path.String()

		for _, e := range entries {
			if !e.Handler.Offers(want) {
				continue
			}
			if e.Filter.Matches(m.Protocol, m.Host, m.Port, rendered, query) {
				return e, attempts, true
			}
		}

		// The root has been tried; nothing left to trim.
		if path.IsRoot() {
			return Registration{}, attempts, false
		}
		path = path.Parent()
	}
}
