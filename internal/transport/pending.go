package transport

import (
	"net"
	"strings"
	"sync"
	"time"
)

// A request whose response is still owed to the peer on conn.
type exchange struct {
	id       string
	conn     net.Conn
	started  time.Time
	deadline time.Time
}

// Correlates outstanding asynchronous requests with the connections awaiting
// their responses. IDs are matched case-insensitively.
type pendingTable struct {
	lock    sync.Mutex
	entries map[string]*exchange
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: map[string]*exchange{}}
}

func (p *pendingTable) add(e *exchange) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.entries[strings.ToLower(e.id)] = e
}

// Remove and return the exchange for id.
func (p *pendingTable) take(id string) (*exchange, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	key := strings.ToLower(id)
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	return e, ok
}

// Remove and return every exchange whose deadline has passed.
func (p *pendingTable) expire(now time.Time) []*exchange {
	p.lock.Lock()
	defer p.lock.Unlock()

	var expired []*exchange
	for key, e := range p.entries {
		if !e.deadline.IsZero() && !now.Before(e.deadline) {
			expired = append(expired, e)
			delete(p.entries, key)
		}
	}
	return expired
}

// Remove and return everything.
func (p *pendingTable) drain() []*exchange {
	p.lock.Lock()
	defer p.lock.Unlock()

	all := make([]*exchange, 0, len(p.entries))
	for _, e := range p.entries {
		all = append(all, e)
	}
	p.entries = map[string]*exchange{}
	return all
}

func (p *pendingTable) len() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return len(p.entries)
}
