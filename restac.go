// Package restac is a peer-to-peer REST message framework. A Transceiver
// owns an inbound dispatcher, whose registrations are served over TCP (HTTP)
// and UDP (HTTPU, HTTPMU), and an outbound dispatcher through which requests
// are sent to other peers.
package restac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/journal"
	"dev.l1qu1d.net/wraith-labs/restac/internal/misc"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"dev.l1qu1d.net/wraith-labs/restac/internal/resource"
	"dev.l1qu1d.net/wraith-labs/restac/internal/transport"
	"github.com/gologme/log"
)

type (
	ActionMessage = proto.ActionMessage
	StatusMessage = proto.StatusMessage
	Handler       = dispatch.Handler
	Handle        = dispatch.Handle
	Filter        = dispatch.Filter
)

var ErrNoTCPServer = errors.New("tcp server is not enabled")

// What a Transceiver runs. The zero value runs nothing but the in-process
// dispatchers.
type Options struct {
	Logger *log.Logger

	// Serve the inbound dispatcher over TCP on TCPAddr.
	EnableTCPServer bool
	TCPAddr         string

	// Send outbound HTTP requests over TCP.
	EnableTCPClient bool

	// Receive and send HTTPU datagrams on UDPAddr.
	EnableUDP bool
	UDPAddr   string

	// Receive and send HTTPMU datagrams in MulticastGroup on MulticastPort.
	EnableMulticast bool
	MulticastGroup  string
	MulticastPort   int

	// Bind an ephemeral port when a configured one is taken.
	FallbackToEphemeral bool

	// How long an asynchronous request served over TCP may wait for its
	// response. Zero uses the transport default.
	RequestTimeout time.Duration

	// Where the exchange journal is kept. Empty disables the journal.
	JournalPath      string
	JournalRetention time.Duration
}

type Transceiver struct {
	opts   Options
	logger *log.Logger

	inbound  *dispatch.Dispatcher
	outbound *dispatch.Dispatcher

	tcpServer *transport.TCPServer
	tcpClient *transport.TCPClient
	udp       *transport.UDPUnicast
	multicast *transport.UDPMulticast

	// Every transport in start order.
	transports []transport.Transport

	journal *journal.Journal

	// Once instances ensuring that Start and Stop never overlap.
	startOnce misc.CheckableOnce
	stopOnce  misc.CheckableOnce

	lock    sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Build a transceiver. Nothing is bound until Start.
func New(opts Options) (*Transceiver, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.JournalRetention <= 0 {
		opts.JournalRetention = journal.DEFAULT_RETENTION
	}

	t := &Transceiver{
		opts:     opts,
		logger:   opts.Logger,
		inbound:  dispatch.NewDispatcher(opts.Logger),
		outbound: dispatch.NewDispatcher(opts.Logger),
	}

	if opts.EnableTCPServer {
		t.tcpServer = transport.NewTCPServer(opts.TCPAddr)
		t.tcpServer.SetLogger(opts.Logger)
		t.tcpServer.SetFallbackToEphemeral(opts.FallbackToEphemeral)
		if opts.RequestTimeout > 0 {
			t.tcpServer.SetRequestTimeout(opts.RequestTimeout)
		}
		t.inbound.Attach(t.tcpServer)
		t.transports = append(t.transports, t.tcpServer)
	}

	if opts.EnableTCPClient {
		t.tcpClient = transport.NewTCPClient()
		t.tcpClient.SetLogger(opts.Logger)
		t.outbound.Register(t.tcpClient.Filter(), t.tcpClient.Handler())
		t.transports = append(t.transports, t.tcpClient)
	}

	if opts.EnableUDP {
		t.udp = transport.NewUDPUnicast(opts.UDPAddr)
		t.udp.SetLogger(opts.Logger)
		t.udp.SetFallbackToEphemeral(opts.FallbackToEphemeral)
		t.inbound.Attach(t.udp)
		t.outbound.Register(t.udp.Filter(), t.udp.Handler())
		t.transports = append(t.transports, t.udp)
	}

	if opts.EnableMulticast {
		m, err := transport.NewUDPMulticast(opts.MulticastGroup, opts.MulticastPort)
		if err != nil {
			return nil, fmt.Errorf("failed to set up multicast: %w", err)
		}
		m.SetLogger(opts.Logger)
		t.multicast = m
		t.inbound.Attach(m)
		t.outbound.Register(m.Filter(), m.Handler())
		t.transports = append(t.transports, m)
	}

	return t, nil
}

// The dispatcher whose registrations are served to other peers.
func (t *Transceiver) Inbound() *dispatch.Dispatcher {
	return t.inbound
}

// The dispatcher requests to other peers are sent through.
func (t *Transceiver) Outbound() *dispatch.Dispatcher {
	return t.outbound
}

// The exchange journal, nil unless configured and running.
func (t *Transceiver) Journal() *journal.Journal {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.journal
}

// The TCP server, nil unless enabled.
func (t *Transceiver) TCPServer() *transport.TCPServer {
	return t.tcpServer
}

// Addressing details of every inbound transport.
func (t *Transceiver) Transports() []dispatch.Info {
	return t.inbound.Managed()
}

func (t *Transceiver) IsRunning() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.running
}

//
// Lifecycle.
//

// Open the journal and start every transport. If any of them fails, those
// already started are stopped again.
func (t *Transceiver) Start(ctx context.Context) error {
	// Reset startOnce when this function exits.
	defer t.startOnce.Reset()

	var err error
	t.startOnce.Do(func() {
		t.lock.Lock()
		defer t.lock.Unlock()

		if t.running {
			err = transport.ErrAlreadyRunning
			return
		}

		if t.opts.JournalPath != "" {
			if t.journal, err = journal.Open(t.opts.JournalPath); err != nil {
				return
			}
			if t.tcpServer != nil {
				t.tcpServer.SetRecorder(t.journal)
			}
		}

		runCtx, cancel := context.WithCancel(ctx)

		for i, tr := range t.transports {
			if err = tr.Start(runCtx); err != nil {
				err = fmt.Errorf("failed to start %s transport: %w", tr.Protocol(), err)
				for j := i - 1; j >= 0; j-- {
					t.transports[j].Stop()
				}
				cancel()
				t.closeJournal()
				return
			}
		}

		if t.journal != nil {
			t.wg.Add(1)
			go t.pruneLoop(runCtx, t.journal)
		}

		t.cancel = cancel
		t.running = true

		for _, info := range t.inbound.Managed() {
			t.logger.Infof("serving %s on %s:%d", info.Protocol, info.Addr, info.Port)
		}
	})

	return err
}

// Stop every transport and close the journal.
func (t *Transceiver) Stop() {
	// Reset stopOnce when this function exits.
	defer t.stopOnce.Reset()

	t.stopOnce.Do(func() {
		t.lock.Lock()
		defer t.lock.Unlock()

		if !t.running {
			return
		}

		for i := len(t.transports) - 1; i >= 0; i-- {
			t.transports[i].Stop()
		}

		t.cancel()
		t.wg.Wait()
		t.closeJournal()
		t.running = false
	})
}

func (t *Transceiver) closeJournal() {
	if t.journal == nil {
		return
	}
	if t.tcpServer != nil {
		t.tcpServer.SetRecorder(nil)
	}
	if err := t.journal.Close(); err != nil {
		t.logger.Warnf("failed to close journal: %v", err)
	}
	t.journal = nil
}

// Periodically delete journal entries past their retention.
func (t *Transceiver) pruneLoop(ctx context.Context, j *journal.Journal) {
	defer t.wg.Done()

	ticker := time.NewTicker(journal.CLEANUP_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Prune(t.opts.JournalRetention)
			if err != nil {
				t.logger.Warnf("failed to prune journal: %v", err)
				continue
			}
			if n > 0 {
				t.logger.Debugf("pruned %d journal entries", n)
			}
		}
	}
}

//
// Serving.
//

// Serve h for requests matching f.
func (t *Transceiver) Register(f Filter, h *Handler) {
	t.inbound.Register(f, h)
}

func (t *Transceiver) Unregister(f Filter, h *Handler) {
	t.inbound.Unregister(f, h)
}

// Serve r at the path of its filter.
func (t *Transceiver) Mount(r *resource.Resource) {
	r.Register(t.inbound)
}

// Answer a deferred request served over TCP. The response must carry the
// Unique-ID header of the request it answers.
func (t *Transceiver) Deliver(res *StatusMessage) error {
	if t.tcpServer == nil {
		return ErrNoTCPServer
	}
	t.tcpServer.Deliver(res)
	return nil
}

//
// Sending.
//

// Send req and wait for the reply.
func (t *Transceiver) Call(ctx context.Context, req *ActionMessage) (*StatusMessage, error) {
	return t.outbound.DeliverSync(ctx, req)
}

// Send req; the reply arrives through the returned handle. A nil handle
// means no transport could take the request.
func (t *Transceiver) CallAsync(ctx context.Context, req *ActionMessage) (*Handle, error) {
	return t.outbound.DeliverAsync(ctx, req)
}

// Send req without expecting a reply.
func (t *Transceiver) Notify(ctx context.Context, req *ActionMessage) error {
	return t.outbound.DeliverPlain(ctx, req)
}

// A client for the remote resource at rawURL.
func (t *Transceiver) Proxy(rawURL string) (*resource.Proxy, error) {
	return resource.NewProxy(t.outbound, rawURL)
}
