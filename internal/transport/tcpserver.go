package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"github.com/google/uuid"
)

// Accepts HTTP requests over TCP and answers them from its registrations.
// Synchronous handlers are answered on the spot. Asynchronous handlers leave
// the connection open: the request is stamped with a Unique-ID header and
// the connection waits until a response carrying the same ID is passed to
// Deliver, or until the request deadline passes.
type TCPServer struct {
	base

	pending *pendingTable
}

func NewTCPServer(listenAddr string) *TCPServer {
	if listenAddr == "" {
		listenAddr = DEFAULT_TCP_ADDR
	}
	return &TCPServer{
		base:    base{conf: newConfig(listenAddr)},
		pending: newPendingTable(),
	}
}

func (s *TCPServer) Protocol() string {
	return proto.PROTOCOL_HTTP
}

func (s *TCPServer) Addr() string {
	host, _ := addrParts(s.localAddr())
	return host
}

func (s *TCPServer) Port() int {
	_, port := addrParts(s.localAddr())
	return port
}

// Bind the listener and start accepting connections.
func (s *TCPServer) Start(ctx context.Context) error {
	return s.start(ctx, func(ctx context.Context) (net.Addr, error) {
		c := s.conf.snapshot()

		listenCfg := net.ListenConfig{}
		listener, err := listenWithFallback(c, func(addr string) (net.Listener, error) {
			return listenCfg.Listen(ctx, "tcp", addr)
		})
		if err != nil {
			return nil, err
		}

		c.logger.Infof("tcp server listening on %s", listener.Addr())

		// Make sure the accept call below does not block past context cancellation.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-ctx.Done()
			listener.Close()
		}()

		s.wg.Add(1)
		go s.acceptLoop(ctx, c, listener)

		if c.requestTimeout > 0 {
			s.wg.Add(1)
			go s.reapLoop(ctx, c)
		}

		return listener.Addr(), nil
	})
}

// Stop accepting connections. Requests still awaiting a response are
// answered 503 and their connections closed.
func (s *TCPServer) Stop() {
	s.stop(func() {
		c := s.conf.snapshot()
		for _, e := range s.pending.drain() {
			s.finish(c, e, proto.NewStatusMessage(proto.STATUS_SERVICE_UNAVAILABLE, proto.PROTOCOL_HTTP, nil, nil), OUTCOME_ABORTED)
		}
	})
}

// The number of asynchronous requests awaiting a response.
func (s *TCPServer) Pending() int {
	return s.pending.len()
}

func (s *TCPServer) acceptLoop(ctx context.Context, c configSnapshot, listener net.Listener) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		// Accept incoming connections. In case of error, drop connection.
		conn, err := listener.Accept()
		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warnf("error while accepting connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.serve(ctx, c, conn)
	}
}

func (s *TCPServer) reapLoop(ctx context.Context, c configSnapshot) {
	defer s.wg.Done()

	interval := c.reapInterval
	if interval <= 0 {
		interval = DEFAULT_REAP_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range s.pending.expire(now) {
				c.logger.Warnf("request %s from %s expired after %s", e.id, e.conn.RemoteAddr(), now.Sub(e.started).Round(time.Millisecond))
				s.finish(c, e, proto.NewStatusMessage(proto.STATUS_GATEWAY_TIMEOUT, proto.PROTOCOL_HTTP, proto.Headers{proto.HEADER_UNIQUE_ID: e.id}, nil), OUTCOME_EXPIRED)
			}
		}
	}
}

// Handle a single connection from request to, possibly deferred, response.
func (s *TCPServer) serve(ctx context.Context, c configSnapshot, conn net.Conn) {
	defer s.wg.Done()

	if c.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	req, err := proto.NewCodec(c.logger).ReadActionMessage(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.logger.Warnf("bad request from %s: %v", conn.RemoteAddr(), err)
			s.reply(c, conn, proto.NewStatusMessage(proto.STATUS_BAD_REQUEST, proto.PROTOCOL_HTTP, nil, nil))
		}
		conn.Close()
		return
	}

	// Address the request by where it actually came from and arrived at.
	if remote, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		req.Host = remote.IP.String()
	}
	if local, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		req.Port = local.Port
	}

	reg, ok := s.registry.Resolve(req, dispatch.CAPABILITY_SYNC|dispatch.CAPABILITY_ASYNC)
	if !ok {
		c.logger.Infof("No Handler was found for %s %s from %s", req.Method, req.Target(), req.Host)
		s.reply(c, conn, proto.NewStatusMessage(proto.STATUS_NOT_FOUND, req.Protocol, nil, nil))
		conn.Close()
		return
	}

	if reg.Handler.Offers(dispatch.CAPABILITY_SYNC) {
		res, err := reg.Handler.Sync(ctx, req)
		if err != nil || res == nil {
			c.logger.Warnf("handler %s failed on %s %s: %v", reg.Handler, req.Method, req.Target(), err)
			res = proto.NewStatusMessage(proto.STATUS_BAD_REQUEST, req.Protocol, nil, nil)
		}
		s.reply(c, conn, res)
		conn.Close()
		return
	}

	// Asynchronous: keep the connection until the response shows up. The
	// exchange is parked before the handler runs, so a response delivered
	// while the handler is still busy finds its connection.
	id := uuid.NewString()
	req.Headers.Set(proto.HEADER_UNIQUE_ID, id)

	// The connection now belongs to the pending table.
	_ = conn.SetReadDeadline(time.Time{})

	if c.recorder != nil {
		if err := c.recorder.Begin(id, req.Host, req.Method, req.Target()); err != nil {
			c.logger.Warnf("could not record request %s: %v", id, err)
		}
	}

	e := &exchange{id: id, conn: conn, started: time.Now()}
	if c.requestTimeout > 0 {
		e.deadline = e.started.Add(c.requestTimeout)
	}
	s.pending.add(e)

	// Stop cancels before draining the table, so an exchange parked after the
	// drain is answered here.
	if ctx.Err() != nil {
		s.abort(c, id)
		return
	}

	handle, err := reg.Handler.Async(ctx, req)
	if err != nil || handle == nil {
		c.logger.Warnf("handler %s failed on %s %s: %v", reg.Handler, req.Method, req.Target(), err)
		if e, ok := s.pending.take(id); ok {
			s.finish(c, e, proto.NewStatusMessage(proto.STATUS_BAD_REQUEST, req.Protocol, proto.Headers{proto.HEADER_UNIQUE_ID: id}, nil), OUTCOME_FAILED)
		}
		return
	}

	handle.OnStatus(func(res *proto.StatusMessage, err error) {
		if err != nil {
			s.fail(id, err)
			return
		}
		s.Deliver(res)
	})
}

// Send a deferred response to the connection waiting for it, identified by
// the response's Unique-ID header. Responses without an ID, or with an ID
// nobody is waiting for, are dropped.
func (s *TCPServer) Deliver(res *proto.StatusMessage) {
	c := s.conf.snapshot()

	if res == nil {
		c.logger.Warnf("dropping empty deferred response")
		return
	}

	id := res.Headers.Get(proto.HEADER_UNIQUE_ID)
	if id == "" {
		c.logger.Warnf("dropping deferred response %d without %s header", res.StatusCode, proto.HEADER_UNIQUE_ID)
		res.CloseBody()
		return
	}

	e, ok := s.pending.take(id)
	if !ok {
		c.logger.Warnf("dropping deferred response for unknown request %s", id)
		res.CloseBody()
		return
	}

	s.finish(c, e, res, OUTCOME_DELIVERED)
}

// Answer a parked exchange 503 because the server is going away.
func (s *TCPServer) abort(c configSnapshot, id string) {
	if e, ok := s.pending.take(id); ok {
		s.finish(c, e, proto.NewStatusMessage(proto.STATUS_SERVICE_UNAVAILABLE, proto.PROTOCOL_HTTP, proto.Headers{proto.HEADER_UNIQUE_ID: id}, nil), OUTCOME_ABORTED)
	}
}

func (s *TCPServer) fail(id string, cause error) {
	c := s.conf.snapshot()

	e, ok := s.pending.take(id)
	if !ok {
		return
	}

	c.logger.Warnf("request %s failed: %v", id, cause)
	s.finish(c, e, proto.NewStatusMessage(proto.STATUS_BAD_GATEWAY, proto.PROTOCOL_HTTP, proto.Headers{proto.HEADER_UNIQUE_ID: id}, nil), OUTCOME_FAILED)
}

// Answer an exchange taken from the pending table and close its connection.
func (s *TCPServer) finish(c configSnapshot, e *exchange, res *proto.StatusMessage, outcome string) {
	s.reply(c, e.conn, res)
	e.conn.Close()

	if c.recorder != nil {
		if err := c.recorder.Finish(e.id, outcome, res.StatusCode); err != nil {
			c.logger.Warnf("could not record outcome of request %s: %v", e.id, err)
		}
	}
}

func (s *TCPServer) reply(c configSnapshot, conn net.Conn, res *proto.StatusMessage) {
	if c.readTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.readTimeout))
	}
	if err := proto.NewCodec(c.logger).WriteStatus(conn, res); err != nil {
		c.logger.Warnf("could not write response to %s: %v", conn.RemoteAddr(), err)
	}
}
