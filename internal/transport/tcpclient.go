package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
)

// Sends HTTP requests over TCP, one connection per request. It is meant to
// be registered on an outbound dispatcher through Handler.
type TCPClient struct {
	base

	handler *dispatch.Handler
}

func NewTCPClient() *TCPClient {
	c := &TCPClient{base: base{conf: newConfig("")}}
	c.handler = &dispatch.Handler{
		Name:  "tcp-client",
		Sync:  c.send,
		Async: c.sendAsync,
	}
	return c
}

// The handler which performs sends through this client.
func (c *TCPClient) Handler() *dispatch.Handler {
	return c.handler
}

// The filter selecting the requests this client is responsible for.
func (c *TCPClient) Filter() dispatch.Filter {
	return dispatch.PlainFilter{Protocol: proto.PROTOCOL_HTTP}
}

func (c *TCPClient) Protocol() string { return proto.PROTOCOL_HTTP }
func (c *TCPClient) Addr() string     { return "" }
func (c *TCPClient) Port() int        { return 0 }

// Outbound-only; Start only scopes the lifetime of pending asynchronous reads.
func (c *TCPClient) Start(ctx context.Context) error {
	return c.start(ctx, func(ctx context.Context) (net.Addr, error) {
		return nil, nil
	})
}

// Abort pending asynchronous reads and wait for them to exit.
func (c *TCPClient) Stop() {
	c.stop(nil)
}

func (c *TCPClient) dial(ctx context.Context, cs configSnapshot, req *proto.ActionMessage) (net.Conn, error) {
	if req.Host == "" {
		return nil, ErrNoHost
	}

	d := net.Dialer{Timeout: cs.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)))
	if err != nil {
		return nil, fmt.Errorf("error while connecting to %s:%d: %w", req.Host, req.Port, err)
	}
	return conn, nil
}

// Send req and wait for the response. The response body, if any, reads from
// the connection, which is closed once the body is drained or closed.
func (c *TCPClient) send(ctx context.Context, req *proto.ActionMessage) (*proto.StatusMessage, error) {
	cs := c.conf.snapshot()
	codec := proto.NewCodec(cs.logger)

	conn, err := c.dial(ctx, cs, req)
	if err != nil {
		return nil, err
	}

	// Tie the exchange to the caller's context.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if err := codec.WriteAction(conn, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error while sending request: %w", err)
	}

	res, err := codec.ReadStatusMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error while reading response: %w", err)
	}

	if res.Body == nil {
		conn.Close()
	} else {
		res.Body = &connBody{Reader: res.Body, conn: conn}
	}

	cs.logger.Debugf("%s %s to %s:%d answered %d", req.Method, req.Target(), req.Host, req.Port, res.StatusCode)
	return res, nil
}

// Send req and return straight away. The handle is completed once the
// response has been read in full; the connection is then closed.
func (c *TCPClient) sendAsync(ctx context.Context, req *proto.ActionMessage) (*dispatch.Handle, error) {
	cs := c.conf.snapshot()
	codec := proto.NewCodec(cs.logger)

	conn, err := c.dial(ctx, cs, req)
	if err != nil {
		return nil, err
	}

	if err := codec.WriteAction(conn, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error while sending request: %w", err)
	}

	handle := dispatch.NewHandle()

	// The read outlives the caller's context, but not the client.
	runCtx := c.runContext()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer conn.Close()

		stop := context.AfterFunc(runCtx, func() {
			conn.Close()
		})
		defer stop()

		res, err := codec.ReadStatusMessage(conn)
		if err != nil {
			handle.Fail(fmt.Errorf("error while reading response: %w", err))
			return
		}

		if res.Body != nil {
			body, err := io.ReadAll(res.Body)
			if err != nil {
				handle.Fail(fmt.Errorf("error while reading response body: %w", err))
				return
			}
			res.Body = bytes.NewReader(body)
		}

		handle.Fulfill(res)
	}()

	return handle, nil
}

// A response body which owns the connection it reads from.
type connBody struct {
	io.Reader

	conn net.Conn
	once sync.Once
}

func (b *connBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	if err != nil {
		b.Close()
	}
	return n, err
}

func (b *connBody) Close() error {
	b.once.Do(func() {
		b.conn.Close()
	})
	return nil
}
