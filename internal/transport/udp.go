package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"github.com/gologme/log"
)

// Carries HTTPU requests as single UDP datagrams, in both directions.
// Received datagrams are routed to plain handlers only; nothing is ever
// answered.
type UDPUnicast struct {
	base

	handler *dispatch.Handler

	connLock sync.RWMutex
	conn     *net.UDPConn
}

func NewUDPUnicast(listenAddr string) *UDPUnicast {
	if listenAddr == "" {
		listenAddr = DEFAULT_UDP_ADDR
	}
	u := &UDPUnicast{base: base{conf: newConfig(listenAddr)}}
	u.handler = &dispatch.Handler{
		Name:  "udp-unicast",
		Plain: u.send,
	}
	return u
}

// The handler which sends datagrams through this endpoint.
func (u *UDPUnicast) Handler() *dispatch.Handler {
	return u.handler
}

// The filter selecting the requests this endpoint sends.
func (u *UDPUnicast) Filter() dispatch.Filter {
	return dispatch.PlainFilter{Protocol: proto.PROTOCOL_HTTPU}
}

func (u *UDPUnicast) Protocol() string {
	return proto.PROTOCOL_HTTPU
}

func (u *UDPUnicast) Addr() string {
	host, _ := addrParts(u.localAddr())
	return host
}

func (u *UDPUnicast) Port() int {
	_, port := addrParts(u.localAddr())
	return port
}

func (u *UDPUnicast) Start(ctx context.Context) error {
	return u.start(ctx, func(ctx context.Context) (net.Addr, error) {
		c := u.conf.snapshot()

		conn, err := listenWithFallback(c, func(addr string) (*net.UDPConn, error) {
			laddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				return nil, err
			}
			return net.ListenUDP("udp", laddr)
		})
		if err != nil {
			return nil, err
		}

		u.connLock.Lock()
		u.conn = conn
		u.connLock.Unlock()

		c.logger.Infof("udp endpoint listening on %s", conn.LocalAddr())

		// Unblock the read loop on cancellation.
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			<-ctx.Done()
			conn.Close()
		}()

		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			readDatagrams(ctx, c, &u.wg, &u.registry, func(buf []byte) (int, net.Addr, error) {
				return conn.ReadFrom(buf)
			})
		}()

		return conn.LocalAddr(), nil
	})
}

func (u *UDPUnicast) Stop() {
	u.stop(func() {
		u.connLock.Lock()
		u.conn = nil
		u.connLock.Unlock()
	})
}

// Send req as a single datagram to its host and port.
func (u *UDPUnicast) send(_ context.Context, req *proto.ActionMessage) error {
	u.connLock.RLock()
	conn := u.conn
	u.connLock.RUnlock()

	if conn == nil {
		return ErrNotRunning
	}
	if req.Host == "" {
		return ErrNoHost
	}

	data, err := datagram(u.conf.snapshot().logger, req)
	if err != nil {
		return err
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)))
	if err != nil {
		return fmt.Errorf("error while resolving %s: %w", req.Host, err)
	}

	_, err = conn.WriteToUDP(data, raddr)
	return err
}

//
// Shared datagram handling.
//

// Serialise req for a single datagram.
func datagram(logger *log.Logger, req *proto.ActionMessage) ([]byte, error) {
	data, err := proto.NewCodec(logger).ActionBytes(req)
	if err != nil {
		return nil, err
	}
	if len(data) > proto.UDP_PACKET_LENGTH {
		return nil, fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(data))
	}
	return data, nil
}

// Receive datagrams until ctx is cancelled, handling each on its own goroutine.
func readDatagrams(ctx context.Context, c configSnapshot, wg *sync.WaitGroup, registry *dispatch.Registry, read func([]byte) (int, net.Addr, error)) {
	buf := make([]byte, proto.UDP_PACKET_LENGTH)

	for ctx.Err() == nil {
		n, src, err := read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			c.logger.Warnf("error while receiving datagram: %v", err)
			continue
		}

		data := append([]byte(nil), buf[:n]...)

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleDatagram(ctx, c, registry, data, src)
		}()
	}
}

// Parse a datagram and hand it to the matching plain handler. The request is
// addressed by the datagram's source.
func handleDatagram(ctx context.Context, c configSnapshot, registry *dispatch.Registry, data []byte, src net.Addr) {
	req, err := proto.NewCodec(c.logger).ReadActionMessage(bytes.NewReader(data))
	if err != nil {
		c.logger.Warnf("bad datagram from %s: %v", src, err)
		return
	}

	if addr, ok := src.(*net.UDPAddr); ok {
		req.Host = addr.IP.String()
		req.Port = addr.Port
	}

	reg, ok := registry.Resolve(req, dispatch.CAPABILITY_PLAIN)
	if !ok {
		c.logger.Infof("No Handler was found for %s %s %s from %s", req.Protocol, req.Method, req.Target(), src)
		return
	}

	if err := reg.Handler.Plain(ctx, req); err != nil {
		c.logger.Warnf("handler %s failed on %s %s: %v", reg.Handler, req.Method, req.Target(), err)
	}
}
