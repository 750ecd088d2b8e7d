package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"dev.l1qu1d.net/wraith-labs/restac/internal/dispatch"
	"dev.l1qu1d.net/wraith-labs/restac/internal/misc"
	"dev.l1qu1d.net/wraith-labs/restac/internal/proto"
	"golang.org/x/net/ipv4"
)

var defaultGroup = misc.NoError(net.ResolveUDPAddr("udp4", net.JoinHostPort(DEFAULT_MCAST_GROUP, fmt.Sprint(DEFAULT_MCAST_PORT))))

// The part of ipv4.PacketConn used to manage group membership.
type groupMembership interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
}

// Carries HTTPMU requests as UDP multicast datagrams, in both directions.
// The endpoint is a member of exactly one group at a time; sending to a
// different group moves its membership there. Received datagrams are routed
// to plain handlers only.
type UDPMulticast struct {
	base

	handler *dispatch.Handler
	port    int

	groupLock  sync.Mutex
	group      net.IP
	pconn      *ipv4.PacketConn
	membership groupMembership
	ifi        *net.Interface
}

// An endpoint for group on port. An empty group or zero port selects the
// defaults, 224.0.0.99 and 2221.
func NewUDPMulticast(group string, port int) (*UDPMulticast, error) {
	ip := defaultGroup.IP
	if group != "" {
		ip = net.ParseIP(group)
		if ip == nil || !ip.IsMulticast() {
			return nil, fmt.Errorf("%w: %q", ErrNotMulticast, group)
		}
	}
	if port <= 0 {
		port = defaultGroup.Port
	}

	m := &UDPMulticast{
		base:  base{conf: newConfig(net.JoinHostPort("", fmt.Sprint(port)))},
		port:  port,
		group: ip,
	}
	m.handler = &dispatch.Handler{
		Name:  "udp-multicast",
		Plain: m.send,
	}
	return m, nil
}

func (m *UDPMulticast) Handler() *dispatch.Handler {
	return m.handler
}

// The filter selecting the requests this endpoint sends.
func (m *UDPMulticast) Filter() dispatch.Filter {
	return dispatch.PlainFilter{Protocol: proto.PROTOCOL_HTTPMU}
}

func (m *UDPMulticast) Protocol() string {
	return proto.PROTOCOL_HTTPMU
}

// The group this endpoint is currently a member of.
func (m *UDPMulticast) Addr() string {
	return m.Group()
}

func (m *UDPMulticast) Port() int {
	if _, port := addrParts(m.localAddr()); port != 0 {
		return port
	}
	return m.port
}

func (m *UDPMulticast) Group() string {
	m.groupLock.Lock()
	defer m.groupLock.Unlock()

	return m.group.String()
}

// Move membership to group. Takes effect immediately when running.
func (m *UDPMulticast) SetGroup(group string) error {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("%w: %q", ErrNotMulticast, group)
	}
	return m.switchGroup(ip)
}

func (m *UDPMulticast) Start(ctx context.Context) error {
	return m.start(ctx, func(ctx context.Context) (net.Addr, error) {
		c := m.conf.snapshot()

		conn, err := net.ListenPacket("udp4", c.listenAddr)
		if err != nil {
			return nil, err
		}

		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastTTL(c.multicastTTL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("error while setting multicast ttl: %w", err)
		}
		if err := p.SetMulticastLoopback(true); err != nil {
			c.logger.Warnf("could not enable multicast loopback: %v", err)
		}
		if c.multicastInterface != nil {
			if err := p.SetMulticastInterface(c.multicastInterface); err != nil {
				conn.Close()
				return nil, fmt.Errorf("error while selecting multicast interface: %w", err)
			}
		}

		m.groupLock.Lock()
		group := m.group
		if err := p.JoinGroup(c.multicastInterface, &net.UDPAddr{IP: group}); err != nil {
			m.groupLock.Unlock()
			conn.Close()
			return nil, fmt.Errorf("error while joining group %s: %w", group, err)
		}
		m.pconn, m.membership, m.ifi = p, p, c.multicastInterface
		m.groupLock.Unlock()

		c.logger.Infof("multicast endpoint joined %s on %s", group, conn.LocalAddr())

		// Unblock the read loop on cancellation.
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			<-ctx.Done()
			conn.Close()
		}()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			readDatagrams(ctx, c, &m.wg, &m.registry, func(buf []byte) (int, net.Addr, error) {
				n, _, src, err := p.ReadFrom(buf)
				return n, src, err
			})
		}()

		return conn.LocalAddr(), nil
	})
}

func (m *UDPMulticast) Stop() {
	m.stop(func() {
		m.groupLock.Lock()
		m.pconn, m.membership = nil, nil
		m.groupLock.Unlock()
	})
}

// Leave the current group and join ip. Without a live connection only the
// target group is recorded.
func (m *UDPMulticast) switchGroup(ip net.IP) error {
	m.groupLock.Lock()
	defer m.groupLock.Unlock()

	if ip.Equal(m.group) {
		return nil
	}

	if m.membership != nil {
		if err := m.membership.LeaveGroup(m.ifi, &net.UDPAddr{IP: m.group}); err != nil {
			m.GetLogger().Warnf("could not leave group %s: %v", m.group, err)
		}
		if err := m.membership.JoinGroup(m.ifi, &net.UDPAddr{IP: ip}); err != nil {
			return fmt.Errorf("error while joining group %s: %w", ip, err)
		}
	}

	m.group = ip
	return nil
}

// Send req to the group named by its host, the default group if the host is
// empty, on the request's port.
func (m *UDPMulticast) send(_ context.Context, req *proto.ActionMessage) error {
	ip := defaultGroup.IP
	if req.Host != "" {
		ip = net.ParseIP(req.Host)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: %q", ErrNotMulticast, req.Host)
		}
	}

	if err := m.switchGroup(ip); err != nil {
		return err
	}

	m.groupLock.Lock()
	p := m.pconn
	m.groupLock.Unlock()

	if p == nil {
		return ErrNotRunning
	}

	data, err := datagram(m.GetLogger(), req)
	if err != nil {
		return err
	}

	_, err = p.WriteTo(data, nil, &net.UDPAddr{IP: ip, Port: req.Port})
	return err
}
