// Package transport provides the default Control/DataTransport
// implementations: a plain TCP control socket, a multicast UDP data socket,
// and a WebSocket bridge for the control channel (WSControl). Hosts needing
// something else (TLS, a WebSocket data plane, an in-process pipe for tests)
// implement radiosession.ControlTransport /
// radiosession.DataTransport directly instead of using this package.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// UDPData is the default data-plane transport: a UDP socket joined to a
// multicast group, yielding whole datagrams via ReadFrame.
type UDPData struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
}

// DialUDPData opens a UDP socket listening on group's port on all local
// addresses and joins group on the named interface ("" lets the system
// choose).
func DialUDPData(group *net.UDPAddr, ifaceName string) (*UDPData, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: group.Port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: interface %q: %w", ifaceName, err)
		}
	}
	if err := pc.JoinGroup(iface, group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: join multicast group %s: %w", group, err)
	}

	return &UDPData{conn: conn, pc: pc}, nil
}

// ReadFrame blocks for one datagram, honoring ctx cancellation via a short
// read-deadline poll loop (net.UDPConn has no context-aware read).
func (u *UDPData) ReadFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 65536)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, err
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// Close leaves the multicast group and closes the socket.
func (u *UDPData) Close() error {
	return u.conn.Close()
}
