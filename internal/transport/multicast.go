package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// MulticastGroup is a joined UDP multicast socket used for both the
// election channel (port 10002) and the discovery channel (port 10003)
// — spec.md §6 defines them as two independent groups sharing one
// transport shape.
type MulticastGroup struct {
	conn     *net.UDPConn
	pconn    *ipv4.PacketConn
	groupUDP *net.UDPAddr
	localIPs []net.IP
}

// JoinMulticast binds port, joins group on the system-assigned multicast
// interface (a nil interface is passed to net.ListenMulticastUDP), and
// returns a MulticastGroup ready to Send/Receive. SO_REUSEADDR semantics
// come from net.ListenMulticastUDP, which binds the wildcard address and
// lets multiple processes on the same host share the port.
func JoinMulticast(group string, port int) (*MulticastGroup, error) {
	groupUDP := &net.UDPAddr{IP: net.ParseIP(group), Port: port}

	conn, err := net.ListenMulticastUDP("udp4", nil, groupUDP)
	if err != nil {
		return nil, fmt.Errorf("transport: join multicast %s:%d: %w", group, port, err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: disable multicast loopback: %w", err)
	}

	localIPs, err := LocalIPv4s()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &MulticastGroup{conn: conn, pconn: pconn, groupUDP: groupUDP, localIPs: localIPs}, nil
}

// Close leaves the multicast group and closes the socket.
func (g *MulticastGroup) Close() error {
	return g.conn.Close()
}

// Send marshals v as JSON and broadcasts it to the multicast group —
// "fire and forget", spec.md §4.2: the caller never learns whether any
// peer received it.
func (g *MulticastGroup) Send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal multicast payload: %w", err)
	}
	if _, err := g.conn.WriteToUDP(body, g.groupUDP); err != nil {
		return fmt.Errorf("transport: send multicast: %w", err)
	}
	return nil
}

// Datagram is one received multicast packet, already filtered for
// self-origin (spec.md §4.2: "filters out its own source IP and loopback").
type Datagram struct {
	From net.IP
	Body []byte
}

// Receive blocks for the next non-self multicast datagram, honoring ctx
// cancellation via a read-deadline poll loop.
func (g *MulticastGroup) Receive(ctx context.Context) (Datagram, error) {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return Datagram{}, ctx.Err()
		default:
		}
		if dl, ok := ctx.Deadline(); ok {
			_ = g.conn.SetReadDeadline(dl)
		} else {
			_ = g.conn.SetReadDeadline(deadlineSoon())
		}
		n, src, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if asTimeout(err, &netErr) && netErr.Timeout() {
				continue
			}
			return Datagram{}, fmt.Errorf("transport: receive multicast: %w", err)
		}
		if IsSelfAddr(src.IP, g.localIPs) {
			continue
		}
		body := make([]byte, n)
		copy(body, buf[:n])
		return Datagram{From: src.IP, Body: body}, nil
	}
}

func deadlineSoon() time.Time {
	return time.Now().Add(time.Second)
}

func asTimeout(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}
