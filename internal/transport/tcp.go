// Package transport implements the two-channel wire model spec.md §4.2
// describes: framed JSON request/reply over TCP for unicast RPCs, and
// best-effort UDP multicast for election and discovery broadcasts.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"tagstore-dht/internal/wire"
)

// WaitCheck is the default per-call unicast timeout (spec.md §4.2, §5:
// "WAIT_CHECK = 5s"). ChordNode and PeerProxy derive their own maintenance
// periods from the same constant.
const WaitCheck = 5 * time.Second

// Dial opens a TCP connection to addr with the given timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialErr(addr, err)
	}
	return conn, nil
}

// Call dials addr, writes req, reads exactly one framed reply, and closes
// the connection — the "one task per accepted TCP connection, exactly one
// request-reply" shape spec.md §5 mandates for both sides of a call.
func Call(ctx context.Context, addr string, req wire.Message, timeout time.Duration) (wire.Message, error) {
	conn, err := Dial(ctx, addr, timeout)
	if err != nil {
		return wire.Message{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return wire.Message{}, fmt.Errorf("transport: set deadline: %w", err)
	}

	if err := wire.WriteFramed(conn, req); err != nil {
		return wire.Message{}, classifyIOErr(addr, err)
	}
	reply, err := wire.ReadFramed(conn)
	if err != nil {
		return wire.Message{}, classifyIOErr(addr, err)
	}
	return reply, nil
}

// Listener wraps a net.Listener and serves it with a handler, accepting
// one goroutine per connection (spec.md §5's accept-loop concurrency model).
type Listener struct {
	ln      net.Listener
	handler func(net.Conn)
}

// Listen binds addr for TCP and returns a Listener ready to Serve.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener closes,
// dispatching each to handle in its own goroutine.
func (l *Listener) Serve(ctx context.Context, handle func(conn net.Conn)) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		go handle(conn)
	}
}

// ReadRequest reads one framed request off conn with WaitCheck as the
// idle-read deadline.
func ReadRequest(conn net.Conn) (wire.Message, error) {
	_ = conn.SetReadDeadline(time.Now().Add(WaitCheck))
	msg, err := wire.ReadFramed(conn)
	if err != nil {
		return wire.Message{}, classifyIOErr(conn.RemoteAddr().String(), err)
	}
	return msg, nil
}

// WriteReply writes one framed reply to conn.
func WriteReply(conn net.Conn, msg wire.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(WaitCheck))
	if err := wire.WriteFramed(conn, msg); err != nil {
		return classifyIOErr(conn.RemoteAddr().String(), err)
	}
	return nil
}

// SourcePort extracts the TCP port a connection originated from. The
// router does not use it: peer vs client classification keys off the
// header's command_name.
func SourcePort(conn net.Conn) int {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

func classifyDialErr(addr string, err error) *wire.Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wire.NewError(wire.KindTimeout, "dial %s: timed out", addr)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return wire.NewError(wire.KindRefused, "dial %s: %v", addr, opErr.Err)
	}
	return wire.NewError(wire.KindTransport, "dial %s: %v", addr, err)
}

func classifyIOErr(addr string, err error) *wire.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wire.NewError(wire.KindTimeout, "%s: deadline exceeded", addr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wire.NewError(wire.KindTimeout, "%s: i/o timed out", addr)
	}
	if errors.Is(err, net.ErrClosed) {
		return wire.NewError(wire.KindTransport, "%s: connection closed", addr)
	}
	return wire.NewError(wire.KindTransport, "%s: %v", addr, err)
}
