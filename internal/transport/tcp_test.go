package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"tagstore-dht/internal/wire"
)

func TestCallRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ln.Serve(ctx, func(conn net.Conn) {
		defer conn.Close()
		req, err := ReadRequest(conn)
		if err != nil {
			return
		}
		reply, _ := wire.NewMessage(req.Header.CommandName, "echo", map[string]string{"ok": "yes"})
		WriteReply(conn, reply)
	})

	req, _ := wire.NewMessage("Ping", "ping", nil)
	reply, err := Call(context.Background(), ln.Addr().String(), req, WaitCheck)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply.Header.Function != "echo" {
		t.Fatalf("got function %q, want echo", reply.Header.Function)
	}
}

func TestCallRefusedWhenNoListener(t *testing.T) {
	_, err := Call(context.Background(), "127.0.0.1:1", wire.Message{}, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected error dialing a closed port")
	}
	werr, ok := err.(*wire.Error)
	if !ok {
		t.Fatalf("expected *wire.Error, got %T", err)
	}
	if werr.Kind != wire.KindRefused && werr.Kind != wire.KindTimeout && werr.Kind != wire.KindTransport {
		t.Fatalf("unexpected error kind %q", werr.Kind)
	}
}

func TestSourcePort(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	done := make(chan int, 1)
	go func() {
		conn, err := ln.ln.Accept()
		if err != nil {
			done <- 0
			return
		}
		defer conn.Close()
		done <- SourcePort(conn)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	localPort := conn.LocalAddr().(*net.TCPAddr).Port
	got := <-done
	if got != localPort {
		t.Fatalf("SourcePort = %d, want %d", got, localPort)
	}
}
