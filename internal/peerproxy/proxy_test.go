package peerproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/transport"
	"tagstore-dht/internal/wire"
)

var testSpace, _ = domain.NewSpace(160, 3)

func startStubPeer(t *testing.T, handle func(wire.Message) any) domain.NodeRef {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go ln.Serve(ctx, func(conn net.Conn) {
		defer conn.Close()
		req, err := transport.ReadRequest(conn)
		if err != nil {
			return
		}
		reply, _ := wire.NewMessage(req.Header.CommandName, req.Header.Function, handle(req))
		transport.WriteReply(conn, reply)
	})

	addr := ln.Addr().(*net.TCPAddr)
	return domain.NodeRef{IP: "127.0.0.1", ChordPort: addr.Port, ID: testSpace.FromUint64(7)}
}

func TestPingRoundTrip(t *testing.T) {
	ref := startStubPeer(t, func(req wire.Message) any {
		return map[string]bool{"alive": true}
	})
	p := New(ref, time.Second, nil)
	alive, werr := p.Ping(context.Background())
	if werr != nil {
		t.Fatalf("ping: %v", werr)
	}
	if !alive {
		t.Fatal("expected alive=true")
	}
}

func TestGetRefNullMeansAbsent(t *testing.T) {
	ref := startStubPeer(t, func(req wire.Message) any {
		return map[string]any{"ref": nil}
	})
	p := New(ref, time.Second, nil)
	got, werr := p.GetRef(context.Background(), "predecessor")
	if werr != nil {
		t.Fatalf("getRef: %v", werr)
	}
	if got != nil {
		t.Fatalf("expected nil ref, got %v", got)
	}
}

func TestSetRefRoundTripsFullNodeRef(t *testing.T) {
	var captured refPayload
	ref := startStubPeer(t, func(req wire.Message) any {
		var in struct {
			Name string     `json:"name"`
			Ref  refPayload `json:"ref"`
		}
		_ = req.Decode(&in)
		captured = in.Ref
		return map[string]string{}
	})
	p := New(ref, time.Second, nil)
	self := domain.NodeRef{IP: "10.0.0.5", ChordPort: 10001, DataPort: 10000, Protocol: "tcp", ID: testSpace.FromUint64(42)}
	if werr := p.SetRef(context.Background(), "predecessor", self); werr != nil {
		t.Fatalf("setRef: %v", werr)
	}
	if captured.IP != "10.0.0.5" || captured.ChordPort != 10001 {
		t.Fatalf("peer did not receive full ref: %+v", captured)
	}
}

func TestPoolAddRefReusesProxy(t *testing.T) {
	ref := domain.NodeRef{IP: "127.0.0.1", ChordPort: 9999, ID: testSpace.FromUint64(1)}
	pool := NewPool(time.Second, nil)
	p1 := pool.AddRef(ref)
	p2 := pool.AddRef(ref)
	if p1 != p2 {
		t.Fatal("expected the same cached proxy for the same address")
	}
	if pool.Len() != 1 {
		t.Fatalf("expected 1 pooled entry, got %d", pool.Len())
	}
	pool.Release(ref)
	pool.Release(ref)
	if pool.Len() != 0 {
		t.Fatalf("expected 0 pooled entries after release, got %d", pool.Len())
	}
}
