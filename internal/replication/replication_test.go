package replication

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"tagstore-dht/internal/chord"
	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/peerproxy"
	"tagstore-dht/internal/transport"
	"tagstore-dht/internal/wire"
)

type fakeSource struct {
	channel string
	rows    map[string]Row
	applied []Row
}

func newFakeSource(channel string) *fakeSource {
	return &fakeSource{channel: channel, rows: make(map[string]Row)}
}

func (f *fakeSource) Channel() string { return f.channel }

func (f *fakeSource) ListSince(since int64) ([]Row, error) {
	var out []Row
	for _, r := range f.rows {
		if r.UpdatedAt >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) ApplyDelta(rows []Row) error {
	for _, row := range rows {
		existing, ok := f.rows[row.Key]
		if !ok || Newer(row, existing) {
			f.rows[row.Key] = row
		}
	}
	f.applied = append(f.applied, rows...)
	return nil
}

func newTestState(t *testing.T, idByte byte) *chord.State {
	t.Helper()
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := domain.NodeRef{IP: "127.0.0.1", ChordPort: 10001, ID: domain.ID{idByte}}
	return chord.New(self, sp, 3, nil)
}

func TestNewerPrefersLaterTimestamp(t *testing.T) {
	a := Row{UpdatedAt: 10}
	b := Row{UpdatedAt: 5}
	if !Newer(a, b) {
		t.Fatal("expected a to be newer than b")
	}
	if Newer(b, a) {
		t.Fatal("expected b to not be newer than a")
	}
}

func TestNewerTombstoneDoesNotWinAtEqualTimestamp(t *testing.T) {
	live := Row{UpdatedAt: 10, Deleted: false}
	tomb := Row{UpdatedAt: 10, Deleted: true}
	if Newer(tomb, live) {
		t.Fatal("expected a tombstone to not replace a live row at equal timestamp")
	}
	if Newer(live, tomb) {
		t.Fatal("expected a live row to not override a tombstone at equal timestamp")
	}
}

func TestHandleGetReplicationFiltersBySince(t *testing.T) {
	state := newTestState(t, 0x10)
	pool := peerproxy.NewPool(time.Second, nil)
	r := New(state, pool, 3, nil)

	src := newFakeSource("catalog")
	src.rows["a"] = Row{Key: "a", UpdatedAt: 5}
	src.rows["b"] = Row{Key: "b", UpdatedAt: 15}
	r.RegisterSource(src)

	delta, err := r.HandleGetReplication("catalog", 10)
	if err != nil {
		t.Fatalf("HandleGetReplication: %v", err)
	}
	var rows []Row
	if err := json.Unmarshal(delta.Rows, &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "b" {
		t.Fatalf("expected only row b since=10, got %+v", rows)
	}
}

func TestHandleUpdateReplicationAppliesRows(t *testing.T) {
	state := newTestState(t, 0x10)
	pool := peerproxy.NewPool(time.Second, nil)
	r := New(state, pool, 3, nil)

	src := newFakeSource("catalog")
	r.RegisterSource(src)

	body, _ := json.Marshal([]Row{{Key: "a", UpdatedAt: 1}})
	if err := r.HandleUpdateReplication("catalog", peerproxy.Delta{Rows: body}); err != nil {
		t.Fatalf("HandleUpdateReplication: %v", err)
	}
	if _, ok := src.rows["a"]; !ok {
		t.Fatal("expected row a to be applied")
	}
}

func TestPushMutationDeliversToSuccessor(t *testing.T) {
	var received []Row
	done := make(chan struct{})

	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx, func(conn net.Conn) {
		defer conn.Close()
		req, err := transport.ReadRequest(conn)
		if err != nil {
			return
		}
		var in struct {
			Channel string          `json:"channel"`
			Delta   peerproxy.Delta `json:"delta"`
		}
		_ = req.Decode(&in)
		_ = json.Unmarshal(in.Delta.Rows, &received)
		reply, _ := wire.NewMessage(req.Header.CommandName, req.Header.Function, map[string]string{})
		transport.WriteReply(conn, reply)
		close(done)
	})
	addr := ln.Addr().(*net.TCPAddr)

	state := newTestState(t, 0x10)
	succ := domain.NodeRef{IP: "127.0.0.1", ChordPort: addr.Port, ID: domain.ID{0x20}}
	state.SetSuccessorList([]domain.NodeRef{succ})

	pool := peerproxy.NewPool(time.Second, nil)
	r := New(state, pool, 2, nil)

	r.PushMutation(context.Background(), "catalog", Row{Key: "a", UpdatedAt: 1})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push")
	}
	if len(received) != 1 || received[0].Key != "a" {
		t.Fatalf("expected pushed row a, got %+v", received)
	}
}

func TestPullFullStateAppliesEveryRegisteredChannel(t *testing.T) {
	remoteRows := map[string][]Row{
		"catalog": {{Key: "a", UpdatedAt: 1}},
		"blob":    {{Key: "b", UpdatedAt: 2}},
	}

	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx, func(conn net.Conn) {
		defer conn.Close()
		req, err := transport.ReadRequest(conn)
		if err != nil {
			return
		}
		var in struct {
			Channel string `json:"channel"`
		}
		_ = req.Decode(&in)
		body, _ := json.Marshal(remoteRows[in.Channel])
		reply, _ := wire.NewMessage(req.Header.CommandName, req.Header.Function, peerproxy.Delta{Rows: body})
		transport.WriteReply(conn, reply)
	})
	addr := ln.Addr().(*net.TCPAddr)

	state := newTestState(t, 0x10)
	peer := domain.NodeRef{IP: "127.0.0.1", ChordPort: addr.Port, ID: domain.ID{0x20}}

	pool := peerproxy.NewPool(time.Second, nil)
	r := New(state, pool, 2, nil)
	catalogSrc := newFakeSource("catalog")
	blobSrc := newFakeSource("blob")
	r.RegisterSource(catalogSrc)
	r.RegisterSource(blobSrc)

	r.PullFullState(context.Background(), peer)

	if _, ok := catalogSrc.rows["a"]; !ok {
		t.Fatal("expected catalog row a to be pulled")
	}
	if _, ok := blobSrc.rows["b"]; !ok {
		t.Fatal("expected blob row b to be pulled")
	}
}
