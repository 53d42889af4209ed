package node

import (
	"context"
	"testing"

	"tagstore-dht/internal/config"
	"tagstore-dht/internal/domain"
)

func TestResolveSeedInitModeHasNoSeed(t *testing.T) {
	n := &Node{
		space: testSpace(t),
		cfg:   &config.Config{DHT: config.DHTConfig{Bootstrap: config.BootstrapConfig{Mode: "init"}}},
	}
	seed, err := n.resolveSeed(context.Background())
	if err != nil {
		t.Fatalf("resolveSeed: %v", err)
	}
	if seed != nil {
		t.Fatalf("expected no seed in init mode, got %+v", seed)
	}
}

func TestResolveSeedStaticModeParsesConfiguredPeer(t *testing.T) {
	n := &Node{
		space: testSpace(t),
		cfg: &config.Config{DHT: config.DHTConfig{Bootstrap: config.BootstrapConfig{
			Mode:  "static",
			Peers: []string{"10.0.0.9:10001"},
		}}},
	}
	seed, err := n.resolveSeed(context.Background())
	if err != nil {
		t.Fatalf("resolveSeed: %v", err)
	}
	if seed == nil {
		t.Fatal("expected a seed in static mode")
	}
	if seed.IP != "10.0.0.9" || seed.ChordPort != 10001 {
		t.Fatalf("unexpected seed: %+v", seed)
	}
	want := n.space.NewIdFromString("10.0.0.9:10001")
	if !seed.ID.Equal(want) {
		t.Fatalf("seed id not derived from address: got %s, want %s",
			seed.ID.ToHexString(true), want.ToHexString(true))
	}
}

func TestResolveSeedStaticModeRejectsBadAddr(t *testing.T) {
	n := &Node{
		space: testSpace(t),
		cfg: &config.Config{DHT: config.DHTConfig{Bootstrap: config.BootstrapConfig{
			Mode:  "static",
			Peers: []string{"not-an-address"},
		}}},
	}
	if _, err := n.resolveSeed(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed static bootstrap peer")
	}
}

func TestSelfReturnsConfiguredIdentity(t *testing.T) {
	ref := domain.NodeRef{IP: "127.0.0.1", ChordPort: 10001}
	n := &Node{self: ref}
	if got := n.Self(); got.IP != ref.IP || got.ChordPort != ref.ChordPort {
		t.Fatalf("Self() = %+v, want %+v", got, ref)
	}
}
