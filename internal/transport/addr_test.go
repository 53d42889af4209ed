package transport

import (
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"10.0.0.5", true},
		{"172.16.4.1", true},
		{"192.168.1.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}
	for _, c := range cases {
		t.Run(c.ip, func(t *testing.T) {
			got := isPrivateIP(net.ParseIP(c.ip))
			if got != c.want {
				t.Fatalf("isPrivateIP(%s) = %v, want %v", c.ip, got, c.want)
			}
		})
	}
}

func TestIsSelfAddr(t *testing.T) {
	local := []net.IP{net.ParseIP("192.168.1.10")}
	if !IsSelfAddr(net.ParseIP("127.0.0.1"), local) {
		t.Fatal("loopback should be self")
	}
	if !IsSelfAddr(net.ParseIP("192.168.1.10"), local) {
		t.Fatal("matching local IP should be self")
	}
	if IsSelfAddr(net.ParseIP("192.168.1.11"), local) {
		t.Fatal("non-matching IP should not be self")
	}
}

func TestResolveHost(t *testing.T) {
	got, err := ResolveHost("10.1.1.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "10.1.1.1" {
		t.Fatalf("ResolveHost = %q, want 10.1.1.1", got)
	}
}
