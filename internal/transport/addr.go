package transport

import (
	"fmt"
	"net"
)

// privateBlocks are the RFC1918 ranges pickIP treats as "this host's LAN
// address" when no explicit Host override is configured.
var privateBlocks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range privateBlocks {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// PickIP walks the host's network interfaces and returns the first private
// IPv4 address found, skipping down and loopback interfaces. It is the
// fallback used when a node is not configured with an explicit Host.
func PickIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("transport: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			ip4 := ip.To4()
			if ip4 == nil {
				continue
			}
			if isPrivateIP(ip4) {
				return ip4.String(), nil
			}
		}
	}
	return "", fmt.Errorf("transport: no private IPv4 address found on any interface")
}

// ResolveHost returns host if non-empty, otherwise falls back to PickIP.
func ResolveHost(host string) (string, error) {
	if host != "" {
		return host, nil
	}
	return PickIP()
}

// IsSelfAddr reports whether addr's host part names one of the host's own
// IPv4 addresses (including loopback) — used to drop self-originated
// multicast datagrams.
func IsSelfAddr(addr net.IP, localIPs []net.IP) bool {
	if addr.IsLoopback() {
		return true
	}
	for _, local := range localIPs {
		if addr.Equal(local) {
			return true
		}
	}
	return false
}

// LocalIPv4s returns every IPv4 address bound to an up interface on this
// host, loopback addresses included.
func LocalIPv4s() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("transport: list interfaces: %w", err)
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				out = append(out, ip4)
			}
		}
	}
	return out, nil
}
