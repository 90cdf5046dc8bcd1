package tunnel

import (
	"fmt"
	"net"
	"strings"
)

// LanIPs returns the machine's non-loopback IPv4 addresses, with the default
// route address first when it can be determined.
func LanIPs() []string {
	var ips []string
	seen := make(map[string]bool)

	add := func(ip string) {
		if ip == "" || strings.HasPrefix(ip, "127.") || seen[ip] {
			return
		}
		seen[ip] = true
		ips = append(ips, ip)
	}

	// The default route interface is the address collaborators can most
	// likely reach; a UDP dial never sends a packet but resolves it.
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			add(addr.IP.String())
		}
		conn.Close()
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.To4() == nil {
			continue
		}
		add(ipNet.IP.String())
	}
	return ips
}

// Links builds the set of access URLs for the shared server: localhost, the
// LAN addresses when LAN sharing is enabled, and whatever public tunnels are
// currently up.
func Links(port int, lanEnabled bool, tunnels []Info) map[string]string {
	links := map[string]string{
		"localhost": fmt.Sprintf("http://localhost:%d", port),
	}

	if lanEnabled {
		for i, ip := range LanIPs() {
			key := "lan"
			if i > 0 {
				key = fmt.Sprintf("lan%d", i+1)
			}
			links[key] = fmt.Sprintf("http://%s:%d", ip, port)
		}
	}

	for _, info := range tunnels {
		if info.Running && info.URL != "" {
			links[info.Name] = info.URL
		}
	}
	return links
}
