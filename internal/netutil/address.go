// Package netutil resolves the machine's primary network address.
package netutil

import (
	"fmt"
	"net"
)

// PrimaryAddress returns the IPv4 address the host uses for outbound traffic.
//
// It first asks the kernel for the source address of the default route (no
// packet is sent; UDP dial only resolves routing), then falls back to scanning
// the interfaces for a global unicast address. Restore has to work on hosts
// without internet access, so nothing here touches the network.
func PrimaryAddress() (string, error) {
	conn, err := net.Dial("udp4", "203.0.113.1:9")
	if err == nil {
		defer func() { _ = conn.Close() }()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsLoopback() {
			return addr.IP.String(), nil
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("failed to list interface addresses: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no usable network address found")
}
