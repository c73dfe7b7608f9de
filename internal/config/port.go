package config

import (
	"fmt"
	"net"
	"strconv"
)

// FindAvailablePort returns the first port in [start, max] that host can
// bind. The probe listener is closed before returning, so the port is only
// likely, not guaranteed, to still be free when the server binds it.
func FindAvailablePort(host string, start, max int) (int, error) {
	for port := start; port <= max; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", start, max)
}
