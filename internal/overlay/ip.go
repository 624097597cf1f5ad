package overlay

import (
	"fmt"
	"net"
)

func parseIP(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address %q", s)
	}
	return ip, nil
}
