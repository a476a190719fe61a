package transport

import (
	"fmt"
	"net"
)

// DialControl opens a plain TCP control connection. The returned net.Conn
// satisfies radiosession.ControlTransport directly.
func DialControl(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial control %s: %w", addr, err)
	}
	return conn, nil
}
