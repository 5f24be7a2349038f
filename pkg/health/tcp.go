package health

import (
	"context"
	"net"
	"time"
)

// TCPChecker passes when Address accepts a connection
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return failed(start, "dial %s: %v", t.Address, err)
	}
	conn.Close()
	return passed(start, t.Address+" accepting connections")
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout bounds the dial
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
