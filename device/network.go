package device

import (
	"io"
	"net"
	"time"
)

// Network is a Device backed by a TCP connection to an eBUS-over-network
// gateway (e.g. ebusd running elsewhere, bridged over a raw byte socket).
type Network struct {
	base

	Addr         string
	DialTimeout  time.Duration
	OpenRetryMax int
}

// NewNetwork returns a Network device for the given "host:port" address.
func NewNetwork(addr string, dialTimeout time.Duration, openRetryMax int) *Network {
	if dialTimeout == 0 {
		dialTimeout = 3 * time.Second
	}
	if openRetryMax == 0 {
		openRetryMax = 10
	}
	n := &Network{Addr: addr, DialTimeout: dialTimeout, OpenRetryMax: openRetryMax}
	n.base.openRetries = openRetryMax
	n.base.dial = n.dial
	return n
}

func (n *Network) dial() (io.ReadWriteCloser, error) {
	return net.DialTimeout("tcp", n.Addr, n.DialTimeout)
}
