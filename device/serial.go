package device

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// Serial is a Device backed by a UART, opened via github.com/tarm/serial.
// Matches the wire parameters of the eBUS fieldbus: 2400 8-N-1.
type Serial struct {
	base

	Path string
	Baud int

	// OpenRetryMax bounds the number of Open attempts (default 10, per
	// the spec's set_open_retry_max).
	OpenRetryMax int
}

// NewSerial returns a Serial device for the given port path, defaulting
// Baud to 2400 (the eBUS line rate) if unset.
func NewSerial(path string, baud int, openRetryMax int) *Serial {
	if baud == 0 {
		baud = 2400
	}
	if openRetryMax == 0 {
		openRetryMax = 10
	}
	s := &Serial{Path: path, Baud: baud, OpenRetryMax: openRetryMax}
	s.base.openRetries = openRetryMax
	s.base.dial = s.dial
	return s
}

// dial opens the port with a short fixed read timeout; tarm/serial does
// not expose a per-Read deadline, so Recv on a Serial device does not
// apply the caller's timeout (1s passive, 10ms in-cycle): each read is
// bounded by this fixed 100ms port timeout instead.
func (s *Serial) dial() (io.ReadWriteCloser, error) {
	cfg := &serial.Config{
		Name:        s.Path,
		Baud:        s.Baud,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		Size:        8,
		ReadTimeout: 100 * time.Millisecond,
	}
	return serial.OpenPort(cfg)
}
