// Package device implements the byte-level transport the eBUS bus state
// machine drives: open/close a connection to the bus adapter, and send or
// receive a single byte with a deadline. Two concrete transports are
// provided: a UART (device.Serial) and a TCP gateway (device.Network).
package device

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// ErrNotOpen is returned by Send/Recv when the device has not been
// successfully opened yet.
var ErrNotOpen = errors.New("device: not connected")

// ErrTimeout is returned by Recv when no byte arrives within the deadline.
var ErrTimeout = errors.New("device: read timeout")

// Device is the abstraction the driver loop consumes: open/close a
// connection, and exchange single bytes with a deadline.
type Device interface {
	io.Closer

	// Open establishes the underlying connection, retrying with backoff
	// per the configured OpenRetryMax.
	Open() error

	// IsOpen reports whether the device currently believes it is
	// connected. It does not perform I/O.
	IsOpen() bool

	// Send writes a single byte.
	Send(b byte) error

	// Recv reads a single byte, returning ErrTimeout if none arrives
	// within timeout.
	Recv(timeout time.Duration) (byte, error)
}

// openRetryPolicy builds the exponential backoff policy used while
// (re)opening a device, bounded by maxAttempts per the spec's
// `open_retry_max` (default 10).
func openRetryPolicy(maxAttempts int) backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      0, // bounded by attempt count below, not elapsed time
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return backoff.WithMaxRetries(eb, uint64(maxAttempts-1))
}

// base holds the fields and retry/open plumbing common to every Device
// implementation; concrete transports embed it and supply a dial function.
type base struct {
	mu          sync.Mutex
	conn        io.ReadWriteCloser
	open        bool
	openRetries int
	dial        func() (io.ReadWriteCloser, error)
}

func (b *base) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil
	}
	var conn io.ReadWriteCloser
	op := func() error {
		c, err := b.dial()
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, openRetryPolicy(b.openRetries)); err != nil {
		return err
	}
	b.conn = conn
	b.open = true
	return nil
}

func (b *base) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	err := b.conn.Close()
	b.open = false
	b.conn = nil
	return err
}

func (b *base) Send(p byte) error {
	b.mu.Lock()
	conn := b.conn
	open := b.open
	b.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	_, err := conn.Write([]byte{p})
	return err
}

// deadlineConn is implemented by net.Conn and *serial.Port-like types that
// support a read deadline; transports without one (e.g. a plain pipe in
// tests) fall back to no per-call deadline.
type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

func (b *base) Recv(timeout time.Duration) (byte, error) {
	b.mu.Lock()
	conn := b.conn
	open := b.open
	b.mu.Unlock()
	if !open {
		return 0, ErrNotOpen
	}
	if dc, ok := conn.(deadlineConn); ok {
		_ = dc.SetReadDeadline(time.Now().Add(timeout))
	}
	var buf [1]byte
	n, err := conn.Read(buf[:])
	if err != nil {
		if isTimeout(err) {
			return 0, ErrTimeout
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return buf[0], nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
