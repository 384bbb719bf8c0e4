// Package driver runs the bus state machine against a device.Device,
// supplying the read-a-byte/react-once loop and the phase-specific
// timeouts the protocol requires. It is deliberately the only place that
// owns the device: per the concurrency model, nothing else may call
// Send/Recv on it while a Driver is running.
package driver

import (
	"sync"
	"time"

	"github.com/ebusgo/ebusd/device"
	"github.com/ebusgo/ebusd/ebus"
	"github.com/ebusgo/ebusd/fsm"
)

// idleTimeout is the read deadline while only monitoring the bus.
const idleTimeout = 1 * time.Second

// cycleTimeout is the read deadline once a cycle is in flight, waiting on
// an ACK or a peer's next byte.
const cycleTimeout = 10 * time.Millisecond

// Driver pairs a device.Device with a fsm.Handler and runs the polling
// loop that drives one from the other, either embedded (the caller calls
// Step in its own loop) or hosted (Run spawns the worker goroutine).
type Driver struct {
	Dev     device.Device
	Handler *fsm.Handler

	mu     sync.Mutex
	online bool
	stop   chan struct{}
	done   chan struct{}
}

// New wires dev and h together; dev must not yet be open.
func New(dev device.Device, h *fsm.Handler) *Driver {
	d := &Driver{Dev: dev, Handler: h}
	h.SetWriteFunc(dev.Send)
	return d
}

// Online reports whether the device connection is currently believed up.
func (d *Driver) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func (d *Driver) setOnline(v bool) {
	d.mu.Lock()
	d.online = v
	d.mu.Unlock()
}

// Open opens the underlying device and marks the driver online. It must
// be called before Step or Run.
func (d *Driver) Open() error {
	if err := d.Dev.Open(); err != nil {
		return err
	}
	d.Handler.Queue().Reopen()
	d.setOnline(true)
	return nil
}

// Close closes the device, fails every request still waiting in the queue
// with a device error, and marks the driver offline. A request already
// dequeued and in flight is not failed by Close. Subsequent Enqueue calls
// on the handler fail with an offline error until Open succeeds again.
func (d *Driver) Close() error {
	d.setOnline(false)
	d.Handler.Queue().Close(&ebus.Error{Kind: ebus.KindDevice})
	return d.Dev.Close()
}

// Step performs one iteration of the driver loop: read one byte (or time
// out), feed it through the handler, and apply the arbitration settle
// delay if the handler just transmitted our address. It is the embedded/
// polled entry point; callers drive their own loop with it.
func (d *Driver) Step() error {
	timeout := idleTimeout
	if d.Handler.GetState() != fsm.PassiveReceiveMaster {
		timeout = cycleTimeout
	}

	b, err := d.Dev.Recv(timeout)
	if err != nil {
		if err == device.ErrTimeout {
			d.Handler.HandleTimeout()
			return nil
		}
		d.setOnline(false)
		d.Handler.Queue().Close(&ebus.Error{Kind: ebus.KindDevice, Err: err})
		return err
	}

	d.Handler.Run(b)

	switch d.Handler.GetState() {
	case fsm.RequestBusFirstTry, fsm.RequestBusSecondTry:
		time.Sleep(d.Handler.AccessTimeout())
	}
	return nil
}

// Run spawns the worker goroutine that calls Step in a loop until Stop is
// called or Step reports a hard device error. It is the hosted/threaded
// entry point.
func (d *Driver) Run() {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	stop, done := d.stop, d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := d.Step(); err != nil {
				return
			}
		}
	}()
}

// Stop signals the worker goroutine started by Run to exit and waits for
// it to do so. It does not close the device; call Close separately.
func (d *Driver) Stop() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
