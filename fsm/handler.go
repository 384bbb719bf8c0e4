package fsm

import (
	"time"

	"github.com/ebusgo/ebusd/ebus"
	"github.com/ebusgo/ebusd/logger"
)

// defaultAccessTimeout is the settle time between writing our own address
// during arbitration and reading back its echo, matching the reference
// implementation's default of 4400us.
const defaultAccessTimeout = 4400 * time.Microsecond

// defaultMaxLockCounter is the default, and the value the handler falls
// back to if SetMaxLockCounter is given anything above 25: this clamp is
// a deliberate guard against a misbehaving station starving the bus, not
// a bug, per SPEC_FULL.md §2.3.
const defaultMaxLockCounter = 3

// maxMaxLockCounter is the upper bound accepted by SetMaxLockCounter
// before it falls back to defaultMaxLockCounter.
const maxMaxLockCounter = 25

// Responder builds the slave response bytes (NN D1..Dn, unstuffed, no
// CRC) for a master telegram addressed to us. ok=false means no response
// is available and the cycle should be NAKed.
type Responder func(master *ebus.Telegram) (data []byte, ok bool)

// Handler is the eBUS bus state machine: receive/reactive-reply/
// arbitrate/active-transmit/release, driven one byte at a time by Run.
// A Handler is not safe for concurrent use except through its Counters
// snapshot and its Queue, which are internally synchronized; Run, Receive
// and Send must only ever be called from the single driver-loop goroutine
// that owns the bus.
type Handler struct {
	address        byte
	slaveAddress   byte
	maxLockCounter byte
	lockCounter    byte
	accessTimeout  time.Duration

	state State

	// passive/reactive cycle state. passiveSlave doubles as the buffer
	// for bytes we are about to *send* in ReactiveSendSlave: active and
	// passive/reactive cycles never overlap in time, so the two uses
	// never collide (SPEC_FULL.md §9, "shared per-cycle buffers").
	passiveTelegram       *ebus.Telegram
	passiveMaster         *ebus.Sequence
	passiveMasterRepeated bool
	passiveSlave          *ebus.Sequence
	passiveSlaveIndex     int
	passiveSlaveRepeated  bool

	// active (we originated the cycle) state.
	active                bool
	activeTelegram        *ebus.Telegram
	activeWireMaster      *ebus.Sequence
	activeMasterIndex     int
	activeMasterRepeated  bool
	activeSlave           *ebus.Sequence
	activeSlaveRepeated   bool

	current *ebus.OutboundRequest
	queue   *ebus.Queue

	counters CounterStore

	log       logger.Logger
	writeByte func(byte) error
	busReady  func() bool
	respond   Responder

	onTelegram func(Message, *ebus.Telegram)
	onError    func(error)
	rawTrace   func(string)
}

// NewHandler returns a Handler for the given station address, with the
// default lock counter (3) and a no-op logger; callers should call
// SetWriteFunc and, if they want reactive replies, SetResponder before
// driving it with Run.
func NewHandler(address byte) *Handler {
	h := &Handler{
		maxLockCounter: defaultMaxLockCounter,
		lockCounter:    defaultMaxLockCounter,
		accessTimeout:  defaultAccessTimeout,
		queue:          ebus.NewQueue(),
		log:            logger.Nop{},
		busReady:       func() bool { return true },
		state:          PassiveReceiveMaster,
	}
	h.SetAddress(address)
	h.resetPassive()
	h.resetActive()
	return h
}

// SetAddress sets the station's own master address. An invalid (non-
// master) byte falls back to 0xFF, matching the reference
// implementation's setAddress; 0xFF is itself a valid master address.
func (h *Handler) SetAddress(address byte) {
	if ebus.IsMaster(address) {
		h.address = address
	} else {
		h.address = 0xFF
	}
	h.slaveAddress = ebus.SlaveAddress(h.address)
}

// GetAddress returns the station's own master address.
func (h *Handler) GetAddress() byte { return h.address }

// GetSlaveAddress returns the slave address paired to the station's own
// master address.
func (h *Handler) GetSlaveAddress() byte { return h.slaveAddress }

// SetMaxLockCounter sets the number of idle SYNs the station must observe
// after a completed cycle before it may arbitrate again. Values above 25
// fall back to the default of 3.
func (h *Handler) SetMaxLockCounter(n byte) {
	if n > maxMaxLockCounter {
		n = defaultMaxLockCounter
	}
	h.maxLockCounter = n
	h.lockCounter = n
}

// SetAccessTimeoutUs sets the settle time, in microseconds, the driver
// loop should wait after writing our own address during arbitration
// before reading back its echo.
func (h *Handler) SetAccessTimeoutUs(us uint16) {
	h.accessTimeout = time.Duration(us) * time.Microsecond
}

// AccessTimeout returns the current arbitration echo settle time, for the
// driver loop to apply after a byte is sent in RequestBusFirstTry or
// RequestBusSecondTry.
func (h *Handler) AccessTimeout() time.Duration { return h.accessTimeout }

// SetLogger installs the trace sink; defaults to a no-op logger.
func (h *Handler) SetLogger(l logger.Logger) {
	if l == nil {
		l = logger.Nop{}
	}
	h.log = l
}

// SetWriteFunc installs the callback used to emit a single byte onto the
// bus. It must be set before Run is called.
func (h *Handler) SetWriteFunc(fn func(byte) error) { h.writeByte = fn }

// SetBusReadyFunc installs the callback consulted before arbitrating: it
// must return true only when there is no other reason to hold off
// (matching the reference "is_data_available" check, inverted to a
// readiness sense). Defaults to always-ready.
func (h *Handler) SetBusReadyFunc(fn func() bool) { h.busReady = fn }

// SetResponder installs the callback used to build our slave response to
// a master telegram addressed to us.
func (h *Handler) SetResponder(r Responder) { h.respond = r }

// OnTelegram installs the callback invoked once per completed cycle with
// the fully classified Telegram and the role (Passive/Reactive/Active) we
// played in it.
func (h *Handler) OnTelegram(fn func(Message, *ebus.Telegram)) { h.onTelegram = fn }

// OnError installs the callback invoked for a terminal error that has no
// owning OutboundRequest to fail: an active-side failure after the
// request was already released, or a failed bus write outside a request.
// Failures of passively observed or reactive cycles are only counted in
// Counters; they are not reported through this callback.
func (h *Handler) OnError(fn func(error)) { h.onError = fn }

// SetRawTrace installs a plain single-line trace firehose, independent of
// the structured Logger, matching the reference's dual observer surface.
func (h *Handler) SetRawTrace(fn func(string)) { h.rawTrace = fn }

// GetState returns the current bus-state-machine state.
func (h *Handler) GetState() State { return h.state }

// IsActive reports whether the handler currently owns the bus for an
// outbound cycle it initiated.
func (h *Handler) IsActive() bool { return h.active }

// Queue returns the outbound request queue, for direct inspection (Len)
// or for a caller that wants to build its own OutboundRequest lifecycle.
func (h *Handler) Queue() *ebus.Queue { return h.queue }

// Counters returns a live snapshot of the statistics counters.
func (h *Handler) Counters() Snapshot { return h.counters.Snapshot() }

// ResetCounters zeroes every counter.
func (h *Handler) ResetCounters() { h.counters.Reset() }

// Reset returns the handler to its initial idle state, discarding any
// in-flight passive or active cycle. It does not touch the queue.
func (h *Handler) Reset() {
	h.state = PassiveReceiveMaster
	h.resetPassive()
	h.resetActive()
}

// Enqueue submits a master telegram (ZZ PB SB NN D1..Dn) for active
// transmission, returning the OutboundRequest the caller waits on for
// its outcome. It fails fast if payload does not classify as a valid
// master sequence, or if the driver is offline.
func (h *Handler) Enqueue(payload []byte) (*ebus.OutboundRequest, error) {
	req, err := h.queue.Enqueue(h.address, payload)
	if err != nil {
		h.counters.update(func(c *Counters) { c.RequestsError++ })
		return nil, err
	}
	return req, nil
}

// Transmit is the blocking convenience form of Enqueue: it submits
// payload and waits for the cycle to complete, returning the slave
// response bytes (nil for MM/BC) or the terminal error.
func (h *Handler) Transmit(payload []byte) ([]byte, error) {
	req, err := h.Enqueue(payload)
	if err != nil {
		return nil, err
	}
	slave, err := req.Wait()
	if err != nil {
		return nil, err
	}
	if slave == nil {
		return nil, nil
	}
	return slave.Bytes(), nil
}

// Run feeds one observed wire byte through Receive and then lets Send
// emit at most one outbound byte in response, matching the driver loop's
// read-one/react-once cadence.
func (h *Handler) Run(b byte) {
	h.Receive(b)
	h.Send()
}

func (h *Handler) resetPassive() {
	h.passiveTelegram = nil
	h.passiveMaster = ebus.NewSequence()
	h.passiveMasterRepeated = false
	h.passiveSlave = ebus.NewSequence()
	h.passiveSlaveIndex = 0
	h.passiveSlaveRepeated = false
}

func (h *Handler) resetActive() {
	h.active = false
	h.activeTelegram = nil
	h.activeWireMaster = nil
	h.activeMasterIndex = 0
	h.activeMasterRepeated = false
	h.activeSlave = ebus.NewSequence()
	h.activeSlaveRepeated = false
	h.current = nil
	h.lockCounter = h.maxLockCounter
}

func (h *Handler) trace(format string, args ...interface{}) {
	h.log.Tracef(format, args...)
}
