package fsm

import "sync"

// Counters is the plain struct of leaf counters the handler increments at
// each terminal event. Rollup fields (messagesTotal, errorsTotal, and so
// on) are never incremented directly: they are recomputed on read by
// Snapshot, matching the reference implementation's getCounters, so a
// leaf counter and its rollup can never drift apart.
type Counters struct {
	// Messages observed passively (we were not a party to the cycle).
	MessagesPassiveMS int
	MessagesPassiveMM int
	MessagesPassiveBC int

	// Messages answered reactively (addressed to us).
	MessagesReactiveMS int
	MessagesReactiveMM int
	MessagesReactiveBC int

	// Messages we initiated.
	MessagesActiveMS int
	MessagesActiveMM int
	MessagesActiveBC int

	// Errors observed while passively monitoring.
	ErrorsPassiveMaster    int
	ErrorsPassiveMasterAck int
	ErrorsPassiveSlave     int
	ErrorsPassiveSlaveAck  int

	// Errors while answering a telegram addressed to us.
	ErrorsReactiveMaster    int
	ErrorsReactiveMasterAck int
	ErrorsReactiveSlave     int
	ErrorsReactiveSlaveAck  int

	// Errors while we were the active initiator.
	ErrorsActiveMaster    int
	ErrorsActiveMasterAck int
	ErrorsActiveSlave     int
	ErrorsActiveSlaveAck  int

	// Resets, split by trigger.
	ResetsPassive00   int // a single stray 0x00 byte
	ResetsPassive0704 int // a 6-byte fragment whose PB/SB are 07 04
	ResetsPassive     int // any other passive reset
	ResetsActive      int

	// Arbitration/request outcomes.
	RequestsWon1  int // won on the first try
	RequestsWon2  int // won on the second try, after a priority retry
	RequestsRetry int // priority-class ties that went to a second try
	RequestsLost1 int // lost outright on the first try
	RequestsLost2 int // lost outright on the second try
	RequestsError int // rejected by Enqueue, or a priority retry interrupted by a non-SYN byte
}

// Snapshot is an immutable, fully-derived view of Counters, computed on
// read: all rollups (totals and percentages) are filled in here rather
// than maintained incrementally.
type Snapshot struct {
	Counters

	MessagesPassive  int
	MessagesReactive int
	MessagesActive   int
	MessagesTotal    int

	ErrorsPassive  int
	ErrorsReactive int
	ErrorsActive   int
	ErrorsTotal    int

	ResetsTotal int

	RequestsWon   int
	RequestsLost  int
	RequestsTotal int

	PassivePercent  float64
	ActivePercent   float64
	FailurePercent  float64

	RequestsWonPercent   float64
	RequestsLostPercent  float64
	RequestsErrorPercent float64
}

// CounterStore guards a Counters struct with a mutex so it may be read
// (via Snapshot) from a thread other than the driver's worker goroutine,
// per SPEC_FULL.md §9 "thread safety of counters".
type CounterStore struct {
	mu sync.Mutex
	c  Counters
}

// Reset zeroes every leaf counter.
func (s *CounterStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{}
}

// update runs fn with exclusive access to the underlying Counters; used
// internally by the handler to bump leaf counters.
func (s *CounterStore) update(fn func(c *Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.c)
}

// Snapshot takes an atomic copy of the counters and computes every
// derived rollup field.
func (s *CounterStore) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	out := Snapshot{Counters: c}
	out.MessagesPassive = c.MessagesPassiveMS + c.MessagesPassiveMM + c.MessagesPassiveBC
	out.MessagesReactive = c.MessagesReactiveMS + c.MessagesReactiveMM + c.MessagesReactiveBC
	out.MessagesActive = c.MessagesActiveMS + c.MessagesActiveMM + c.MessagesActiveBC
	out.MessagesTotal = out.MessagesPassive + out.MessagesReactive + out.MessagesActive

	out.ErrorsPassive = c.ErrorsPassiveMaster + c.ErrorsPassiveMasterAck + c.ErrorsPassiveSlave + c.ErrorsPassiveSlaveAck
	out.ErrorsReactive = c.ErrorsReactiveMaster + c.ErrorsReactiveMasterAck + c.ErrorsReactiveSlave + c.ErrorsReactiveSlaveAck
	out.ErrorsActive = c.ErrorsActiveMaster + c.ErrorsActiveMasterAck + c.ErrorsActiveSlave + c.ErrorsActiveSlaveAck
	out.ErrorsTotal = out.ErrorsPassive + out.ErrorsReactive + out.ErrorsActive

	out.ResetsTotal = c.ResetsPassive00 + c.ResetsPassive0704 + c.ResetsPassive + c.ResetsActive

	out.RequestsWon = c.RequestsWon1 + c.RequestsWon2
	out.RequestsLost = c.RequestsLost1 + c.RequestsLost2
	out.RequestsTotal = out.RequestsWon + out.RequestsLost + c.RequestsError

	total := float64(out.MessagesTotal)
	if total > 0 {
		out.PassivePercent = 100 * float64(out.MessagesPassive) / total
		out.ActivePercent = 100 * float64(out.MessagesActive) / total
		out.FailurePercent = 100 * float64(out.ErrorsTotal) / total
	}

	reqTotal := float64(out.RequestsTotal)
	if reqTotal > 0 {
		out.RequestsWonPercent = 100 * float64(out.RequestsWon) / reqTotal
		out.RequestsLostPercent = 100 * float64(out.RequestsLost) / reqTotal
		out.RequestsErrorPercent = 100 * float64(c.RequestsError) / reqTotal
	}
	return out
}
