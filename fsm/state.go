// Package fsm implements the eBUS bus state machine: the 17-state driver
// that turns a stream of bytes observed on (and written to) the wire into
// passively-observed telegrams, reactive replies to telegrams addressed to
// this station, and actively-arbitrated outbound transmissions, together
// with the statistics counters of SPEC_FULL.md §4.5.
package fsm

// State is one of the 17 states of the bus state machine.
type State int

const (
	// PassiveReceiveMaster is the idle state: scanning for a non-SYN byte
	// that starts a master sequence, ours or someone else's.
	PassiveReceiveMaster State = iota
	// PassiveReceiveMasterAck awaits the addressed station's ACK/NAK to
	// an overheard master we are not party to.
	PassiveReceiveMasterAck
	// PassiveReceiveSlave collects the slave part of an overheard MS.
	PassiveReceiveSlave
	// PassiveReceiveSlaveAck awaits the overheard master's ACK/NAK to the
	// slave part.
	PassiveReceiveSlaveAck
	// ReactiveSendMasterPosAck emits our ACK to a master telegram
	// addressed to us.
	ReactiveSendMasterPosAck
	// ReactiveSendMasterNegAck emits our NAK to a master telegram
	// addressed to us whose CRC failed.
	ReactiveSendMasterNegAck
	// ReactiveSendSlave emits our slave response bytes.
	ReactiveSendSlave
	// ReactiveReceiveSlaveAck awaits the remote master's ACK/NAK to our
	// slave response.
	ReactiveReceiveSlaveAck
	// RequestBusFirstTry is the state right after writing our QQ for the
	// first arbitration attempt.
	RequestBusFirstTry
	// RequestBusPriorityRetry is entered after a priority-class tie,
	// waiting for the next SYN before retrying.
	RequestBusPriorityRetry
	// RequestBusSecondTry is the second arbitration attempt after a
	// priority-class tie.
	RequestBusSecondTry
	// ActiveSendMaster emits our master bytes after winning arbitration.
	ActiveSendMaster
	// ActiveReceiveMasterAck awaits the addressed station's ACK/NAK to
	// our master.
	ActiveReceiveMasterAck
	// ActiveReceiveSlave collects the slave response to our master.
	ActiveReceiveSlave
	// ActiveSendSlavePosAck emits our ACK for a valid received slave
	// response.
	ActiveSendSlavePosAck
	// ActiveSendSlaveNegAck emits our NAK for an invalid received slave
	// response.
	ActiveSendSlaveNegAck
	// ReleaseBus emits the trailing SYN that frees the bus at the end of
	// any cycle.
	ReleaseBus
)

var stateNames = [...]string{
	"passiveReceiveMaster",
	"passiveReceiveMasterAck",
	"passiveReceiveSlave",
	"passiveReceiveSlaveAck",
	"reactiveSendMasterPosAck",
	"reactiveSendMasterNegAck",
	"reactiveSendSlave",
	"reactiveReceiveSlaveAck",
	"requestBusFirstTry",
	"requestBusPriorityRetry",
	"requestBusSecondTry",
	"activeSendMaster",
	"activeReceiveMasterAck",
	"activeReceiveSlave",
	"activeSendSlavePosAck",
	"activeSendSlaveNegAck",
	"releaseBus",
}

// String renders the State by name, matching the reference
// implementation's stateString table.
func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Message classifies which role produced a telegram delivered to
// OnTelegram: one we overheard (Passive), one addressed to us that we
// answered (Reactive), or one we initiated (Active).
type Message int

const (
	// Passive telegrams were observed on the bus between two other
	// stations.
	Passive Message = iota
	// Reactive telegrams were addressed to us and we answered them.
	Reactive
	// Active telegrams were initiated by us via Enqueue/Transmit.
	Active
)

func (m Message) String() string {
	switch m {
	case Passive:
		return "passive"
	case Reactive:
		return "reactive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}
