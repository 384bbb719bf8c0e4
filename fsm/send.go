package fsm

import "github.com/ebusgo/ebusd/ebus"

// Send emits at most one byte onto the bus for the current state, via the
// write callback installed with SetWriteFunc. States that are purely
// receive-side (waiting on an echo or a peer's byte) emit nothing.
func (h *Handler) Send() {
	var b byte
	switch h.state {
	case ReactiveSendMasterPosAck:
		b = ebus.ACK
	case ReactiveSendMasterNegAck:
		b = ebus.NAK
	case ReactiveSendSlave:
		b = h.passiveSlave.At(h.passiveSlaveIndex)
	case RequestBusFirstTry, RequestBusSecondTry:
		b = h.address
	case ActiveSendMaster:
		b = h.activeWireMaster.At(h.activeMasterIndex)
	case ActiveSendSlavePosAck:
		b = ebus.ACK
	case ActiveSendSlaveNegAck:
		b = ebus.NAK
	case ReleaseBus:
		b = ebus.SYN
	default:
		return
	}
	if h.writeByte == nil {
		return
	}
	if err := h.writeByte(b); err != nil {
		if h.current != nil {
			h.current.Fail(&ebus.Error{Kind: ebus.KindDevice, Err: err})
			h.current = nil
		} else if h.onError != nil {
			h.onError(&ebus.Error{Kind: ebus.KindDevice, Err: err})
		}
		h.toPassive()
		return
	}
	if h.rawTrace != nil {
		h.rawTrace(ebus.BytesToHex([]byte{b}))
	}
}
