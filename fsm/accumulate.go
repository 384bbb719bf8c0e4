package fsm

import "github.com/ebusgo/ebusd/ebus"

// masterHeaderLen mirrors ebus.masterHeaderLen (QQ ZZ PB SB NN); kept
// local since the field itself is unexported in package ebus.
const masterHeaderLen = 5

// requiredMasterLen returns the total logical (unstuffed) byte count a
// complete wire-received master sequence must reach, given its NN field:
// header, data, and the CRC byte that is always present on the wire. This
// is the logical-byte-count invariant SPEC_FULL.md §9 calls DBx; it is
// computed here from the unstuffed copy on every incoming byte rather
// than tracked as a running increment, which is an equivalent and
// simpler expression of the same invariant.
func requiredMasterLen(nn int) int { return masterHeaderLen + nn + 1 }

// requiredSlaveLen is the slave-side analogue: NN byte, data, CRC.
func requiredSlaveLen(nn int) int { return 1 + nn + 1 }

// masterComplete inspects a stuffed accumulation buffer and reports
// whether enough wire bytes have arrived to attempt classification, and
// if so returns the unstuffed copy to classify. ready=false means keep
// accumulating.
func masterComplete(buf *ebus.Sequence) (unstuffed *ebus.Sequence, ready bool) {
	tmp := buf.Clone()
	tmp.Unstuff()
	if tmp.Len() < masterHeaderLen {
		return nil, false
	}
	nn := int(tmp.At(4))
	if nn > ebus.MaxData {
		// bad_nn is terminal regardless of how many more bytes arrive.
		return tmp, true
	}
	if tmp.Len() < requiredMasterLen(nn) {
		return nil, false
	}
	return tmp, true
}

// slaveComplete is the slave-side analogue of masterComplete.
func slaveComplete(buf *ebus.Sequence) (unstuffed *ebus.Sequence, ready bool) {
	tmp := buf.Clone()
	tmp.Unstuff()
	if tmp.Len() < 1 {
		return nil, false
	}
	nn := int(tmp.At(0))
	if nn > ebus.MaxData {
		return tmp, true
	}
	if tmp.Len() < requiredSlaveLen(nn) {
		return nil, false
	}
	return tmp, true
}

// buildWireSequence turns unstuffed data bytes into a complete,
// CRC-terminated, stuffed wire sequence ready for byte-by-byte
// transmission: used for our own slave responses (ReactiveSendSlave).
// Our active master telegrams are stuffed separately, in receiveRequestBus.
func buildWireSequence(header byte, data []byte) *ebus.Sequence {
	seq := ebus.NewSequence()
	seq.Push(header, false)
	for _, b := range data {
		seq.Push(b, false)
	}
	crc := seq.CRC()
	seq.Push(crc, false)
	seq.Stuff()
	return seq
}
