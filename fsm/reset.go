package fsm

import "github.com/ebusgo/ebusd/ebus"

// resetCause classifies why a cycle was abandoned, for statistics.
type resetCause int

const (
	resetOther resetCause = iota
	resetStray00
	resetIdentFragment
)

// classifyPassiveReset inspects the partially accumulated master buffer at
// the moment a cycle is abandoned and reports which reset counter it
// belongs under: a lone stray 0x00 byte, a 6-byte fragment whose PB/SB
// read 07 04 (an identification-request fragment that never completed),
// or any other partial fragment.
func classifyPassiveReset(buf *ebus.Sequence) resetCause {
	tmp := buf.Clone()
	tmp.Unstuff()
	switch {
	case tmp.Len() == 1 && tmp.At(0) == 0x00:
		return resetStray00
	case tmp.Len() == 6 && tmp.At(2) == 0x07 && tmp.At(3) == 0x04:
		return resetIdentFragment
	default:
		return resetOther
	}
}

// HandleTimeout is called by the driver loop when a read deadline expires.
// A timeout while idly monitoring the bus (PassiveReceiveMaster with
// nothing yet accumulated) is harmless and the caller should simply loop
// again. Any other timeout abandons whichever cycle was in flight,
// counts a reset, and returns the handler to PassiveReceiveMaster.
func (h *Handler) HandleTimeout() {
	if h.state == PassiveReceiveMaster && h.passiveMaster.Len() == 0 {
		return
	}

	if h.active {
		h.counters.update(func(c *Counters) { c.ResetsActive++ })
		if h.current != nil {
			h.current.Fail(&ebus.Error{Kind: ebus.KindDevice})
			h.current = nil
		}
	} else {
		cause := classifyPassiveReset(h.passiveMaster)
		h.counters.update(func(c *Counters) {
			switch cause {
			case resetStray00:
				c.ResetsPassive00++
			case resetIdentFragment:
				c.ResetsPassive0704++
			default:
				c.ResetsPassive++
			}
		})
	}

	h.resetActive()
	h.state = PassiveReceiveMaster
	h.resetPassive()
}
