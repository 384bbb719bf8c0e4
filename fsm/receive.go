package fsm

import "github.com/ebusgo/ebusd/ebus"

// Receive processes one byte observed on the bus, advancing the state
// machine. It never blocks and never itself writes to the bus; Send,
// called afterwards, emits at most one reply byte.
func (h *Handler) Receive(b byte) {
	switch h.state {
	case PassiveReceiveMaster:
		h.receivePassiveMaster(b)
	case PassiveReceiveMasterAck:
		h.receivePassiveMasterAck(b)
	case PassiveReceiveSlave:
		h.receivePassiveSlave(b)
	case PassiveReceiveSlaveAck:
		h.receivePassiveSlaveAck(b)
	case ReactiveSendMasterPosAck:
		h.receiveReactiveSendMasterAck(b, true)
	case ReactiveSendMasterNegAck:
		h.receiveReactiveSendMasterAck(b, false)
	case ReactiveSendSlave:
		h.receiveReactiveSendSlave(b)
	case ReactiveReceiveSlaveAck:
		h.receiveReactiveReceiveSlaveAck(b)
	case RequestBusFirstTry:
		h.receiveRequestBus(b, false)
	case RequestBusPriorityRetry:
		h.receiveRequestBusPriorityRetry(b)
	case RequestBusSecondTry:
		h.receiveRequestBus(b, true)
	case ActiveSendMaster:
		h.receiveActiveSendMaster(b)
	case ActiveReceiveMasterAck:
		h.receiveActiveReceiveMasterAck(b)
	case ActiveReceiveSlave:
		h.receiveActiveReceiveSlave(b)
	case ActiveSendSlavePosAck:
		h.receiveActiveSendSlaveAck(b, true)
	case ActiveSendSlaveNegAck:
		h.receiveActiveSendSlaveAck(b, false)
	case ReleaseBus:
		h.receiveReleaseBus(b)
	}
}

func (h *Handler) toPassive() {
	h.resetPassive()
	h.state = PassiveReceiveMaster
}

func (h *Handler) toRelease() {
	h.resetActive()
	h.state = ReleaseBus
}

// --- passive / reactive receive of an overheard or addressed master ---

func (h *Handler) receivePassiveMaster(b byte) {
	if b == ebus.SYN {
		h.onSyn()
		return
	}
	h.passiveMaster.Push(b, true)
	unstuffed, ready := masterComplete(h.passiveMaster)
	if !ready {
		return
	}
	h.finishPassiveMaster(unstuffed)
}

func (h *Handler) onSyn() {
	if h.lockCounter > 0 {
		h.lockCounter--
	}
	if h.lockCounter == 0 && h.busReady() {
		if req, ok := h.queue.TryDequeue(); ok {
			h.current = req
			h.active = true
			h.activeTelegram = req.Master
			h.activeMasterIndex = 0
			h.state = RequestBusFirstTry
			return
		}
	}
	// stay idle; the passive buffer is empty already between telegrams.
	h.passiveMaster.Clear()
}

func (h *Handler) finishPassiveMaster(m *ebus.Sequence) {
	t := ebus.NewTelegram()
	t.CreateMaster(m)
	h.passiveTelegram = t

	if t.MasterState() == ebus.StateBadQQ || t.MasterState() == ebus.StateBadZZ {
		h.counters.update(func(c *Counters) { c.ErrorsPassiveMaster++ })
		h.warnAndDrop(ebus.WarnMessageInvalid, "invalid master header: %s", t.MasterState())
		return
	}

	zz := m.At(1)
	typ := ebus.TypeOf(zz)
	t2 := t // for clarity below

	if typ == ebus.BroadcastType {
		if t2.MasterState() == ebus.StateOK {
			h.counters.update(func(c *Counters) { c.MessagesPassiveBC++ })
			h.deliver(Passive, t2)
		} else {
			h.counters.update(func(c *Counters) { c.ErrorsPassiveMaster++ })
		}
		h.toPassive()
		return
	}

	addressedToUs := (typ == ebus.MasterMaster && zz == h.address) ||
		(typ == ebus.MasterSlave && zz == h.slaveAddress)

	if addressedToUs {
		if t2.MasterState() == ebus.StateOK {
			h.state = ReactiveSendMasterPosAck
		} else {
			h.state = ReactiveSendMasterNegAck
		}
		return
	}

	h.state = PassiveReceiveMasterAck
}

func (h *Handler) receivePassiveMasterAck(b byte) {
	switch b {
	case ebus.ACK:
		if h.passiveTelegram.Type() == ebus.MasterSlave {
			h.state = PassiveReceiveSlave
			return
		}
		h.counters.update(func(c *Counters) { c.MessagesPassiveMM++ })
		h.deliver(Passive, h.passiveTelegram)
		h.toPassive()
	case ebus.NAK:
		if !h.passiveMasterRepeated {
			h.passiveMasterRepeated = true
			h.passiveMaster.Clear()
			h.warn(ebus.WarnAckNegativeRetry, "master retry after NAK")
			h.state = PassiveReceiveMaster
			return
		}
		h.counters.update(func(c *Counters) { c.ErrorsPassiveMasterAck++ })
		h.toPassive()
	default:
		h.counters.update(func(c *Counters) { c.ErrorsPassiveMasterAck++ })
		h.warnAndDrop(ebus.WarnMessageInvalid, "invalid master ack byte %#x", b)
	}
}

func (h *Handler) receivePassiveSlave(b byte) {
	h.passiveSlave.Push(b, true)
	unstuffed, ready := slaveComplete(h.passiveSlave)
	if !ready {
		return
	}
	h.passiveTelegram.CreateSlave(unstuffed)
	h.state = PassiveReceiveSlaveAck
}

func (h *Handler) receivePassiveSlaveAck(b byte) {
	switch b {
	case ebus.ACK:
		h.counters.update(func(c *Counters) { c.MessagesPassiveMS++ })
		h.deliver(Passive, h.passiveTelegram)
		h.toPassive()
	case ebus.NAK:
		if !h.passiveSlaveRepeated {
			h.passiveSlaveRepeated = true
			h.passiveSlave.Clear()
			h.warn(ebus.WarnAckNegativeRetry, "slave retry after NAK")
			h.state = PassiveReceiveSlave
			return
		}
		h.counters.update(func(c *Counters) { c.ErrorsPassiveSlaveAck++ })
		h.toPassive()
	default:
		h.counters.update(func(c *Counters) { c.ErrorsPassiveSlaveAck++ })
		h.warnAndDrop(ebus.WarnMessageInvalid, "invalid slave ack byte %#x", b)
	}
}

func (h *Handler) warn(w ebus.Warning, format string, args ...interface{}) {
	h.log.Warnf(format, args...)
	_ = w
}

func (h *Handler) warnAndDrop(w ebus.Warning, format string, args ...interface{}) {
	h.warn(w, format, args...)
	h.toPassive()
}

func (h *Handler) deliver(msg Message, t *ebus.Telegram) {
	if h.onTelegram != nil {
		h.onTelegram(msg, t)
	}
}

// --- reactive: we are the addressed station ---

func (h *Handler) receiveReactiveSendMasterAck(b byte, wasPositive bool) {
	expected := ebus.NAK
	if wasPositive {
		expected = ebus.ACK
	}
	if b != expected {
		h.warn(ebus.WarnByteDiff, "echo mismatch sending master ack: got %#x want %#x", b, expected)
	}
	if !wasPositive {
		if !h.passiveMasterRepeated {
			h.passiveMasterRepeated = true
			h.passiveMaster.Clear()
			h.state = PassiveReceiveMaster
			return
		}
		h.counters.update(func(c *Counters) { c.ErrorsReactiveMaster++ })
		h.toPassive()
		return
	}

	if h.passiveTelegram.Type() != ebus.MasterSlave {
		h.counters.update(func(c *Counters) { c.MessagesReactiveMM++ })
		h.deliver(Reactive, h.passiveTelegram)
		h.toPassive()
		return
	}

	var data []byte
	ok := false
	if h.respond != nil {
		data, ok = h.respond(h.passiveTelegram)
	}
	if !ok {
		data = nil
	}
	h.passiveSlave = buildWireSequence(byte(len(data)), data)
	h.passiveSlaveIndex = 0
	h.state = ReactiveSendSlave
}

func (h *Handler) receiveReactiveSendSlave(b byte) {
	expected := h.passiveSlave.At(h.passiveSlaveIndex)
	if b != expected {
		h.warn(ebus.WarnByteDiff, "echo mismatch sending slave response")
		h.counters.update(func(c *Counters) { c.ErrorsReactiveSlave++ })
		h.toPassive()
		return
	}
	h.passiveSlaveIndex++
	if h.passiveSlaveIndex >= h.passiveSlave.Len() {
		h.state = ReactiveReceiveSlaveAck
	}
}

func (h *Handler) receiveReactiveReceiveSlaveAck(b byte) {
	switch b {
	case ebus.ACK:
		h.counters.update(func(c *Counters) { c.MessagesReactiveMS++ })
		h.deliver(Reactive, h.passiveTelegram)
		h.toPassive()
	case ebus.NAK:
		if !h.passiveSlaveRepeated {
			h.passiveSlaveRepeated = true
			h.passiveSlaveIndex = 0
			h.warn(ebus.WarnAckNegativeRetry, "slave response retry after NAK")
			h.state = ReactiveSendSlave
			return
		}
		h.counters.update(func(c *Counters) { c.ErrorsReactiveSlaveAck++ })
		h.toPassive()
	default:
		h.counters.update(func(c *Counters) { c.ErrorsReactiveSlaveAck++ })
		h.warnAndDrop(ebus.WarnMessageInvalid, "invalid ack to our slave response %#x", b)
	}
}

// --- arbitration ---

func (h *Handler) fallBackToPassiveByte(b byte) {
	h.active = false
	h.resetPassive()
	h.state = PassiveReceiveMaster
	if b == ebus.SYN {
		h.onSyn()
		return
	}
	h.passiveMaster.Push(b, true)
	if unstuffed, ready := masterComplete(h.passiveMaster); ready {
		h.finishPassiveMaster(unstuffed)
	}
}

func (h *Handler) receiveRequestBus(b byte, secondTry bool) {
	qq := h.activeTelegram.Master().At(0)
	switch {
	case b == qq:
		h.activeMasterIndex = 1
		h.state = ActiveSendMaster
		h.activeWireMaster = h.activeTelegram.Master().Clone()
		h.activeWireMaster.Push(h.activeTelegram.MasterCRC(), false)
		h.activeWireMaster.Stuff()
		h.counters.update(func(c *Counters) {
			if secondTry {
				c.RequestsWon2++
			} else {
				c.RequestsWon1++
			}
		})
	case !secondTry && (b&0x0F) == (qq&0x0F):
		h.warn(ebus.WarnPriorityClassFitRetry, "priority class tie, waiting to retry")
		h.state = RequestBusPriorityRetry
	default:
		h.counters.update(func(c *Counters) {
			if secondTry {
				c.RequestsLost2++
			} else {
				c.RequestsLost1++
			}
		})
		h.queue.Requeue(h.current)
		h.current = nil
		h.fallBackToPassiveByte(b)
	}
}

func (h *Handler) receiveRequestBusPriorityRetry(b byte) {
	if b != ebus.SYN {
		h.counters.update(func(c *Counters) { c.RequestsError++ })
		h.queue.Requeue(h.current)
		h.current = nil
		h.fallBackToPassiveByte(b)
		return
	}
	h.counters.update(func(c *Counters) { c.RequestsRetry++ })
	h.state = RequestBusSecondTry
}

// --- active: we originated the cycle ---

func (h *Handler) receiveActiveSendMaster(b byte) {
	expected := h.activeWireMaster.At(h.activeMasterIndex)
	if b != expected {
		h.warn(ebus.WarnByteDiff, "echo mismatch sending master")
		h.counters.update(func(c *Counters) { c.ErrorsActiveMaster++ })
		h.failCurrent(ebus.KindTransmit, "echo mismatch sending master")
		h.toRelease()
		return
	}
	h.activeMasterIndex++
	if h.activeMasterIndex < h.activeWireMaster.Len() {
		return
	}
	if h.activeTelegram.Type() == ebus.BroadcastType {
		h.counters.update(func(c *Counters) { c.MessagesActiveBC++ })
		h.deliver(Active, h.activeTelegram)
		h.current.Complete(nil)
		h.toRelease()
		return
	}
	h.state = ActiveReceiveMasterAck
}

func (h *Handler) receiveActiveReceiveMasterAck(b byte) {
	switch b {
	case ebus.ACK:
		if h.activeTelegram.Type() == ebus.MasterMaster {
			h.counters.update(func(c *Counters) { c.MessagesActiveMM++ })
			h.deliver(Active, h.activeTelegram)
			h.current.Complete(nil)
			h.toRelease()
			return
		}
		h.activeSlave = ebus.NewSequence()
		h.state = ActiveReceiveSlave
	case ebus.NAK:
		if !h.activeMasterRepeated {
			h.activeMasterRepeated = true
			h.activeMasterIndex = 0
			h.warn(ebus.WarnAckNegativeRetry, "master retry after NAK")
			h.state = ActiveSendMaster
			return
		}
		h.counters.update(func(c *Counters) { c.ErrorsActiveMasterAck++ })
		h.failCurrent(ebus.KindTransmit, "master NAKed twice")
		h.toRelease()
	default:
		h.counters.update(func(c *Counters) { c.ErrorsActiveMasterAck++ })
		h.failCurrent(ebus.KindTransmit, "invalid master ack byte")
		h.toRelease()
	}
}

func (h *Handler) receiveActiveReceiveSlave(b byte) {
	h.activeSlave.Push(b, true)
	unstuffed, ready := slaveComplete(h.activeSlave)
	if !ready {
		return
	}
	h.activeTelegram.CreateSlave(unstuffed)
	if h.activeTelegram.SlaveState() == ebus.StateOK {
		h.state = ActiveSendSlavePosAck
		return
	}
	h.state = ActiveSendSlaveNegAck
}

func (h *Handler) receiveActiveSendSlaveAck(b byte, positive bool) {
	expected := ebus.NAK
	if positive {
		expected = ebus.ACK
	}
	if b != expected {
		h.warn(ebus.WarnByteDiff, "echo mismatch sending slave ack")
		h.counters.update(func(c *Counters) { c.ErrorsActiveSlaveAck++ })
		h.failCurrent(ebus.KindTransmit, "echo mismatch sending slave ack")
		h.toRelease()
		return
	}
	if positive {
		h.counters.update(func(c *Counters) { c.MessagesActiveMS++ })
		h.deliver(Active, h.activeTelegram)
		h.current.Complete(h.activeTelegram.Slave())
		h.toRelease()
		return
	}
	if !h.activeSlaveRepeated {
		h.activeSlaveRepeated = true
		h.activeSlave = ebus.NewSequence()
		h.warn(ebus.WarnResponseInvalidRetry, "slave response retry after our NAK")
		h.state = ActiveReceiveSlave
		return
	}
	h.counters.update(func(c *Counters) { c.ErrorsActiveSlave++ })
	h.failCurrent(ebus.KindTransmit, "slave response invalid twice")
	h.toRelease()
}

func (h *Handler) failCurrent(kind ebus.Kind, msg string) {
	if h.current == nil {
		if h.onError != nil {
			h.onError(&ebus.Error{Kind: kind})
		}
		return
	}
	h.current.Fail(&ebus.Error{Kind: kind})
	h.current = nil
}

func (h *Handler) receiveReleaseBus(byte) {
	h.lockCounter = h.maxLockCounter
	h.toPassive()
}
