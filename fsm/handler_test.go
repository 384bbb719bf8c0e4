package fsm_test

import (
	"testing"

	"github.com/ebusgo/ebusd/ebus"
	"github.com/ebusgo/ebusd/fsm"
)

// bus drives a Handler the way a real half-duplex wire does: any byte the
// handler writes is immediately read back as the next observed byte
// before any externally supplied ("foreign") byte is delivered.
type bus struct {
	h       *fsm.Handler
	written []byte
}

func newBus(h *fsm.Handler) *bus {
	b := &bus{h: h}
	h.SetWriteFunc(func(x byte) error {
		b.written = append(b.written, x)
		return nil
	})
	return b
}

// drive feeds foreign (bytes originating from some other station) through
// the handler, echoing back every self-written byte first.
func (b *bus) drive(foreign []byte) {
	fi := 0
	for {
		before := len(b.written)
		b.h.Send()
		if len(b.written) > before {
			b.h.Receive(b.written[len(b.written)-1])
			continue
		}
		if fi >= len(foreign) {
			return
		}
		b.h.Receive(foreign[fi])
		fi++
	}
}

// masterFrame builds a complete, stuffed, CRC-terminated master sequence
// as it would appear on the wire.
func masterFrame(qq, zz, pb, sb byte, data []byte) []byte {
	seq := ebus.NewSequence()
	seq.Push(qq, false)
	seq.Push(zz, false)
	seq.Push(pb, false)
	seq.Push(sb, false)
	seq.Push(byte(len(data)), false)
	for _, b := range data {
		seq.Push(b, false)
	}
	seq.Push(seq.CRC(), false)
	seq.Stuff()
	return append([]byte(nil), seq.Bytes()...)
}

// slaveFrame builds a complete, stuffed, CRC-terminated slave sequence.
func slaveFrame(data []byte) []byte {
	seq := ebus.NewSequence()
	seq.Push(byte(len(data)), false)
	for _, b := range data {
		seq.Push(b, false)
	}
	seq.Push(seq.CRC(), false)
	seq.Stuff()
	return append([]byte(nil), seq.Bytes()...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestPassiveMasterSlaveNormal(t *testing.T) {
	h := fsm.NewHandler(0x10) // not a party to this exchange
	var got *ebus.Telegram
	h.OnTelegram(func(m fsm.Message, tg *ebus.Telegram) {
		if m == fsm.Passive {
			got = tg
		}
	})
	b := newBus(h)

	master := masterFrame(0xFF, 0x52, 0xB5, 0x09, []byte{0x0D, 0x06, 0x00})
	slave := slaveFrame([]byte{0xB0, 0xFB, ebus.SYN}) // includes a byte needing stuffing
	foreign := concat([]byte{ebus.SYN, ebus.SYN, ebus.SYN}, master, []byte{ebus.ACK}, slave, []byte{ebus.ACK}, []byte{ebus.SYN, ebus.SYN, ebus.SYN})
	b.drive(foreign)

	if got == nil {
		t.Fatalf("no telegram delivered")
	}
	if !got.IsValid() {
		t.Fatalf("telegram not valid: master=%v slave=%v", got.MasterState(), got.SlaveState())
	}
	wantMaster := []byte{0xFF, 0x52, 0xB5, 0x09, 0x03, 0x0D, 0x06, 0x00}
	if got.Master().Len() != len(wantMaster) {
		t.Fatalf("master length = %d, want %d", got.Master().Len(), len(wantMaster))
	}
	for i, v := range wantMaster {
		if got.Master().At(i) != v {
			t.Errorf("master[%d] = %#x, want %#x", i, got.Master().At(i), v)
		}
	}
	wantSlave := []byte{0x03, 0xB0, 0xFB, ebus.SYN}
	if got.Slave().Len() != len(wantSlave) {
		t.Fatalf("slave length = %d, want %d", got.Slave().Len(), len(wantSlave))
	}
	for i, v := range wantSlave {
		if got.Slave().At(i) != v {
			t.Errorf("slave[%d] = %#x, want %#x", i, got.Slave().At(i), v)
		}
	}
	snap := h.Counters()
	if snap.MessagesPassiveMS != 1 {
		t.Errorf("MessagesPassiveMS = %d, want 1", snap.MessagesPassiveMS)
	}
	if h.GetState() != fsm.PassiveReceiveMaster {
		t.Errorf("state after terminal transition = %v, want PassiveReceiveMaster", h.GetState())
	}
}

func TestPassiveSlaveNAKThenACK(t *testing.T) {
	h := fsm.NewHandler(0x10)
	delivered := 0
	h.OnTelegram(func(fsm.Message, *ebus.Telegram) { delivered++ })
	b := newBus(h)

	master := masterFrame(0xFF, 0x52, 0xB5, 0x09, []byte{0x0D, 0x06, 0x00})
	slave := slaveFrame([]byte{0xB0, 0xFB})
	foreign := concat([]byte{ebus.SYN, ebus.SYN, ebus.SYN}, master, []byte{ebus.ACK}, slave, []byte{ebus.NAK}, slave, []byte{ebus.ACK, ebus.SYN})
	b.drive(foreign)

	if delivered != 1 {
		t.Fatalf("delivered %d telegrams, want 1", delivered)
	}
	snap := h.Counters()
	if snap.MessagesPassiveMS != 1 {
		t.Errorf("MessagesPassiveMS = %d, want 1", snap.MessagesPassiveMS)
	}
	if snap.ErrorsPassiveSlaveAck != 0 {
		t.Errorf("ErrorsPassiveSlaveAck = %d, want 0 (single retry should not count as an error)", snap.ErrorsPassiveSlaveAck)
	}
}

func TestActiveWinsArbitrationFirstTry(t *testing.T) {
	h := fsm.NewHandler(0x33)
	req, err := h.Enqueue([]byte{0x52, 0xB5, 0x09, 0x03, 0x0D, 0x46, 0x00})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b := newBus(h)

	slave := slaveFrame([]byte{0x01, 0x3F})
	foreign := concat([]byte{ebus.SYN, ebus.SYN, ebus.SYN}, []byte{ebus.ACK}, slave)
	b.drive(foreign)

	slave2, err := req.Wait()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	wantWritten := []byte{0x33, 0x52, 0xB5, 0x09, 0x03, 0x0D, 0x46, 0x00}
	if len(b.written) < len(wantWritten) {
		t.Fatalf("wrote %d bytes, want at least %d: % X", len(b.written), len(wantWritten), b.written)
	}
	for i, v := range wantWritten {
		if b.written[i] != v {
			t.Errorf("written[%d] = %#x, want %#x (% X)", i, b.written[i], v, b.written)
		}
	}
	if slave2 == nil || slave2.At(1) != 0x01 || slave2.At(2) != 0x3F {
		t.Errorf("slave data = %v, want 01 3F", slave2)
	}
	snap := h.Counters()
	if snap.RequestsWon1 != 1 {
		t.Errorf("RequestsWon1 = %d, want 1", snap.RequestsWon1)
	}
}

func TestArbitrationPriorityFitThenWin(t *testing.T) {
	h := fsm.NewHandler(0x33)
	_, err := h.Enqueue([]byte{0x52, 0xB5, 0x09, 0x03, 0x0D, 0x46, 0x00})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b := newBus(h)

	// Three idle SYNs run the lock counter down and start arbitration;
	// Send writes our QQ 0x33.
	for i := 0; i < 3; i++ {
		h.Receive(ebus.SYN)
	}
	h.Send()
	// 0x73 shares the low nibble (0x3) with our address 0x33: reading it
	// back instead of our own QQ is a priority tie on the first try, then
	// a clean SYN, then we win the retry.
	h.Receive(0x73)
	h.Receive(ebus.SYN)
	slave := slaveFrame([]byte{0x01, 0x3F})
	b.drive(concat([]byte{ebus.ACK}, slave))

	snap := h.Counters()
	if snap.RequestsRetry != 1 {
		t.Errorf("RequestsRetry = %d, want 1", snap.RequestsRetry)
	}
	if snap.RequestsWon2 != 1 {
		t.Errorf("RequestsWon2 = %d, want 1", snap.RequestsWon2)
	}
}

func TestBroadcastTransmit(t *testing.T) {
	h := fsm.NewHandler(0x33)
	req, err := h.Enqueue([]byte{0xFE, 0xB5, 0x05, 0x04, 0x27, 0x00, 0x2D, 0x00})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b := newBus(h)
	b.drive([]byte{ebus.SYN, ebus.SYN, ebus.SYN})

	if _, err := req.Wait(); err != nil {
		t.Fatalf("broadcast request failed: %v", err)
	}
	snap := h.Counters()
	if snap.MessagesActiveBC != 1 {
		t.Errorf("MessagesActiveBC = %d, want 1", snap.MessagesActiveBC)
	}
}

func TestReactiveMasterSlaveAnswer(t *testing.T) {
	h := fsm.NewHandler(0x33) // slave address 0x38
	h.SetResponder(func(master *ebus.Telegram) ([]byte, bool) {
		return []byte{0x50, 0x4D, 0x53}, true
	})
	var reactive *ebus.Telegram
	h.OnTelegram(func(m fsm.Message, tg *ebus.Telegram) {
		if m == fsm.Reactive {
			reactive = tg
		}
	})
	b := newBus(h)

	master := masterFrame(0x00, 0x38, 0x07, 0x04, nil)
	// The master header is well-formed and addressed to our slave address
	// (0x38), so we ACK it and reply with the responder's data; our own
	// ACK/slave-send bytes are produced by the handler itself and
	// auto-echoed by the harness. The remote master then ACKs our slave
	// response, which completes the cycle.
	foreign := concat([]byte{ebus.SYN}, master, []byte{ebus.ACK})
	b.drive(foreign)

	if reactive == nil {
		t.Fatalf("no reactive telegram delivered")
	}
	if len(b.written) == 0 || b.written[0] != ebus.ACK {
		t.Fatalf("expected first written byte to be ACK, got % X", b.written)
	}
}
