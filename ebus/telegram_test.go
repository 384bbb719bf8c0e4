package ebus_test

import (
	"testing"

	"github.com/ebusgo/ebusd/ebus"
)

func buildMasterWire(t *testing.T, qq, zz, pb, sb byte, data []byte) *ebus.Sequence {
	t.Helper()
	seq := ebus.NewSequence()
	seq.Push(qq, false)
	seq.Push(zz, false)
	seq.Push(pb, false)
	seq.Push(sb, false)
	seq.Push(byte(len(data)), false)
	for _, b := range data {
		seq.Push(b, false)
	}
	crc := seq.CRC()
	seq.Push(crc, false)
	seq.Stuff()
	return seq
}

func TestCreateMasterBroadcast(t *testing.T) {
	wire := buildMasterWire(t, 0x00, ebus.Broadcast, 0x07, 0x04, []byte{0x01})
	tg := ebus.NewTelegram()
	tg.CreateMaster(wire)
	if tg.MasterState() != ebus.StateOK {
		t.Fatalf("master state = %v, want ok", tg.MasterState())
	}
	if tg.Type() != ebus.BroadcastType {
		t.Fatalf("type = %v, want BC", tg.Type())
	}
}

func TestCreateMasterMasterSlave(t *testing.T) {
	wire := buildMasterWire(t, 0x10, 0x15, 0xB5, 0x04, []byte{0x02, 0x34})
	tg := ebus.NewTelegram()
	tg.CreateMaster(wire)
	if tg.MasterState() != ebus.StateOK {
		t.Fatalf("master state = %v, want ok", tg.MasterState())
	}
	if tg.Type() != ebus.MasterSlave {
		t.Fatalf("type = %v, want MS", tg.Type())
	}
}

func TestCreateMasterBadCRCDetected(t *testing.T) {
	wire := buildMasterWire(t, 0x10, 0x15, 0xB5, 0x04, []byte{0x02, 0x34})
	raw := append([]byte(nil), wire.Bytes()...)
	raw[len(raw)-1] ^= 0xFF // corrupt the trailing (stuffed) CRC byte
	corrupted := ebus.SequenceFromBytes(raw, true)
	tg := ebus.NewTelegram()
	tg.CreateMaster(corrupted)
	if tg.MasterState() != ebus.StateBadCRC {
		t.Fatalf("master state = %v, want bad_crc", tg.MasterState())
	}
}

func TestCreateMasterBadQQRejectsNonMasterSource(t *testing.T) {
	wire := buildMasterWire(t, 0x02, 0x15, 0xB5, 0x04, nil)
	tg := ebus.NewTelegram()
	tg.CreateMaster(wire)
	if tg.MasterState() != ebus.StateBadQQ {
		t.Fatalf("master state = %v, want bad_qq", tg.MasterState())
	}
}

func TestCreateMasterBadNN(t *testing.T) {
	seq := ebus.NewSequence()
	seq.Push(0x10, false)
	seq.Push(0x15, false)
	seq.Push(0xB5, false)
	seq.Push(0x04, false)
	seq.Push(0x20, false) // NN = 32 > MaxData
	tg := ebus.NewTelegram()
	tg.CreateMaster(seq)
	if tg.MasterState() != ebus.StateBadNN {
		t.Fatalf("master state = %v, want bad_nn", tg.MasterState())
	}
}

func TestCreateMasterFromRequestZeroData(t *testing.T) {
	// ZZ PB SB NN with NN=0: a plain MS request (ZZ 0x15 is a slave
	// address), no data bytes.
	tg, err := ebus.CreateMasterFromRequest(0x10, []byte{0x15, 0x07, 0x04, 0x00})
	if err != nil {
		t.Fatalf("CreateMasterFromRequest: %v", err)
	}
	if tg.MasterState() != ebus.StateOK {
		t.Fatalf("master state = %v, want ok", tg.MasterState())
	}
	if tg.Master().Len() != 5 {
		t.Fatalf("master length = %d, want 5", tg.Master().Len())
	}
}

func TestCreateMasterFromRequestRejectsBadPayload(t *testing.T) {
	if _, err := ebus.CreateMasterFromRequest(0x10, []byte{ebus.SYN, 0x07, 0x04, 0x00}); err == nil {
		t.Fatalf("expected error for a SYN target address")
	}
}

func TestCreateSlaveRoundTrip(t *testing.T) {
	seq := ebus.NewSequence()
	seq.Push(0x02, false)
	seq.Push(0x34, false)
	seq.Push(0x08, false)
	crc := seq.CRC()
	seq.Push(crc, false)
	seq.Stuff()

	tg := ebus.NewTelegram()
	tg.CreateSlave(seq)
	if tg.SlaveState() != ebus.StateOK {
		t.Fatalf("slave state = %v, want ok", tg.SlaveState())
	}
	if tg.Slave().Len() != 3 {
		t.Fatalf("slave length = %d, want 3", tg.Slave().Len())
	}
}
