package ebus_test

import (
	"testing"

	"github.com/ebusgo/ebusd/ebus"
)

func TestIsMasterKnownAddresses(t *testing.T) {
	masters := []byte{0x00, 0x01, 0x03, 0x07, 0x0F, 0x10, 0x33, 0x73, 0xF3, 0xFF}
	for _, m := range masters {
		if !ebus.IsMaster(m) {
			t.Errorf("expected %#x to classify as master", m)
		}
	}
}

func TestIsMasterRejectsNonMasterNibbles(t *testing.T) {
	nonMasters := []byte{0x02, 0x04, 0x08, 0x20, 0x50, ebus.SYN, ebus.EXP}
	for _, b := range nonMasters {
		if ebus.IsMaster(b) {
			t.Errorf("expected %#x to not classify as master", b)
		}
	}
}

func TestMasterSlaveAndSynExpAreDisjoint(t *testing.T) {
	for b := 0; b < 256; b++ {
		v := byte(b)
		if ebus.IsMaster(v) && ebus.IsSlave(v) {
			t.Errorf("%#x classified as both master and slave", v)
		}
	}
}

func TestEverySYNAndEXPIsNeitherMasterNorSlave(t *testing.T) {
	for _, v := range []byte{ebus.SYN, ebus.EXP} {
		if ebus.IsMaster(v) || ebus.IsSlave(v) {
			t.Errorf("%#x (SYN/EXP) must classify as neither master nor slave", v)
		}
	}
}

func TestSlaveAddressWrapsAndPairs(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x05,
		0x03: 0x08,
		0xFF: 0x04, // wraps: 0xFF+5 = 0x104 -> 0x04
	}
	for master, want := range cases {
		got := ebus.SlaveAddress(master)
		if got != want {
			t.Errorf("SlaveAddress(%#x) = %#x, want %#x", master, got, want)
		}
	}
}

func TestIsAddressValidRejectsSynAndExp(t *testing.T) {
	if ebus.IsAddressValid(ebus.SYN) || ebus.IsAddressValid(ebus.EXP) {
		t.Errorf("SYN/EXP must never be a valid station address")
	}
}
