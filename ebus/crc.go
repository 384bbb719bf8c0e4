package ebus

// crcPolynomial is the eBUS CRC-8 polynomial, applied to the running
// register rather than passed through a table-driven Rocksoft-model
// implementation: the construction below shifts the register and the
// input byte in lockstep, one bit at a time, XORing in the polynomial
// whenever the register's outgoing MSB was set. This bit-interleaved
// shape isn't expressible as {poly, init, refin, refout, xorout}
// parameters, so it is hand-rolled instead of going through a generic
// CRC library.
const crcPolynomial = 0x9B

// crcByte folds one byte into a running CRC-8 register.
func crcByte(data, crc byte) byte {
	for i := 0; i < 8; i++ {
		var polynom byte
		if crc&0x80 != 0 {
			polynom = crcPolynomial
		}
		crc = (crc &^ 0x80) << 1
		if data&0x80 != 0 {
			crc |= 1
		}
		crc ^= polynom
		data <<= 1
	}
	return crc
}

// crc8 computes the eBUS CRC-8 of buf, folding left to right starting
// from a zero register.
func crc8(buf []byte) byte {
	var crc byte
	for _, b := range buf {
		crc = crcByte(b, crc)
	}
	return crc
}
