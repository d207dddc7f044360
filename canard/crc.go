package canard

// CRC is the CRC-16/CCITT-FALSE used to protect multi-frame transfers and to
// derive pseudo node-IDs for anonymous messages.
type CRC uint16

const (
	crcInitial    CRC = 0xFFFF
	crcResidue    CRC = 0x0000
	crcPolynomial CRC = 0x1021
)

func newCRC() CRC { return crcInitial }

// AddByte feeds a single byte into the checksum.
func (c CRC) AddByte(b byte) CRC {
	c ^= CRC(b) << 8
	for i := 0; i < 8; i++ {
		if c&0x8000 != 0 {
			c = (c << 1) ^ crcPolynomial
		} else {
			c <<= 1
		}
	}
	return c
}

// Add feeds data into the checksum.
func (c CRC) Add(data []byte) CRC {
	for _, b := range data {
		c = c.AddByte(b)
	}
	return c
}
