package crypto

import (
	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
)

// CRC8Params describes the command channel checksum: feedback constant 0x6C
// shifted LSB-first, which is the reflected form of polynomial 0x36, seed 0.
var CRC8Params = crc8.Params{
	Poly:   0x36,
	Init:   0x00,
	RefIn:  true,
	RefOut: true,
	XorOut: 0x00,
	Check:  0x45,
	Name:   "CRC-8/BULB",
}

var (
	crc8Table  = crc8.MakeTable(CRC8Params)
	crc16Table = crc16.MakeTable(crc16.CRC16_ARC)
)

// CRC8 computes the command channel checksum.
func CRC8(data []byte) uint8 {
	return crc8.Checksum(data, crc8Table)
}

// CRC16 computes CRC-16/ARC (polynomial table {0x0000, 0xA001}, LSB-first,
// seed 0) as carried in the OTA chunk trailer.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crc16Table)
}
