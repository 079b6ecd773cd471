package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/crypto"
	log "github.com/sirupsen/logrus"
)

const (
	// PairingPayloadSize is the size of every pairing payload after the opcode
	PairingPayloadSize = 16

	// PairingResponseSize is opcode + payload
	PairingResponseSize = 1 + PairingPayloadSize

	// ChunkOverhead is the 2-byte index plus the 2-byte integrity trailer
	ChunkOverhead = 4

	// OTAStatusSize is the size of the OTA read response
	OTAStatusSize = 9
)

// PairingResponse is the value returned by a read of the pairing characteristic
type PairingResponse struct {
	Opcode  byte
	Payload [PairingPayloadSize]byte
}

// Marshal serializes the response to its 17-byte wire form
func (r *PairingResponse) Marshal() []byte {
	out := make([]byte, PairingResponseSize)
	out[0] = r.Opcode
	copy(out[1:], r.Payload[:])
	return out
}

// ParsePairingResponse parses a pairing read response
func ParsePairingResponse(data []byte) (*PairingResponse, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("pairing response too short: %d bytes", len(data))
	}
	r := &PairingResponse{Opcode: data[0]}
	copy(r.Payload[:], data[1:])
	return r, nil
}

// Chunk is one OTA frame: {indexLsb, indexMsb, payload..., integrityLsb, integrityMsb}
type Chunk struct {
	Index   uint16
	Payload []byte
	CRC     uint16
}

// ParseChunk splits an OTA frame into its fields without validating the trailer
func ParseChunk(data []byte) (*Chunk, error) {
	if len(data) < ChunkOverhead {
		return nil, fmt.Errorf("chunk too short: %d bytes", len(data))
	}
	n := len(data)
	return &Chunk{
		Index:   binary.LittleEndian.Uint16(data[0:2]),
		Payload: data[2 : n-2],
		CRC:     binary.LittleEndian.Uint16(data[n-2:]),
	}, nil
}

// ChunkChecksum returns the CRC-16 computed over everything but the trailer
// and the CRC carried in the trailer.
func ChunkChecksum(data []byte) (computed uint16, received uint16) {
	n := len(data)
	if n < 2 {
		return crypto.CRC16(data), 0
	}
	return crypto.CRC16(data[:n-2]), binary.LittleEndian.Uint16(data[n-2:])
}

// EncodeChunk builds an OTA frame for index and payload with a valid trailer
func EncodeChunk(index uint16, payload []byte) []byte {
	frame := make([]byte, 2+len(payload)+2)
	binary.LittleEndian.PutUint16(frame[0:2], index)
	copy(frame[2:], payload)
	binary.LittleEndian.PutUint16(frame[len(frame)-2:], crypto.CRC16(frame[:len(frame)-2]))
	return frame
}

// EncodeTerminal builds the 4-byte end-of-image frame
func EncodeTerminal(index uint16) []byte {
	return EncodeChunk(index, nil)
}

// EncodeErase builds the erase frame. frameLen pads the frame so that
// frameLen-ChunkOverhead announces the chunk size; values below the minimum
// are raised to ChunkOverhead.
func EncodeErase(sizeInSectors uint8, frameLen int) []byte {
	if frameLen < ChunkOverhead {
		frameLen = ChunkOverhead
	}
	frame := make([]byte, frameLen)
	frame[2] = sizeInSectors
	return frame
}

// OTAStatus is the value returned by a read of the OTA characteristic
type OTAStatus struct {
	State             uint8
	ErrorCode         uint8
	LastGoodIndex     uint16
	LastReceivedIndex uint16
	ErrorCount        uint8
	ErasePercent      uint8
	Debug             uint8
}

// Marshal serializes the status; indexes are big-endian on this side of the link
func (s *OTAStatus) Marshal() []byte {
	out := make([]byte, OTAStatusSize)
	out[0] = s.State
	out[1] = s.ErrorCode
	binary.BigEndian.PutUint16(out[2:4], s.LastGoodIndex)
	binary.BigEndian.PutUint16(out[4:6], s.LastReceivedIndex)
	out[6] = s.ErrorCount
	out[7] = s.ErasePercent
	out[8] = s.Debug
	return out
}

// ParseOTAStatus parses an OTA read response
func ParseOTAStatus(data []byte) (*OTAStatus, error) {
	if len(data) < OTAStatusSize {
		return nil, fmt.Errorf("ota status too short: %d bytes", len(data))
	}
	return &OTAStatus{
		State:             data[0],
		ErrorCode:         data[1],
		LastGoodIndex:     binary.BigEndian.Uint16(data[2:4]),
		LastReceivedIndex: binary.BigEndian.Uint16(data[4:6]),
		ErrorCount:        data[6],
		ErasePercent:      data[7],
		Debug:             data[8],
	}, nil
}

// LogPacket logs a packet in a readable format
func LogPacket(direction string, charType bluetooth.CharacteristicType, data []byte) {
	switch charType {
	case bluetooth.CharOTA:
		if len(data) < ChunkOverhead {
			log.Debugf("%s on %s: %s", direction, charType, hex.EncodeToString(data))
			return
		}
		chunk, _ := ParseChunk(data)
		log.Debugf("%s on %s: index=%d, payload=%d bytes, crc=0x%04x",
			direction, charType, chunk.Index, len(chunk.Payload), chunk.CRC)
	case bluetooth.CharPairing:
		if len(data) == 0 {
			log.Warnf("%s on %s: empty", direction, charType)
			return
		}
		log.Debugf("%s on %s: opcode=0x%02x, payload=%s",
			direction, charType, data[0], hex.EncodeToString(data[1:]))
	default:
		log.Debugf("%s on %s: %s", direction, charType, hex.EncodeToString(data))
	}
}
