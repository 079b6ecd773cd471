package crypto

import "testing"

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestCRC16(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x0000,
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
		{
			name:     "single byte",
			data:     []byte{0x01},
			expected: 0xC0C1,
		},
		{
			name:     "single 0xFF",
			data:     []byte{0xFF},
			expected: 0x4040,
		},
		{
			name:     "check string",
			data:     []byte("123456789"),
			expected: 0xBB3D,
		},
		{
			name:     "every byte value",
			data:     allBytes(),
			expected: 0xBAD3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CRC16(tt.data)
			if result != tt.expected {
				t.Errorf("CRC16() = 0x%04X, want 0x%04X", result, tt.expected)
			}
		})
	}
}

// crc16Loop is the two-entry table form the OTA peers implement.
func crc16Loop(data []byte) uint16 {
	table := [2]uint16{0x0000, 0xA001}
	var crc uint16
	for _, b := range data {
		for i := 0; i < 8; i++ {
			crc = (crc >> 1) ^ table[(crc^uint16(b>>i))&1]
		}
	}
	return crc
}

func TestCRC16MatchesBitLoop(t *testing.T) {
	data := allBytes()
	for n := 0; n <= len(data); n += 17 {
		if got, want := CRC16(data[:n]), crc16Loop(data[:n]); got != want {
			t.Errorf("CRC16(%d bytes) = 0x%04X, bit loop gives 0x%04X", n, got, want)
		}
	}
}

func TestCRC8(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint8
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x00,
		},
		{
			name:     "single byte",
			data:     []byte{0x01},
			expected: 0x67,
		},
		{
			name:     "single 0xFF",
			data:     []byte{0xFF},
			expected: 0x22,
		},
		{
			name:     "check string",
			data:     []byte("123456789"),
			expected: 0x45,
		},
		{
			name:     "every byte value",
			data:     allBytes(),
			expected: 0x38,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CRC8(tt.data)
			if result != tt.expected {
				t.Errorf("CRC8() = 0x%02X, want 0x%02X", result, tt.expected)
			}
		})
	}
}

func crc8Loop(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x6C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func TestCRC8MatchesBitLoop(t *testing.T) {
	data := allBytes()
	for n := 0; n <= len(data); n += 13 {
		if got, want := CRC8(data[:n]), crc8Loop(data[:n]); got != want {
			t.Errorf("CRC8(%d bytes) = 0x%02X, bit loop gives 0x%02X", n, got, want)
		}
	}
}
