package bluetooth

import (
	"fmt"
	"strconv"
	"strings"
)

// Service UUID for the bulb
const (
	BulbServiceUUID = "00010203-0405-0607-0809-0a0b0c0d1910"
)

// Characteristic UUIDs
const (
	CommandCharUUID = "00010203-0405-0607-0809-0a0b0c0d1912"
	OTACharUUID     = "00010203-0405-0607-0809-0a0b0c0d1913"
	PairingCharUUID = "00010203-0405-0607-0809-0a0b0c0d1914"
)

// CharacteristicType identifies which characteristic received data
type CharacteristicType int

const (
	CharPairing CharacteristicType = iota
	CharOTA
	CharCommand
)

func (c CharacteristicType) String() string {
	switch c {
	case CharPairing:
		return "Pairing"
	case CharOTA:
		return "OTA"
	case CharCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

// UUID returns the characteristic UUID for c
func (c CharacteristicType) UUID() string {
	switch c {
	case CharPairing:
		return PairingCharUUID
	case CharOTA:
		return OTACharUUID
	case CharCommand:
		return CommandCharUUID
	default:
		return ""
	}
}

// Characteristics lists every characteristic the bulb service exposes
var Characteristics = []CharacteristicType{CharPairing, CharOTA, CharCommand}

// AccessHandler processes reads and writes on one characteristic. Write
// errors are reported back to the caller for logging only; the access itself
// always succeeds on the wire.
type AccessHandler interface {
	Write(data []byte) error
	Read() []byte
}

// ConnectionHandler is called when a central connects or disconnects
type ConnectionHandler func(connected bool)

// ParseAdapterID turns "hci0" (or "0") into an HCI device index; "" selects
// the first available adapter (-1).
func ParseAdapterID(adapterID string) (int, error) {
	if adapterID == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(adapterID, "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid adapter id %q", adapterID)
	}
	return n, nil
}
