package bluetooth

import "testing"

func TestParseAdapterID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", -1, false},
		{"hci0", 0, false},
		{"hci3", 3, false},
		{"1", 1, false},
		{"usb0", 0, true},
		{"hci-1", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAdapterID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAdapterID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAdapterID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCharacteristicTypeUUID(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range Characteristics {
		uuid := c.UUID()
		if uuid == "" {
			t.Errorf("%s has no UUID", c)
		}
		if seen[uuid] {
			t.Errorf("duplicate UUID %s", uuid)
		}
		seen[uuid] = true
	}
	if CharacteristicType(42).String() != "Unknown" {
		t.Error("unexpected name for unknown characteristic")
	}
}

func TestAdvertisedStateManufacturerByte(t *testing.T) {
	if AdvertisedUnpaired.manufacturerByte() != 0x10 {
		t.Error("unpaired bulbs advertise 0x10")
	}
	if AdvertisedPaired.manufacturerByte() != 0x11 {
		t.Error("paired bulbs advertise 0x11")
	}
}
