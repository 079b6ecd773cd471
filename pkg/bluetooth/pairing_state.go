package bluetooth

// AdvertisedState is the pairing status carried in the manufacturer data of
// the advertisement, so a central can tell a factory-fresh bulb apart.
type AdvertisedState string

const (
	// AdvertisedUnpaired - factory credentials, manufacturer data 0x10
	AdvertisedUnpaired AdvertisedState = "Unpaired"
	// AdvertisedPaired - custom mesh name and password, manufacturer data 0x11
	AdvertisedPaired AdvertisedState = "Paired"
)

func (s AdvertisedState) manufacturerByte() byte {
	if s == AdvertisedPaired {
		return 0x11
	}
	return 0x10
}
