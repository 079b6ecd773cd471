//go:build !linux

package bluetooth

import (
	"context"
	"errors"
)

// Central is the phone side of a connection to a bulb (stub for non-Linux platforms)
type Central struct{}

// Dial always fails: the central role needs the Linux HCI user channel
func Dial(ctx context.Context, adapterID string, name string) (*Central, error) {
	return nil, errors.New("bluetooth central is only supported on Linux")
}

func (c *Central) Write(charType CharacteristicType, data []byte) error {
	return errors.New("bluetooth central is only supported on Linux")
}

func (c *Central) Read(charType CharacteristicType) ([]byte, error) {
	return nil, errors.New("bluetooth central is only supported on Linux")
}

func (c *Central) Close() {}
