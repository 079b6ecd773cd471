// Package crypto holds the primitives shared by the pairing handshake, the
// command channel and the OTA transfer: the byte-reversed AES-128 block
// cipher, CRC-8 and CRC-16.
package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
)

// BlockSize is the AES block size and the size of every key used on the wire.
const BlockSize = aes.BlockSize

// Encrypt encrypts a single block. Key and data are zero-padded to 16 bytes,
// byte-reversed before the block operation, and the result is reversed again.
// Peers depend on this ordering.
func Encrypt(key, data []byte) ([]byte, error) {
	return transform(key, data, true)
}

// Decrypt is the inverse of Encrypt.
func Decrypt(key, data []byte) ([]byte, error) {
	return transform(key, data, false)
}

func transform(key, data []byte, encrypt bool) ([]byte, error) {
	if len(key) > BlockSize {
		return nil, fmt.Errorf("key too long: %d bytes", len(key))
	}
	if len(data) > BlockSize {
		return nil, fmt.Errorf("block too long: %d bytes", len(data))
	}

	k := reverse(Pad16(key))
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	in := reverse(Pad16(data))
	out := make([]byte, BlockSize)
	if encrypt {
		block.Encrypt(out, in)
	} else {
		block.Decrypt(out, in)
	}
	return reverse(out), nil
}

// Pad16 returns a copy of b zero-padded (or truncated) to 16 bytes.
func Pad16(b []byte) []byte {
	out := make([]byte, BlockSize)
	copy(out, b)
	return out
}

// XOR returns a ^ b over the length of the shorter slice.
func XOR(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// RandomBytes generates n random bytes
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
