package command_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jwoglom/fakebulb/pkg/command"
	"github.com/jwoglom/fakebulb/pkg/crypto"
)

type staticKey struct {
	key [16]byte
	ok  bool
}

func (s *staticKey) SessionKey() ([16]byte, bool) {
	return s.key, s.ok
}

var _ = Describe("Decryptor", func() {
	var (
		keys      *staticKey
		decryptor *command.Decryptor
	)

	BeforeEach(func() {
		keys = &staticKey{ok: true}
		copy(keys.key[:], []byte{0x10, 0x32, 0x54, 0x76, 0x98, 0xBA, 0xDC, 0xFE, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF})
		decryptor = command.NewDecryptor(keys)
	})

	It("decrypts a packet built by Encrypt", func() {
		packet, err := command.Encrypt(keys.key[:], []byte{0xD0, 0x01, 0xFF})
		Expect(err).NotTo(HaveOccurred())
		Expect(packet).To(HaveLen(command.PacketSize))

		payload, err := decryptor.Decrypt(packet)
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(Equal([]byte{0xD0, 0x01, 0xFF}))
	})

	It("accepts empty and full-size payloads", func() {
		for _, payload := range [][]byte{{}, make([]byte, command.MaxPayload)} {
			packet, err := command.Encrypt(keys.key[:], payload)
			Expect(err).NotTo(HaveOccurred())

			got, err := decryptor.Decrypt(packet)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(len(payload)))
		}
	})

	It("refuses to encrypt oversized payloads", func() {
		_, err := command.Encrypt(keys.key[:], make([]byte, command.MaxPayload+1))
		Expect(err).To(HaveOccurred())
	})

	Context("without a session key", func() {
		BeforeEach(func() {
			keys.ok = false
		})

		It("returns ErrNoPairing", func() {
			_, err := decryptor.Decrypt(make([]byte, command.PacketSize))
			Expect(err).To(MatchError(command.ErrNoPairing))
		})
	})

	Context("with a corrupted packet", func() {
		It("reports both checksums", func() {
			plain := make([]byte, 16)
			plain[1] = 2
			plain[2], plain[3] = 0xAA, 0xBB
			good := crypto.CRC8(plain[1:4])
			plain[0] = good ^ 0x01

			packet, err := crypto.Encrypt(keys.key[:], plain)
			Expect(err).NotTo(HaveOccurred())

			_, err = decryptor.Decrypt(packet)
			var mismatch *command.CRCMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.Expected).To(Equal(good ^ 0x01))
			Expect(mismatch.Computed).To(Equal(good))
		})

		It("rejects a length beyond the packet", func() {
			plain := make([]byte, 16)
			plain[1] = 15
			packet, err := crypto.Encrypt(keys.key[:], plain)
			Expect(err).NotTo(HaveOccurred())

			_, err = decryptor.Decrypt(packet)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a short packet", func() {
			_, err := decryptor.Decrypt([]byte{1, 2, 3})
			Expect(err).To(HaveOccurred())
		})
	})
})
