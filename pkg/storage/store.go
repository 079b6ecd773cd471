// Package storage holds the bulb's non-volatile state: the mesh credential and
// boot counter in a keyring, and the A/B firmware partitions on disk.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/pairing"
)

const (
	serviceName = "fakebulb"

	credentialKey = "credential"
	bootCountKey  = "boot-count"
)

// Store persists the credential and boot counter
type Store struct {
	kr      keyring.Keyring
	factory pairing.Credential
	mtx     sync.Mutex
}

// Open opens a file-backed keyring in dir
func Open(dir, password string, factory pairing.Credential) (*Store, error) {
	kr, err := keyring.Open(keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring in %s: %w", dir, err)
	}
	return New(kr, factory), nil
}

// New wraps an already opened keyring
func New(kr keyring.Keyring, factory pairing.Credential) *Store {
	return &Store{kr: kr, factory: factory}
}

// Factory returns the factory default credential
func (s *Store) Factory() pairing.Credential {
	return s.factory
}

// LoadCredential returns the stored credential, or the factory default when
// nothing has been stored yet.
func (s *Store) LoadCredential() (pairing.Credential, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	item, err := s.kr.Get(credentialKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return s.factory, nil
	}
	if err != nil {
		return pairing.Credential{}, fmt.Errorf("could not load credential: %w", err)
	}

	c, err := pairing.UnmarshalCredential(item.Data)
	if err != nil {
		log.Warnf("storage: corrupt credential, using factory default: %v", err)
		return s.factory, nil
	}
	return c, nil
}

func (s *Store) SaveCredential(c pairing.Credential) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.kr.Set(keyring.Item{
		Key:  credentialKey,
		Data: c.Marshal(),
	}); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	log.Debugf("storage: saved credential for %q", c.NameString())
	return nil
}

// ResetCredential removes the stored credential so the factory default applies
func (s *Store) ResetCredential() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	err := s.kr.Remove(credentialKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to reset credential: %w", err)
	}
	log.Info("storage: credential reset to factory default")
	return nil
}

// IncrementBootCount bumps and returns the number of unsettled boots
func (s *Store) IncrementBootCount() (uint32, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var count uint32
	item, err := s.kr.Get(bootCountKey)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
	case err != nil:
		return 0, fmt.Errorf("could not load boot count: %w", err)
	case len(item.Data) == 4:
		count = binary.BigEndian.Uint32(item.Data)
	}
	count++

	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, count)
	if err := s.kr.Set(keyring.Item{Key: bootCountKey, Data: data}); err != nil {
		return 0, fmt.Errorf("failed to save boot count: %w", err)
	}
	return count, nil
}

// ClearBootCount marks the current boot as settled
func (s *Store) ClearBootCount() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	err := s.kr.Remove(bootCountKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to clear boot count: %w", err)
	}
	return nil
}
