package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	slotA = "a"
	slotB = "b"

	bootFile     = "boot"
	nextBootFile = "next-boot"
)

var (
	ErrImageTooLarge = errors.New("storage: image larger than partition")
	ErrNotOpen       = errors.New("storage: no staging image open")
	ErrOutOfBounds   = errors.New("storage: write outside staging image")
	ErrNotCommitted  = errors.New("storage: staging image not committed")
)

// Flash emulates two firmware partitions. Updates are staged into the slot
// that is not currently booted.
type Flash struct {
	dir      string
	capacity int64

	file      *os.File
	size      int64
	committed bool
	mtx       sync.Mutex
}

// OpenFlash prepares the partition directory
func OpenFlash(dir string, capacity int64) (*Flash, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("partition capacity must be positive, got %d", capacity)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create flash dir: %w", err)
	}
	return &Flash{dir: dir, capacity: capacity}, nil
}

func slotFile(slot string) string {
	return "slot-" + slot + ".bin"
}

// ActiveSlot returns the slot the device booted from
func (f *Flash) ActiveSlot() string {
	data, err := os.ReadFile(filepath.Join(f.dir, bootFile))
	if err != nil {
		return slotA
	}
	if slot := string(bytes.TrimSpace(data)); slot == slotB {
		return slotB
	}
	return slotA
}

func (f *Flash) stagingSlot() string {
	if f.ActiveSlot() == slotA {
		return slotB
	}
	return slotA
}

// Open erases the staging slot and reserves size bytes in it
func (f *Flash) Open(size int64) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if size > f.capacity {
		return fmt.Errorf("%w: %d > %d", ErrImageTooLarge, size, f.capacity)
	}
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}

	path := filepath.Join(f.dir, slotFile(f.stagingSlot()))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open staging slot: %w", err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return fmt.Errorf("erase staging slot: %w", err)
	}

	f.file = file
	f.size = size
	f.committed = false
	log.Debugf("flash: staging %d bytes in %s", size, path)
	return nil
}

// WriteAt writes p at off within the reserved region
func (f *Flash) WriteAt(p []byte, off int64) (int, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.file == nil {
		return 0, ErrNotOpen
	}
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfBounds, off, off+int64(len(p)), f.size)
	}
	return f.file.WriteAt(p, off)
}

// Commit flushes and closes the staging image. Committing twice is a no-op.
func (f *Flash) Commit() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.file == nil {
		if f.committed {
			return nil
		}
		return ErrNotOpen
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync staging slot: %w", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close staging slot: %w", err)
	}
	f.file = nil
	f.committed = true
	return nil
}

// Abort discards the staging image
func (f *Flash) Abort() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
	f.committed = false
	err := os.Remove(filepath.Join(f.dir, slotFile(f.stagingSlot())))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staging slot: %w", err)
	}
	return nil
}

// SetBootImage selects the committed staging slot for the next boot
func (f *Flash) SetBootImage() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if !f.committed {
		return ErrNotCommitted
	}
	slot := f.stagingSlot()
	if err := os.WriteFile(filepath.Join(f.dir, nextBootFile), []byte(slot), 0o644); err != nil {
		return fmt.Errorf("write next boot slot: %w", err)
	}
	log.Infof("flash: slot %s selected for next boot", slot)
	return nil
}

// ApplyPendingBoot promotes a slot selected by SetBootImage. It is called once
// at startup and reports whether the active slot changed.
func (f *Flash) ApplyPendingBoot() (bool, error) {
	next := filepath.Join(f.dir, nextBootFile)
	if _, err := os.Stat(next); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.Rename(next, filepath.Join(f.dir, bootFile)); err != nil {
		return false, fmt.Errorf("apply pending boot: %w", err)
	}
	log.Infof("flash: booted slot %s", f.ActiveSlot())
	return true, nil
}
