package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFlashStageCommitBoot(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFlash(dir, 8192)
	if err != nil {
		t.Fatal(err)
	}
	if f.ActiveSlot() != slotA {
		t.Fatalf("active slot = %s", f.ActiveSlot())
	}

	if err := f.Open(4096); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte("world"), 4091); err != nil {
		t.Fatal(err)
	}
	if err := f.SetBootImage(); !errors.Is(err, ErrNotCommitted) {
		t.Errorf("SetBootImage before commit: %v", err)
	}
	if err := f.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := f.Commit(); err != nil {
		t.Errorf("second commit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "slot-b.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 4096 || !bytes.HasPrefix(data, []byte("hello")) || !bytes.HasSuffix(data, []byte("world")) {
		t.Errorf("staged image is wrong: %d bytes", len(data))
	}

	if err := f.SetBootImage(); err != nil {
		t.Fatal(err)
	}
	if f.ActiveSlot() != slotA {
		t.Error("boot slot changed before restart")
	}

	switched, err := f.ApplyPendingBoot()
	if err != nil || !switched {
		t.Fatalf("ApplyPendingBoot = %v, %v", switched, err)
	}
	if f.ActiveSlot() != slotB {
		t.Errorf("active slot = %s", f.ActiveSlot())
	}
	if switched, _ := f.ApplyPendingBoot(); switched {
		t.Error("pending boot applied twice")
	}

	// The next update stages into the other slot.
	if err := f.Open(10); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "slot-a.bin")); err != nil {
		t.Errorf("slot a not staged: %v", err)
	}
}

func TestFlashBounds(t *testing.T) {
	f, err := OpenFlash(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.WriteAt([]byte{1}, 0); !errors.Is(err, ErrNotOpen) {
		t.Errorf("write before open: %v", err)
	}
	if err := f.Open(8192); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("oversized open: %v", err)
	}
	if err := f.Open(100); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		off  int64
		n    int
	}{
		{"negative", -1, 1},
		{"past end", 100, 1},
		{"straddles end", 96, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.WriteAt(make([]byte, tt.n), tt.off); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestFlashAbort(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFlash(dir, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Open(4096); err != nil {
		t.Fatal(err)
	}
	if err := f.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "slot-b.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staging slot survived abort: %v", err)
	}
	if err := f.Commit(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("commit after abort: %v", err)
	}
	if err := f.Abort(); err != nil {
		t.Errorf("second abort: %v", err)
	}
}
