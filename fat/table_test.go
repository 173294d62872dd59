package fat

import (
	"errors"
	"testing"

	"github.com/aligator/discfs"
)

func newTestTable(t *testing.T, variant Type, clusters uint32) *table {
	t.Helper()

	entryBits := uint32(12)
	switch variant {
	case FAT16:
		entryBits = 16
	case FAT32:
		entryBits = 32
	}
	size := int64((clusters*entryBits/8 + discfs.SectorSize) / discfs.SectorSize * discfs.SectorSize)

	dev := discfs.NewMemDevice(make([]byte, size))
	tbl, err := newTable(dev, variant, 0, size, 2, 0, true, clusters)
	if err != nil {
		t.Fatalf("newTable: %v", err)
	}
	return tbl
}

func TestFAT12Packing(t *testing.T) {
	tbl := newTestTable(t, FAT12, 16)

	// Even and odd cells share bytes; setting one must not clobber the other.
	if err := tbl.setNext(2, 0xABC); err != nil {
		t.Fatal(err)
	}
	if err := tbl.setNext(3, 0x123); err != nil {
		t.Fatal(err)
	}

	if got, _ := tbl.next(2); got != 0xABC {
		t.Errorf("next(2) = %#x, want 0xABC", got)
	}
	if got, _ := tbl.next(3); got != 0x123 {
		t.Errorf("next(3) = %#x, want 0x123", got)
	}

	// Overwrite the even cell and check the odd neighbour again.
	if err := tbl.setNext(2, 0xFFF); err != nil {
		t.Fatal(err)
	}
	if got, _ := tbl.next(3); got != 0x123 {
		t.Errorf("next(3) after rewrite = %#x, want 0x123", got)
	}
}

func TestSentinelValues(t *testing.T) {
	tests := []struct {
		variant Type
		eoc     uint32
		bad     uint32
	}{
		{FAT12, 0xFFF, 0xFF7},
		{FAT16, 0xFFFF, 0xFFF7},
		{FAT32, 0x0FFFFFFF, 0x0FFFFFF7},
	}
	for _, tt := range tests {
		if got := tt.variant.endOfChain(); got != tt.eoc {
			t.Errorf("%v endOfChain = %#x, want %#x", tt.variant, got, tt.eoc)
		}
		if got := tt.variant.badCluster(); got != tt.bad {
			t.Errorf("%v badCluster = %#x, want %#x", tt.variant, got, tt.bad)
		}
		if !tt.variant.isEndOfChain(tt.eoc) {
			t.Errorf("%v isEndOfChain(%#x) = false", tt.variant, tt.eoc)
		}
		if tt.variant.isEndOfChain(tt.bad) {
			t.Errorf("%v isEndOfChain(bad) = true", tt.variant)
		}
	}
}

func TestAllocateAndChain(t *testing.T) {
	tbl := newTestTable(t, FAT16, 32)

	head, err := tbl.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if head < 2 {
		t.Fatalf("allocated cluster %d, want >= 2", head)
	}
	if v, _ := tbl.next(head); !tbl.variant.isEndOfChain(v) {
		t.Errorf("fresh cluster is not end of chain: %#x", v)
	}

	tail := head
	for i := 0; i < 3; i++ {
		tail, err = tbl.extendChain(tail)
		if err != nil {
			t.Fatalf("extendChain: %v", err)
		}
	}

	chain, err := tbl.chain(head)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 4 {
		t.Fatalf("chain length = %d, want 4", len(chain))
	}

	free0, err := tbl.freeCount()
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.freeChain(head); err != nil {
		t.Fatalf("freeChain: %v", err)
	}
	free1, err := tbl.freeCount()
	if err != nil {
		t.Fatal(err)
	}
	if free1 != free0+4 {
		t.Errorf("free count after freeChain = %d, want %d", free1, free0+4)
	}
}

func TestChainCycleDetection(t *testing.T) {
	tbl := newTestTable(t, FAT16, 16)

	// 2 -> 3 -> 2 is a cycle.
	tbl.setNext(2, 3)
	tbl.setNext(3, 2)

	if _, err := tbl.chain(2); !errors.Is(err, discfs.ErrCorrupt) {
		t.Errorf("chain on cycle = %v, want ErrCorrupt", err)
	}
	if err := tbl.freeChain(2); !errors.Is(err, discfs.ErrCorrupt) {
		t.Errorf("freeChain on cycle = %v, want ErrCorrupt", err)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	tbl := newTestTable(t, FAT16, 6)

	// Four data clusters available (2..5).
	for i := 0; i < 4; i++ {
		if _, err := tbl.allocate(); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if _, err := tbl.allocate(); !errors.Is(err, discfs.ErrNoSpace) {
		t.Errorf("allocate on full table = %v, want ErrNoSpace", err)
	}
}

func TestFlushMirrorsAllCopies(t *testing.T) {
	size := int64(discfs.SectorSize)
	dev := discfs.NewMemDevice(make([]byte, size*2))
	tbl, err := newTable(dev, FAT16, 0, size, 2, 0, true, 64)
	if err != nil {
		t.Fatal(err)
	}

	tbl.setNext(2, 0xFFFF)
	if err := tbl.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	buf, _ := discfs.MemDeviceBytes(dev)
	first := buf[:size]
	second := buf[size : 2*size]
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("FAT copies differ at byte %d", i)
		}
	}
}
