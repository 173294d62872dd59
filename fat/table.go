package fat

import (
	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	log "github.com/sirupsen/logrus"
)

// Type identifies the FAT variant. The variant is determined by the cluster
// count of the data region and by nothing else.
type Type uint8

const (
	FAT12 Type = iota
	FAT16
	FAT32
)

func (t Type) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	default:
		return "FAT32"
	}
}

// entryMask returns the significant bits of a table cell. The upper four
// bits of a FAT32 cell are reserved and preserved on write.
func (t Type) entryMask() uint32 {
	switch t {
	case FAT12:
		return 0x0FFF
	case FAT16:
		return 0xFFFF
	default:
		return 0x0FFFFFFF
	}
}

// Cell values relative to the variant mask.
const (
	entryFree = uint32(0)
)

func (t Type) badCluster() uint32 {
	return t.entryMask() &^ 0x8 // 0xFF7 / 0xFFF7 / 0x0FFFFFF7
}

func (t Type) endOfChain() uint32 {
	return t.entryMask() // 0xFFF / 0xFFFF / 0x0FFFFFFF
}

func (t Type) isEndOfChain(v uint32) bool {
	return v >= (t.entryMask() &^ 0x7) // 0xFF8 / 0xFFF8 / 0x0FFFFFF8
}

func (t Type) isBadCluster(v uint32) bool {
	return v == t.badCluster()
}

// table is a buffered image of the active on-disk file allocation table.
// Cells are kept in their packed form and unpacked on access; flush mirrors
// the buffer to all FAT copies unless mirroring is disabled.
type table struct {
	dev      discfs.Device
	variant  Type
	offset   int64 // byte offset of the first FAT copy
	size     int64 // bytes per copy
	copies   int
	active   int // index of the active copy when not mirrored
	mirrored bool

	buf      []byte
	dirty    bool
	clusters uint32 // first invalid cluster number (data clusters + 2)
	nextFree uint32 // rotating allocation hint
}

func newTable(dev discfs.Device, variant Type, offset, size int64, copies, active int, mirrored bool, clusters uint32) (*table, error) {
	t := &table{
		dev:      dev,
		variant:  variant,
		offset:   offset,
		size:     size,
		copies:   copies,
		active:   active,
		mirrored: mirrored,
		clusters: clusters,
		nextFree: 2,
		buf:      make([]byte, size),
	}
	src := offset
	if !mirrored {
		src += int64(active) * size
	}
	if _, err := dev.ReadAt(t.buf, src); err != nil {
		return nil, checkpoint.Wrap(err, discfs.ErrIO)
	}
	return t, nil
}

// next returns the raw cell value of cluster.
func (t *table) next(cluster uint32) (uint32, error) {
	if cluster >= t.clusters {
		return 0, checkpoint.From(discfs.ErrCorrupt)
	}
	switch t.variant {
	case FAT12:
		idx := int(cluster) + int(cluster)/2
		if idx+1 >= len(t.buf) {
			return 0, checkpoint.From(discfs.ErrCorrupt)
		}
		v := uint32(t.buf[idx]) | uint32(t.buf[idx+1])<<8
		if cluster%2 == 1 {
			return v >> 4, nil
		}
		return v & 0x0FFF, nil
	case FAT16:
		idx := int(cluster) * 2
		if idx+1 >= len(t.buf) {
			return 0, checkpoint.From(discfs.ErrCorrupt)
		}
		return uint32(t.buf[idx]) | uint32(t.buf[idx+1])<<8, nil
	default:
		idx := int(cluster) * 4
		if idx+3 >= len(t.buf) {
			return 0, checkpoint.From(discfs.ErrCorrupt)
		}
		v := uint32(t.buf[idx]) | uint32(t.buf[idx+1])<<8 | uint32(t.buf[idx+2])<<16 | uint32(t.buf[idx+3])<<24
		return v & 0x0FFFFFFF, nil
	}
}

// setNext stores value in the cell of cluster.
func (t *table) setNext(cluster, value uint32) error {
	if cluster >= t.clusters {
		return checkpoint.From(discfs.ErrCorrupt)
	}
	switch t.variant {
	case FAT12:
		idx := int(cluster) + int(cluster)/2
		if idx+1 >= len(t.buf) {
			return checkpoint.From(discfs.ErrCorrupt)
		}
		if cluster%2 == 0 {
			t.buf[idx] = byte(value)
			t.buf[idx+1] = t.buf[idx+1]&0xF0 | byte(value>>8)&0x0F
		} else {
			t.buf[idx] = t.buf[idx]&0x0F | byte(value<<4)
			t.buf[idx+1] = byte(value >> 4)
		}
	case FAT16:
		idx := int(cluster) * 2
		if idx+1 >= len(t.buf) {
			return checkpoint.From(discfs.ErrCorrupt)
		}
		t.buf[idx] = byte(value)
		t.buf[idx+1] = byte(value >> 8)
	default:
		idx := int(cluster) * 4
		if idx+3 >= len(t.buf) {
			return checkpoint.From(discfs.ErrCorrupt)
		}
		// The reserved top nibble keeps whatever it held.
		t.buf[idx] = byte(value)
		t.buf[idx+1] = byte(value >> 8)
		t.buf[idx+2] = byte(value >> 16)
		t.buf[idx+3] = t.buf[idx+3]&0xF0 | byte(value>>24)&0x0F
	}
	t.dirty = true
	return nil
}

// allocate finds a free cluster, marks it end-of-chain and returns it. The
// scan starts at the rotating hint and wraps around once.
func (t *table) allocate() (uint32, error) {
	if t.nextFree < 2 || t.nextFree >= t.clusters {
		t.nextFree = 2
	}
	candidate := t.nextFree
	for i := uint32(0); i < t.clusters-2; i++ {
		v, err := t.next(candidate)
		if err != nil {
			return 0, err
		}
		if v == entryFree {
			if err := t.setNext(candidate, t.variant.endOfChain()); err != nil {
				return 0, err
			}
			t.nextFree = candidate + 1
			return candidate, nil
		}
		candidate++
		if candidate >= t.clusters {
			candidate = 2
		}
	}
	return 0, checkpoint.From(discfs.ErrNoSpace)
}

// extendChain allocates a cluster and links it after tail, returning the new
// tail.
func (t *table) extendChain(tail uint32) (uint32, error) {
	next, err := t.allocate()
	if err != nil {
		return 0, err
	}
	if tail != 0 {
		if err := t.setNext(tail, next); err != nil {
			return 0, err
		}
	}
	return next, nil
}

// freeChain walks the chain from head, marking every cluster free. A bad
// cluster terminates the walk; a chain longer than the cluster count is a
// cycle and fails.
func (t *table) freeChain(head uint32) error {
	seen := map[uint32]bool{}
	cluster := head
	for steps := uint32(0); cluster >= 2 && cluster < t.clusters; steps++ {
		if steps > t.clusters || seen[cluster] {
			return checkpoint.From(discfs.ErrCorrupt)
		}
		seen[cluster] = true
		v, err := t.next(cluster)
		if err != nil {
			return err
		}
		if t.variant.isBadCluster(v) {
			break
		}
		if err := t.setNext(cluster, entryFree); err != nil {
			return err
		}
		if cluster < t.nextFree {
			t.nextFree = cluster
		}
		if t.variant.isEndOfChain(v) || v == entryFree {
			break
		}
		cluster = v
	}
	return nil
}

// chain collects the full cluster chain starting at head.
func (t *table) chain(head uint32) ([]uint32, error) {
	var out []uint32
	cluster := head
	for cluster >= 2 && cluster < t.clusters {
		if uint32(len(out)) > t.clusters {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}
		out = append(out, cluster)
		v, err := t.next(cluster)
		if err != nil {
			return nil, err
		}
		if t.variant.isEndOfChain(v) {
			return out, nil
		}
		if v == entryFree || t.variant.isBadCluster(v) {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}
		cluster = v
	}
	if head == 0 {
		return nil, nil
	}
	return out, checkpoint.From(discfs.ErrCorrupt)
}

// freeCount counts the free cells of the table.
func (t *table) freeCount() (uint32, error) {
	var free uint32
	for c := uint32(2); c < t.clusters; c++ {
		v, err := t.next(c)
		if err != nil {
			return 0, err
		}
		if v == entryFree {
			free++
		}
	}
	return free, nil
}

// flush writes the buffered table back: to every copy when mirrored, to the
// active copy only otherwise.
func (t *table) flush() error {
	if !t.dirty {
		return nil
	}
	if t.mirrored {
		for i := 0; i < t.copies; i++ {
			if _, err := t.dev.WriteAt(t.buf, t.offset+int64(i)*t.size); err != nil {
				return checkpoint.Wrap(err, discfs.ErrIO)
			}
		}
	} else {
		if _, err := t.dev.WriteAt(t.buf, t.offset+int64(t.active)*t.size); err != nil {
			return checkpoint.Wrap(err, discfs.ErrIO)
		}
	}
	t.dirty = false
	log.WithFields(log.Fields{"copies": t.copies, "mirrored": t.mirrored}).Debug("flushed allocation table")
	return nil
}
