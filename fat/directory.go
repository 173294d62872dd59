package fat

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	log "github.com/sirupsen/logrus"
)

// fixedRootKey is the cache key of the FAT12/16 root region, which has no
// first cluster of its own. Cluster 0 is reserved, so the key cannot clash.
const fixedRootKey = uint32(0)

// directory is the in-memory image of one directory: the raw 32 byte slots
// plus the parsed entries. It is cached per filesystem, keyed by the first
// cluster, and evicted when the directory is deleted or moved.
type directory struct {
	fs        *Fs
	key       uint32
	fixedRoot bool
	buf       []byte
	entries   []dirEntry
}

// dirEntry is one parsed directory entry: the short slot, the number of
// preceding long name slots and the display name.
type dirEntry struct {
	index    int // slot index of the short entry
	lfnSlots int
	header   EntryHeader
	name     string
}

// IsDir reports whether the entry describes a subdirectory.
func (e *dirEntry) IsDir() bool {
	return discfs.Attributes(e.header.Attribute).IsDir()
}

// directory loads (or returns from cache) the directory whose content starts
// at firstCluster. firstCluster 0 addresses the fixed root region.
func (fs *Fs) directory(firstCluster uint32) (*directory, error) {
	if fs.info.FSType == FAT32 && firstCluster == 0 {
		firstCluster = fs.info.RootCluster
	}
	if d, ok := fs.dirCache[firstCluster]; ok {
		return d, nil
	}

	d := &directory{
		fs:        fs,
		key:       firstCluster,
		fixedRoot: firstCluster == fixedRootKey,
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	fs.dirCache[firstCluster] = d
	return d, nil
}

// root returns the root directory.
func (fs *Fs) root() (*directory, error) {
	return fs.directory(0)
}

// forget drops a directory from the cache after delete or move.
func (fs *Fs) forget(key uint32) {
	delete(fs.dirCache, key)
	log.WithField("cluster", key).Debug("evicted directory from cache")
}

func (d *directory) load() error {
	if d.fixedRoot {
		size := int64(d.fs.info.RootDirSectors) * int64(d.fs.info.SectorSize)
		d.buf = make([]byte, size)
		if _, err := d.fs.dev.ReadAt(d.buf, d.fs.rootRegionOffset()); err != nil {
			return checkpoint.Wrap(err, ErrReadDir)
		}
	} else {
		chain, err := d.fs.table.chain(d.key)
		if err != nil {
			return err
		}
		bpc := d.fs.bytesPerCluster()
		d.buf = make([]byte, int64(len(chain))*bpc)
		for i, cluster := range chain {
			if err := d.fs.readCluster(cluster, d.buf[int64(i)*bpc:int64(i+1)*bpc]); err != nil {
				return checkpoint.Wrap(err, ErrReadDir)
			}
		}
	}
	d.parse()
	return nil
}

// persist writes the slot buffer back to disk. For chain directories the
// chain is grown first if the buffer outgrew it.
func (d *directory) persist() error {
	if d.fixedRoot {
		if _, err := d.fs.dev.WriteAt(d.buf, d.fs.rootRegionOffset()); err != nil {
			return checkpoint.Wrap(err, discfs.ErrIO)
		}
		return d.fs.table.flush()
	}

	head, err := d.fs.ensureChain(d.key, int64(len(d.buf)))
	if err != nil {
		return err
	}
	if head != d.key {
		// A directory chain never starts empty, its head is stable.
		return checkpoint.From(discfs.ErrCorrupt)
	}
	if err := d.fs.writeFileAt(d.key, 0, d.buf); err != nil {
		return err
	}
	return d.fs.table.flush()
}

// parse rebuilds the entry list from the slot buffer.
func (d *directory) parse() {
	d.entries = d.entries[:0]

	type lfnPart struct {
		seq      int
		checksum byte
		units    []uint16
	}
	var parts []lfnPart

	count := len(d.buf) / slotSize
	for i := 0; i < count; i++ {
		slot := d.buf[i*slotSize : (i+1)*slotSize]
		switch slot[0] {
		case slotFree:
			// All following slots are free too.
			return
		case slotDeleted:
			parts = parts[:0]
			continue
		}

		if discfs.Attributes(slot[11]) == discfs.AttrLongName {
			var lfn LongFilenameEntry
			if err := binary.Read(bytes.NewReader(slot), binary.LittleEndian, &lfn); err != nil {
				parts = parts[:0]
				continue
			}
			units := make([]uint16, 0, lfnChars)
			units = append(units, lfn.First[:]...)
			units = append(units, lfn.Second[:]...)
			units = append(units, lfn.Third[:]...)
			parts = append(parts, lfnPart{
				seq:      int(lfn.Sequence &^ lfnLastMask),
				checksum: lfn.Checksum,
				units:    units,
			})
			continue
		}

		var header EntryHeader
		if err := binary.Read(bytes.NewReader(slot), binary.LittleEndian, &header); err != nil {
			parts = parts[:0]
			continue
		}

		entry := dirEntry{
			index:  i,
			header: header,
		}

		// Reassemble the long name, newest ordinal first on disk.
		if len(parts) > 0 {
			sum := lfnChecksum(header.Name)
			valid := true
			var units []uint16
			for j := len(parts) - 1; j >= 0; j-- {
				p := parts[j]
				if p.checksum != sum || p.seq != len(parts)-j {
					valid = false
					break
				}
				units = append(units, p.units...)
			}
			if valid {
				for k, u := range units {
					if u == 0x0000 {
						units = units[:k]
						break
					}
				}
				entry.name = string(utf16.Decode(units))
				entry.lfnSlots = len(parts)
			}
			parts = parts[:0]
		}
		if entry.name == "" {
			entry.name = displayShortName(header.Name)
		}

		d.entries = append(d.entries, entry)
	}
}

// findByName returns the entry index of name, or -1. Volume label entries
// never match.
func (d *directory) findByName(name string) int {
	for i := range d.entries {
		e := &d.entries[i]
		if discfs.Attributes(e.header.Attribute).Has(discfs.AttrVolumeLabel) {
			continue
		}
		if e.name == "." || e.name == ".." {
			if name == e.name {
				return i
			}
			continue
		}
		if namesEqual(e.name, name) {
			return i
		}
		if namesEqual(displayShortName(e.header.Name), name) {
			return i
		}
	}
	return -1
}

// shortNameTaken reports whether an 11 byte short form is already used.
func (d *directory) shortNameTaken(field [11]byte) bool {
	for i := range d.entries {
		if d.entries[i].header.Name == field {
			return true
		}
	}
	return false
}

// freeRun finds the first run of length free or deleted slots, or -1.
func (d *directory) freeRun(length int) int {
	count := len(d.buf) / slotSize
	run := 0
	for i := 0; i < count; i++ {
		first := d.buf[i*slotSize]
		if first == slotFree || first == slotDeleted {
			run++
			if run == length {
				return i - length + 1
			}
		} else {
			run = 0
		}
	}
	return -1
}

// addEntry registers name with the given short entry header in the
// directory, generating long name slots when needed. It returns the index
// of the new entry in d.entries.
func (d *directory) addEntry(name string, header EntryHeader) (int, error) {
	if err := discfs.ValidateComponent(name); err != nil {
		return -1, err
	}
	if d.findByName(name) >= 0 {
		return -1, checkpoint.From(discfs.ErrExist)
	}

	shortField, fits := normalizeShortName(name, d.fs.opts.OEMEncoding)
	var lfnSlots [][]byte
	if fits && !d.shortNameTaken(shortField) {
		header.Name = shortField
	} else {
		alias, err := makeShortAlias(name, d.fs.opts.OEMEncoding, d.shortNameTaken)
		if err != nil {
			return -1, err
		}
		header.Name = alias
		lfnSlots = buildLFNSlots(name, lfnChecksum(alias))
	}

	needed := len(lfnSlots) + 1
	start := d.freeRun(needed)
	if start < 0 {
		if d.fixedRoot {
			return -1, checkpoint.Wrap(ErrFixedRootFull, discfs.ErrNoSpace)
		}
		// Extend the directory by one cluster of fresh free slots.
		d.buf = append(d.buf, make([]byte, d.fs.bytesPerCluster())...)
		start = d.freeRun(needed)
		if start < 0 {
			return -1, checkpoint.From(discfs.ErrNoSpace)
		}
	}

	for i, slot := range lfnSlots {
		copy(d.buf[(start+i)*slotSize:], slot)
	}
	var short bytes.Buffer
	if err := binary.Write(&short, binary.LittleEndian, header); err != nil {
		return -1, checkpoint.From(err)
	}
	copy(d.buf[(start+len(lfnSlots))*slotSize:], short.Bytes())

	if err := d.persist(); err != nil {
		return -1, err
	}
	d.parse()

	idx := d.indexOfSlot(start + len(lfnSlots))
	if idx < 0 {
		return -1, checkpoint.From(discfs.ErrCorrupt)
	}
	return idx, nil
}

// deleteEntry marks the short slot and its long name slots deleted. With
// wipeChain the referenced cluster chain is freed too.
func (d *directory) deleteEntry(idx int, wipeChain bool) error {
	if idx < 0 || idx >= len(d.entries) {
		return checkpoint.From(discfs.ErrNotExist)
	}
	e := d.entries[idx]
	for i := e.index - e.lfnSlots; i <= e.index; i++ {
		d.buf[i*slotSize] = slotDeleted
	}
	if wipeChain {
		if first := e.header.FirstCluster(); first >= 2 {
			if err := d.fs.table.freeChain(first); err != nil {
				return err
			}
		}
	}
	if err := d.persist(); err != nil {
		return err
	}
	d.parse()
	return nil
}

// updateEntry overwrites the short slot of entry idx in place. The name
// bytes are preserved; timestamps change only if the caller changed them.
func (d *directory) updateEntry(idx int, header EntryHeader) error {
	if idx < 0 || idx >= len(d.entries) {
		return checkpoint.From(discfs.ErrNotExist)
	}
	header.Name = d.entries[idx].header.Name
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return checkpoint.From(err)
	}
	copy(d.buf[d.entries[idx].index*slotSize:], buf.Bytes())
	if err := d.persist(); err != nil {
		return err
	}
	d.parse()
	return nil
}

// indexOfSlot maps a raw slot index back to the parsed entry index.
func (d *directory) indexOfSlot(slot int) int {
	for i := range d.entries {
		if d.entries[i].index == slot {
			return i
		}
	}
	return -1
}

// packEntry serializes a short entry header into a 32 byte slot.
func packEntry(dst []byte, header EntryHeader) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, header)
	copy(dst, buf.Bytes())
}

// buildLFNSlots serializes name into long name slots, last ordinal first as
// stored on disk.
func buildLFNSlots(name string, checksum byte) [][]byte {
	units := utf16.Encode([]rune(name))
	// Terminator plus 0xFFFF padding to a full slot.
	padded := append(append([]uint16{}, units...), 0x0000)
	for len(padded)%lfnChars != 0 {
		padded = append(padded, 0xFFFF)
	}

	groups := len(padded) / lfnChars
	slots := make([][]byte, 0, groups)
	for g := groups - 1; g >= 0; g-- {
		chunk := padded[g*lfnChars : (g+1)*lfnChars]
		lfn := LongFilenameEntry{
			Sequence:  byte(g + 1),
			Attribute: byte(discfs.AttrLongName),
			Checksum:  checksum,
		}
		if g == groups-1 {
			lfn.Sequence |= lfnLastMask
		}
		copy(lfn.First[:], chunk[0:5])
		copy(lfn.Second[:], chunk[5:11])
		copy(lfn.Third[:], chunk[11:13])

		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, lfn)
		slots = append(slots, buf.Bytes())
	}
	return slots
}
