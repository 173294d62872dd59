package ntfs

import (
	"encoding/binary"
	"math/bits"
	"strings"
	"unicode/utf16"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	log "github.com/sirupsen/logrus"
)

// Fs is a mounted NTFS volume. The engine is a reader: every mutating
// operation fails with ErrReadOnly.
type Fs struct {
	dev  discfs.Device
	opts discfs.Options
	boot *BootSector
	mft  *mft

	upcase []uint16
	label  string

	// dirCache holds enumerated directories keyed by MFT record index.
	dirCache map[uint64][]indexEntry
	closed   bool
}

// New mounts an NTFS volume from the given device. The bootstrap follows
// the on-disk dependency order: boot sector, MFT record 0, then the well
// known records for the root directory, cluster bitmap and upcase table.
func New(dev discfs.Device, opts discfs.Options) (*Fs, error) {
	opts = opts.WithDefaults()

	fs := &Fs{
		dev:      dev,
		opts:     opts,
		dirCache: map[uint64][]indexEntry{},
	}

	sector := make([]byte, discfs.SectorSize)
	if _, err := dev.ReadAt(sector, 0); err != nil {
		return nil, checkpoint.Wrap(err, discfs.ErrIO)
	}
	boot, err := parseBootSector(sector)
	if err != nil {
		return nil, err
	}
	fs.boot = boot

	table, err := bootstrapMFT(fs)
	if err != nil {
		return nil, err
	}
	fs.mft = table

	for _, idx := range []uint64{recordRoot, recordBitmap} {
		if _, err := table.record(idx); err != nil {
			return nil, err
		}
	}
	if err := fs.loadUpcase(); err != nil {
		return nil, err
	}
	fs.loadLabel()

	log.WithFields(log.Fields{
		"clusters": boot.TotalSectors / uint64(boot.SectorsPerCluster),
		"mftLCN":   boot.MFTStartLCN,
		"label":    fs.label,
	}).Debug("mounted NTFS volume")
	return fs, nil
}

// loadUpcase reads the $UpCase table used for name comparison. A volume
// without one falls back to simple upper casing.
func (fs *Fs) loadUpcase() error {
	record, err := fs.mft.record(recordUpCase)
	if err != nil {
		return nil
	}
	data := record.findAttr(AttrData, "")
	if data == nil {
		return nil
	}
	buf, err := fs.attrData(data)
	if err != nil {
		return err
	}
	table := make([]uint16, len(buf)/2)
	for i := range table {
		table[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	fs.upcase = table
	return nil
}

// loadLabel reads the volume name from record 3.
func (fs *Fs) loadLabel() {
	record, err := fs.mft.record(recordVolume)
	if err != nil {
		return
	}
	name := record.findAttr(AttrVolumeName, "")
	if name == nil || !name.Resident {
		return
	}
	units := make([]uint16, len(name.Data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(name.Data[i*2:])
	}
	fs.label = string(utf16.Decode(units))
}

// upper up-cases a name via the on-disk table.
func (fs *Fs) upper(s string) string {
	if fs.upcase == nil {
		return strings.ToUpper(s)
	}
	units := utf16.Encode([]rune(s))
	for i, u := range units {
		if int(u) < len(fs.upcase) {
			units[i] = fs.upcase[u]
		}
	}
	return string(utf16.Decode(units))
}

// readRuns reads length bytes at offset from a runlist, bounded by
// realSize. Sparse extents read as zeros; the tail past realSize reads
// short.
func (fs *Fs) readRuns(runs []Extent, offset, length, realSize int64) ([]byte, error) {
	if offset >= realSize {
		return nil, nil
	}
	if offset+length > realSize {
		length = realSize - offset
	}

	bpc := fs.boot.bytesPerCluster()
	out := make([]byte, length)
	filled := int64(0)

	position := int64(0) // byte position within the stream
	for _, run := range runs {
		runBytes := run.Length * bpc
		runStart := position
		position += runBytes
		if offset+filled >= position {
			continue
		}

		for filled < length && offset+filled < position {
			inRun := offset + filled - runStart
			take := runBytes - inRun
			if remaining := length - filled; take > remaining {
				take = remaining
			}
			if run.Sparse {
				// Zero already.
				filled += take
				continue
			}
			src := run.LCN*bpc + inRun
			if _, err := fs.dev.ReadAt(out[filled:filled+take], src); err != nil {
				return nil, err
			}
			filled += take
		}
		if filled >= length {
			break
		}
	}
	return out, nil
}

// attrData returns the full content of an attribute, resident or not.
func (fs *Fs) attrData(a *Attribute) ([]byte, error) {
	if a.Resident {
		return a.Data, nil
	}
	return fs.readRuns(a.Runs, 0, a.RealSize, a.RealSize)
}

// directoryEntries enumerates a directory record, cached by MFT index.
func (fs *Fs) directoryEntries(record *Record) ([]indexEntry, error) {
	if cached, ok := fs.dirCache[record.Index]; ok {
		return cached, nil
	}
	index, err := newDirectoryIndex(fs, record)
	if err != nil {
		return nil, err
	}
	all, err := index.entries()
	if err != nil {
		return nil, err
	}
	entries := fileNames(all)
	fs.dirCache[record.Index] = entries
	return entries, nil
}

// lookupChild finds name in a directory record by up-cased comparison.
func (fs *Fs) lookupChild(dir *Record, name string) (*Record, *FileName, error) {
	entries, err := fs.directoryEntries(dir)
	if err != nil {
		return nil, nil, err
	}
	want := fs.upper(name)
	for i := range entries {
		e := &entries[i]
		if fs.upper(e.Key.Name) != want {
			continue
		}
		child, err := fs.mft.recordByRef(e.Reference)
		if err != nil {
			return nil, nil, err
		}
		return child, e.Key, nil
	}
	return nil, nil, checkpoint.From(discfs.ErrNotExist)
}

// resolveRecord resolves a path (without stream suffix) to its MFT record,
// starting at the root record 5.
func (fs *Fs) resolveRecord(path string) (*Record, error) {
	record, err := fs.mft.fullRecord(recordRoot)
	if err != nil {
		return nil, err
	}
	for _, part := range discfs.SplitPath(path) {
		if !record.IsDirectory() {
			return nil, checkpoint.From(discfs.ErrNotADirectory)
		}
		child, _, err := fs.lookupChild(record, part)
		if err != nil {
			return nil, err
		}
		full, err := fs.mft.fullRecord(child.Index)
		if err != nil {
			return nil, err
		}
		record = full
	}
	return record, nil
}

// dataAttribute picks the $DATA attribute of a record by stream name.
func dataAttribute(record *Record, stream string) (*Attribute, error) {
	attr := record.findAttr(AttrData, stream)
	if attr == nil {
		return nil, checkpoint.From(discfs.ErrNotExist)
	}
	return attr, nil
}

// PathToClusters returns the non-sparse extents of the selected data stream
// of path, in stream order. An ":altstream" suffix selects a named stream.
func (fs *Fs) PathToClusters(path string) ([]Extent, error) {
	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		return nil, err
	}
	attr, err := dataAttribute(record, stream)
	if err != nil {
		return nil, err
	}
	if attr.Resident {
		return nil, nil
	}
	var out []Extent
	for _, run := range attr.Runs {
		if !run.Sparse {
			out = append(out, run)
		}
	}
	return out, nil
}

// TotalClusters returns the size of the volume in clusters.
func (fs *Fs) TotalClusters() int64 {
	return int64(fs.boot.TotalSectors) / int64(fs.boot.SectorsPerCluster)
}

// FreeClusters counts the zero bits of $Bitmap up to the cluster count.
func (fs *Fs) FreeClusters() (int64, error) {
	record, err := fs.mft.record(recordBitmap)
	if err != nil {
		return 0, err
	}
	attr, err := dataAttribute(record, "")
	if err != nil {
		return 0, err
	}
	bitmap, err := fs.attrData(attr)
	if err != nil {
		return 0, err
	}

	total := fs.TotalClusters()
	var used int64
	for i, b := range bitmap {
		if int64(i)*8 >= total {
			break
		}
		if rest := total - int64(i)*8; rest < 8 {
			b &= byte(1<<uint(rest)) - 1
		}
		used += int64(bits.OnesCount8(b))
	}
	free := total - used
	if free < 0 {
		free = 0
	}
	return free, nil
}

// FreeSpace returns the number of free bytes on the volume.
func (fs *Fs) FreeSpace() (int64, error) {
	free, err := fs.FreeClusters()
	if err != nil {
		return 0, err
	}
	return free * fs.boot.bytesPerCluster(), nil
}

// SecurityIDOf returns the $Secure security id referenced by path.
func (fs *Fs) SecurityIDOf(path string) (uint32, error) {
	record, err := fs.resolveRecord(path)
	if err != nil {
		return 0, err
	}
	si, err := fs.standardInformation(record)
	if err != nil {
		return 0, err
	}
	return si.SecurityID, nil
}

func (fs *Fs) standardInformation(record *Record) (*StandardInformation, error) {
	attr := record.findAttr(AttrStandardInformation, "")
	if attr == nil {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	return decodeStandardInformation(attr.Data)
}

// FSType returns "NTFS".
func (fs *Fs) FSType() string {
	return "NTFS"
}

// Label returns the volume name.
func (fs *Fs) Label() string {
	return fs.label
}

// CanWrite always reports false; the engine does not write.
func (fs *Fs) CanWrite() bool {
	return false
}

// Close releases the directory and record caches. Closing twice is a no-op.
func (fs *Fs) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	fs.dirCache = map[uint64][]indexEntry{}
	fs.mft.cache = map[uint64]*Record{}
	return nil
}
