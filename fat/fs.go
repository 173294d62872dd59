// Package fat implements read and write access to FAT12, FAT16 and FAT32
// filesystem images backed by an arbitrary byte stream, plus a formatter
// that writes a fresh filesystem into a stream.
package fat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	log "github.com/sirupsen/logrus"
)

// These errors may occur while working with a FAT filesystem. The generic
// discfs kind is attached alongside them, so both can be checked with
// errors.Is.
var (
	ErrInvalidBoot   = errors.New("invalid boot sector")
	ErrReadFile      = errors.New("could not read file completely")
	ErrSeekFile      = errors.New("could not seek inside of the file")
	ErrReadDir       = errors.New("could not read the directory")
	ErrFixedRootFull = errors.New("fixed root directory is full")
)

// Info contains all information about the whole filesystem.
type Info struct {
	FSType            Type
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	FATSize           uint32 // sectors per FAT copy
	FirstDataSector   uint32
	RootDirSectors    uint32
	RootCluster       uint32 // FAT32 only
	CountOfClusters   uint32
	MirroredFATs      bool
	ActiveFAT         int
	FSInfoSector      uint16
	VolumeID          uint32
	Label             string
}

// Fs is a FAT filesystem mounted on a Device. It implements
// discfs.FileSystem and therefore afero.Fs.
type Fs struct {
	dev      discfs.Device
	opts     discfs.Options
	info     Info
	table    *table
	dirCache map[uint32]*directory
	writable bool
	closed   bool

	// now stamps mutations; replaced in tests.
	now func() time.Time
}

// New mounts a FAT filesystem from the given device.
func New(dev discfs.Device, opts discfs.Options) (*Fs, error) {
	return newFs(dev, opts, false)
}

// NewFromReader mounts a read-only FAT filesystem from any seekable reader.
func NewFromReader(reader io.ReadSeeker, opts discfs.Options) (*Fs, error) {
	opts.ReadOnly = true
	return newFs(discfs.NewStreamDevice(reader), opts, false)
}

// NewSkipChecks mounts like New but skips some boot sector validations which
// may allow you to open not perfectly standard FAT filesystems.
// Use with caution!
func NewSkipChecks(dev discfs.Device, opts discfs.Options) (*Fs, error) {
	return newFs(dev, opts, true)
}

func newFs(dev discfs.Device, opts discfs.Options, skipChecks bool) (*Fs, error) {
	opts = opts.WithDefaults()
	opts.SkipChecks = opts.SkipChecks || skipChecks

	fs := &Fs{
		dev:      dev,
		opts:     opts,
		dirCache: map[uint32]*directory{},
		writable: dev.Writable() && !opts.ReadOnly,
		now:      time.Now,
	}
	if err := fs.initialize(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Fs) initialize() error {
	sector := make([]byte, discfs.SectorSize)
	if _, err := fs.dev.ReadAt(sector, 0); err != nil {
		return checkpoint.Wrap(err, discfs.ErrIO)
	}

	var bpb BPB
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &bpb); err != nil {
		return checkpoint.Wrap(err, discfs.ErrCorrupt)
	}

	if !fs.opts.SkipChecks {
		// Check for valid jump instructions.
		if !(bpb.BSJumpBoot[0] == 0xEB && bpb.BSJumpBoot[2] == 0x90) && bpb.BSJumpBoot[0] != 0xE9 {
			return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
		}
		// FAT only supports 512, 1024, 2048 and 4096 bytes per sector. Offsets
		// below are computed with the sector size from the boot sector.
		switch bpb.BytesPerSector {
		case 512, 1024, 2048, 4096:
		default:
			return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
		}
		// Sectors per cluster has to be a power of two, and the whole
		// cluster should not be more than 32K.
		spc := bpb.SectorsPerCluster
		if spc == 0 || spc&(spc-1) != 0 || uint32(bpb.BytesPerSector)*uint32(spc) > 32*1024 {
			return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
		}
		if bpb.ReservedSectorCount == 0 || bpb.NumFATs == 0 {
			return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
		}
		switch bpb.Media {
		case 0xF0, 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF:
		default:
			return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
		}
	}

	info := Info{
		SectorSize:        bpb.BytesPerSector,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectorCount,
		NumFATs:           bpb.NumFATs,
		RootEntryCount:    bpb.RootEntryCount,
		MirroredFATs:      true,
	}
	if info.SectorSize == 0 {
		info.SectorSize = discfs.SectorSize
	}

	if bpb.TotalSectors16 != 0 {
		info.TotalSectors = uint32(bpb.TotalSectors16)
	} else {
		info.TotalSectors = bpb.TotalSectors32
	}
	if info.TotalSectors == 0 {
		return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
	}

	var fat32 FAT32SpecificData
	if bpb.FATSize16 != 0 {
		info.FATSize = uint32(bpb.FATSize16)
	} else {
		if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &fat32); err != nil {
			return checkpoint.Wrap(err, discfs.ErrCorrupt)
		}
		info.FATSize = fat32.FATSize
	}
	if info.FATSize == 0 {
		return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
	}

	info.RootDirSectors = (uint32(bpb.RootEntryCount)*slotSize + uint32(info.SectorSize) - 1) / uint32(info.SectorSize)
	info.FirstDataSector = uint32(bpb.ReservedSectorCount) + uint32(bpb.NumFATs)*info.FATSize + info.RootDirSectors
	if info.FirstDataSector >= info.TotalSectors {
		return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
	}
	info.CountOfClusters = (info.TotalSectors - info.FirstDataSector) / uint32(bpb.SectorsPerCluster)

	// The variant follows from the cluster count and from nothing else.
	switch {
	case info.CountOfClusters < 4085:
		info.FSType = FAT12
	case info.CountOfClusters < 65525:
		info.FSType = FAT16
	default:
		info.FSType = FAT32
	}

	if info.FSType == FAT32 {
		if bpb.FATSize16 != 0 || bpb.RootEntryCount != 0 {
			if !fs.opts.SkipChecks {
				return checkpoint.Wrap(discfs.ErrCorrupt, ErrInvalidBoot)
			}
		}
		info.RootCluster = fat32.RootCluster
		info.FSInfoSector = fat32.FSInfoSector
		// Bit 7 of the extended flags disables mirroring; the low nibble
		// selects the active copy.
		if fat32.ExtFlags&0x80 != 0 {
			info.MirroredFATs = false
			info.ActiveFAT = int(fat32.ExtFlags & 0x0F)
		}
		info.VolumeID = fat32.BSVolumeID
		info.Label = strings.TrimRight(string(fat32.BSVolumeLabel[:]), " ")
	} else {
		var ext FAT16SpecificData
		if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &ext); err != nil {
			return checkpoint.Wrap(err, discfs.ErrCorrupt)
		}
		if ext.BSBootSignature == 0x29 {
			info.VolumeID = ext.BSVolumeID
			info.Label = strings.TrimRight(string(ext.BSVolumeLabel[:]), " ")
		}
	}

	fs.info = info

	table, err := newTable(
		fs.dev,
		info.FSType,
		int64(info.ReservedSectors)*int64(info.SectorSize),
		int64(info.FATSize)*int64(info.SectorSize),
		int(info.NumFATs),
		info.ActiveFAT,
		info.MirroredFATs,
		info.CountOfClusters+2,
	)
	if err != nil {
		return err
	}
	fs.table = table

	log.WithFields(log.Fields{
		"type":     info.FSType.String(),
		"clusters": info.CountOfClusters,
		"label":    info.Label,
	}).Debug("mounted FAT volume")
	return nil
}

// FSType returns the mounted FAT variant name.
func (fs *Fs) FSType() string {
	return fs.info.FSType.String()
}

// Label returns the volume label from the boot sector.
func (fs *Fs) Label() string {
	return fs.info.Label
}

// CanWrite reports whether the mount accepts mutations.
func (fs *Fs) CanWrite() bool {
	return fs.writable
}

// Info returns a copy of the volume facts.
func (fs *Fs) Info() Info {
	return fs.info
}

// FreeSpace returns the number of free bytes on the volume.
func (fs *Fs) FreeSpace() (int64, error) {
	free, err := fs.table.freeCount()
	if err != nil {
		return 0, err
	}
	return int64(free) * fs.bytesPerCluster(), nil
}

// FreeClusters returns the number of unallocated clusters.
func (fs *Fs) FreeClusters() (uint32, error) {
	return fs.table.freeCount()
}

// rootRegionOffset is the byte offset of the fixed FAT12/16 root directory.
func (fs *Fs) rootRegionOffset() int64 {
	sectors := int64(fs.info.ReservedSectors) + int64(fs.info.NumFATs)*int64(fs.info.FATSize)
	return sectors * int64(fs.info.SectorSize)
}

func (fs *Fs) bytesPerCluster() int64 {
	return int64(fs.info.SectorsPerCluster) * int64(fs.info.SectorSize)
}

// clusterOffset converts a data cluster index (>= 2) into the byte offset of
// its first sector.
func (fs *Fs) clusterOffset(cluster uint32) int64 {
	sector := int64(fs.info.FirstDataSector) + int64(cluster-2)*int64(fs.info.SectorsPerCluster)
	return sector * int64(fs.info.SectorSize)
}

func (fs *Fs) readCluster(cluster uint32, p []byte) error {
	if cluster < 2 || cluster >= fs.info.CountOfClusters+2 {
		return checkpoint.From(discfs.ErrCorrupt)
	}
	_, err := fs.dev.ReadAt(p, fs.clusterOffset(cluster))
	return err
}

func (fs *Fs) writeCluster(cluster uint32, p []byte) error {
	if cluster < 2 || cluster >= fs.info.CountOfClusters+2 {
		return checkpoint.From(discfs.ErrCorrupt)
	}
	_, err := fs.dev.WriteAt(p, fs.clusterOffset(cluster))
	return err
}

// readFileAt reads up to readSize bytes at offset from the chain starting at
// firstCluster, clamped by fileSize. Reading at or past fileSize returns an
// empty slice.
func (fs *Fs) readFileAt(firstCluster uint32, fileSize, offset, readSize int64) ([]byte, error) {
	if offset >= fileSize || readSize <= 0 {
		return nil, nil
	}
	if offset+readSize > fileSize {
		readSize = fileSize - offset
	}

	chain, err := fs.table.chain(firstCluster)
	if err != nil {
		return nil, err
	}

	bpc := fs.bytesPerCluster()
	out := make([]byte, 0, readSize)
	clusterBuf := make([]byte, bpc)

	idx := offset / bpc
	clusterOff := offset % bpc
	for int64(len(out)) < readSize {
		if idx >= int64(len(chain)) {
			break
		}
		if err := fs.readCluster(chain[idx], clusterBuf); err != nil {
			return nil, err
		}
		take := bpc - clusterOff
		if remaining := readSize - int64(len(out)); take > remaining {
			take = remaining
		}
		out = append(out, clusterBuf[clusterOff:clusterOff+take]...)
		clusterOff = 0
		idx++
	}
	return out, nil
}

// writeFileAt writes p at offset into the chain starting at firstCluster.
// The chain must already cover offset+len(p) bytes.
func (fs *Fs) writeFileAt(firstCluster uint32, offset int64, p []byte) error {
	chain, err := fs.table.chain(firstCluster)
	if err != nil {
		return err
	}
	bpc := fs.bytesPerCluster()

	idx := offset / bpc
	clusterOff := offset % bpc
	written := int64(0)
	clusterBuf := make([]byte, bpc)
	for written < int64(len(p)) {
		if idx >= int64(len(chain)) {
			return checkpoint.From(discfs.ErrNoSpace)
		}
		take := bpc - clusterOff
		if remaining := int64(len(p)) - written; take > remaining {
			take = remaining
		}
		if take == bpc {
			copy(clusterBuf, p[written:written+take])
		} else {
			// Partial cluster write keeps the surrounding bytes.
			if err := fs.readCluster(chain[idx], clusterBuf); err != nil {
				return err
			}
			copy(clusterBuf[clusterOff:], p[written:written+take])
		}
		if err := fs.writeCluster(chain[idx], clusterBuf); err != nil {
			return err
		}
		written += take
		clusterOff = 0
		idx++
	}
	return nil
}

// ensureChain grows the chain at firstCluster until it covers size bytes,
// zero-filling fresh clusters. A zero firstCluster allocates a new chain.
// It returns the (possibly new) chain head.
func (fs *Fs) ensureChain(firstCluster uint32, size int64) (uint32, error) {
	if size <= 0 {
		return firstCluster, nil
	}
	bpc := fs.bytesPerCluster()
	needed := (size + bpc - 1) / bpc

	chain, err := fs.table.chain(firstCluster)
	if err != nil {
		return 0, err
	}

	zero := make([]byte, bpc)
	tail := uint32(0)
	if len(chain) > 0 {
		tail = chain[len(chain)-1]
	}
	for int64(len(chain)) < needed {
		next, err := fs.table.extendChain(tail)
		if err != nil {
			return 0, err
		}
		if err := fs.writeCluster(next, zero); err != nil {
			return 0, err
		}
		if firstCluster == 0 {
			firstCluster = next
		}
		chain = append(chain, next)
		tail = next
	}
	return firstCluster, nil
}

// shrinkChain frees clusters beyond size bytes. Shrinking to zero frees the
// whole chain and returns a zero head.
func (fs *Fs) shrinkChain(firstCluster uint32, size int64) (uint32, error) {
	if firstCluster == 0 {
		return 0, nil
	}
	bpc := fs.bytesPerCluster()
	keep := (size + bpc - 1) / bpc

	chain, err := fs.table.chain(firstCluster)
	if err != nil {
		return 0, err
	}
	if int64(len(chain)) <= keep {
		return firstCluster, nil
	}
	if keep == 0 {
		if err := fs.table.freeChain(firstCluster); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err := fs.table.freeChain(chain[keep]); err != nil {
		return 0, err
	}
	if err := fs.table.setNext(chain[keep-1], fs.info.FSType.endOfChain()); err != nil {
		return 0, err
	}
	return firstCluster, nil
}

// Close releases the directory cache and flushes pending table writes.
// Closing twice is a no-op.
func (fs *Fs) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	fs.dirCache = map[uint32]*directory{}
	if fs.writable {
		return fs.table.flush()
	}
	return nil
}
