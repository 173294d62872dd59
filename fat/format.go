package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	log "github.com/sirupsen/logrus"
)

// FormatOptions parameterizes Format. Zero values select the documented
// defaults.
type FormatOptions struct {
	// Label is the volume label, up to 11 OEM characters.
	Label string
	// OEMName goes into the boot sector, up to 8 characters.
	OEMName string
	// VolumeID is the volume serial number; derived from the clock when 0.
	VolumeID uint32
	// SectorCount overrides the sector count derived from the device size.
	SectorCount uint32
	// ReservedSectors defaults to 1 for FAT12/16 and 32 for FAT32.
	ReservedSectors uint16
	// SectorsPerTrack and Heads describe the geometry, defaulting to 63/255.
	SectorsPerTrack uint16
	Heads           uint16
	// HiddenSectors is the partition offset in sectors.
	HiddenSectors uint32
	// ForceFAT32 formats volumes that the size table would give FAT16 as
	// FAT32; up to 532480 sectors such a volume gets one sector per cluster.
	ForceFAT32 bool
}

// FloppySize selects one of the fixed floppy profiles.
type FloppySize int

const (
	// Floppy720 is a 720 KiB double density 3.5" disk.
	Floppy720 FloppySize = iota
	// Floppy144 is a 1.44 MiB high density 3.5" disk.
	Floppy144
	// Floppy288 is a 2.88 MiB extra high density 3.5" disk.
	Floppy288
)

type geometryProfile struct {
	variant         Type
	sectors         uint32
	sectorsPerClust uint8
	sectorsPerTrack uint16
	heads           uint16
	media           byte
	rootEntries     uint16
	fatSectors      uint32
}

var floppyProfiles = map[FloppySize]geometryProfile{
	Floppy720: {FAT12, 1440, 2, 9, 2, 0xF9, 112, 3},
	Floppy144: {FAT12, 2880, 1, 18, 2, 0xF0, 224, 9},
	Floppy288: {FAT12, 5760, 2, 36, 2, 0xF0, 240, 9},
}

// clusterSizeFor picks variant and sectors per cluster from the sector
// count. Volumes of 8400 sectors or less are too small for a hard disk
// profile and are rejected.
func clusterSizeFor(sectors uint32, forceFAT32 bool) (Type, uint8, error) {
	if sectors <= 8400 {
		return 0, 0, checkpoint.From(discfs.ErrNoSpace)
	}
	if forceFAT32 {
		switch {
		case sectors <= 532480:
			return FAT32, 1, nil
		case sectors <= 16777216:
			return FAT32, 8, nil
		case sectors <= 33554432:
			return FAT32, 16, nil
		case sectors <= 67108864:
			return FAT32, 32, nil
		default:
			return FAT32, 64, nil
		}
	}
	switch {
	case sectors <= 32680:
		return FAT16, 2, nil
	case sectors <= 262144:
		return FAT16, 4, nil
	case sectors <= 524288:
		return FAT16, 8, nil
	case sectors < 1048576:
		return FAT16, 16, nil
	case sectors <= 16777216:
		return FAT32, 8, nil
	case sectors <= 33554432:
		return FAT32, 16, nil
	case sectors <= 67108864:
		return FAT32, 32, nil
	default:
		return FAT32, 64, nil
	}
}

// fatSizeSectors computes the sectors per FAT copy for the given layout:
// ceil(clusters * entryBits / 8 / bytesPerSector), converged over the space
// the FATs themselves take.
func fatSizeSectors(variant Type, totalSectors, rootDirSectors uint32, reserved uint16, spc uint8, numFATs uint8) uint32 {
	entryBits := uint32(12)
	switch variant {
	case FAT16:
		entryBits = 16
	case FAT32:
		entryBits = 32
	}

	fatSize := uint32(0)
	for i := 0; i < 8; i++ {
		dataSectors := totalSectors - uint32(reserved) - rootDirSectors - uint32(numFATs)*fatSize
		clusters := dataSectors/uint32(spc) + 2
		needed := (clusters*entryBits/8 + discfs.SectorSize - 1) / discfs.SectorSize
		if needed == fatSize {
			break
		}
		fatSize = needed
	}
	return fatSize
}

// Format writes a fresh, empty FAT filesystem onto the device.
func Format(dev discfs.Device, opts FormatOptions) error {
	if !dev.Writable() {
		return checkpoint.From(discfs.ErrReadOnly)
	}

	sectors := opts.SectorCount
	if sectors == 0 {
		sectors = uint32(dev.Size() / discfs.SectorSize)
	}
	variant, spc, err := clusterSizeFor(sectors, opts.ForceFAT32)
	if err != nil {
		return err
	}

	profile := geometryProfile{
		variant:         variant,
		sectors:         sectors,
		sectorsPerClust: spc,
		sectorsPerTrack: opts.SectorsPerTrack,
		heads:           opts.Heads,
		media:           0xF8,
		rootEntries:     512,
	}
	if profile.sectorsPerTrack == 0 {
		profile.sectorsPerTrack = 63
	}
	if profile.heads == 0 {
		profile.heads = 255
	}
	if variant == FAT32 {
		profile.rootEntries = 0
	}
	return format(dev, profile, opts)
}

// FormatFloppy writes a FAT12 filesystem with one of the fixed floppy
// geometries.
func FormatFloppy(dev discfs.Device, size FloppySize, label string) error {
	profile, ok := floppyProfiles[size]
	if !ok {
		return checkpoint.From(discfs.ErrUnsupported)
	}
	return format(dev, profile, FormatOptions{Label: label})
}

func format(dev discfs.Device, profile geometryProfile, opts FormatOptions) error {
	reserved := opts.ReservedSectors
	if reserved == 0 {
		reserved = 1
		if profile.variant == FAT32 {
			reserved = 32
		}
	}
	const numFATs = 2

	rootDirSectors := (uint32(profile.rootEntries)*slotSize + discfs.SectorSize - 1) / discfs.SectorSize
	fatSize := profile.fatSectors
	if fatSize == 0 {
		fatSize = fatSizeSectors(profile.variant, profile.sectors, rootDirSectors, reserved, profile.sectorsPerClust, numFATs)
	}

	label := strings.ToUpper(opts.Label)
	if label == "" {
		label = "NO NAME"
	}
	var labelField [11]byte
	copy(labelField[:], "           ")
	copy(labelField[:], label)

	oem := opts.OEMName
	if oem == "" {
		oem = "MSDOS5.0"
	}
	volumeID := opts.VolumeID
	if volumeID == 0 {
		now := time.Now()
		volumeID = uint32(now.Unix()<<20 | now.UnixNano()/1e6)
	}

	bpb := BPB{
		BSJumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:      discfs.SectorSize,
		SectorsPerCluster:   profile.sectorsPerClust,
		ReservedSectorCount: reserved,
		NumFATs:             numFATs,
		RootEntryCount:      profile.rootEntries,
		Media:               profile.media,
		SectorsPerTrack:     profile.sectorsPerTrack,
		NumberOfHeads:       profile.heads,
		HiddenSectors:       opts.HiddenSectors,
	}
	copy(bpb.BSOEMName[:], "        ")
	copy(bpb.BSOEMName[:], oem)
	if profile.sectors < 0x10000 && profile.variant != FAT32 {
		bpb.TotalSectors16 = uint16(profile.sectors)
	} else {
		bpb.TotalSectors32 = profile.sectors
	}

	if profile.variant == FAT32 {
		bpb.BSJumpBoot = [3]byte{0xEB, 0x58, 0x90}
		ext := FAT32SpecificData{
			FATSize:         fatSize,
			RootCluster:     2,
			FSInfoSector:    1,
			BkBootSector:    6,
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      volumeID,
		}
		copy(ext.BSVolumeLabel[:], "           ")
		copy(ext.BSVolumeLabel[:], label)
		copy(ext.BSFileSystemType[:], "FAT32   ")
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, ext); err != nil {
			return checkpoint.From(err)
		}
		copy(bpb.FATSpecificData[:], buf.Bytes())
	} else {
		bpb.FATSize16 = uint16(fatSize)
		ext := FAT16SpecificData{
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      volumeID,
		}
		if profile.variant == FAT12 {
			ext.BSDriveNumber = 0x00
		}
		copy(ext.BSVolumeLabel[:], "           ")
		copy(ext.BSVolumeLabel[:], label)
		fsType := "FAT16   "
		if profile.variant == FAT12 {
			fsType = "FAT12   "
		}
		copy(ext.BSFileSystemType[:], fsType)
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, ext); err != nil {
			return checkpoint.From(err)
		}
		copy(bpb.FATSpecificData[:], buf.Bytes())
	}

	bootSector := make([]byte, discfs.SectorSize)
	var bootBuf bytes.Buffer
	if err := binary.Write(&bootBuf, binary.LittleEndian, bpb); err != nil {
		return checkpoint.From(err)
	}
	copy(bootSector, bootBuf.Bytes())
	bootSector[510] = 0x55
	bootSector[511] = 0xAA
	if _, err := dev.WriteAt(bootSector, 0); err != nil {
		return checkpoint.Wrap(err, discfs.ErrIO)
	}

	if profile.variant == FAT32 {
		if err := writeFSInfo(dev, 1, 0xFFFFFFFF, 3); err != nil {
			return err
		}
		// Backup boot sector.
		if _, err := dev.WriteAt(bootSector, 6*discfs.SectorSize); err != nil {
			return checkpoint.Wrap(err, discfs.ErrIO)
		}
	}

	// Initialize the FAT copies: entry 0 holds the media descriptor, entry 1
	// an end-of-chain marker, and on FAT32 entry 2 terminates the fresh root.
	fatBuf := make([]byte, fatSize*discfs.SectorSize)
	mask := profile.variant.entryMask()
	seed := table{variant: profile.variant, buf: fatBuf, clusters: ^uint32(0)}
	seed.setNext(0, uint32(profile.media)|(0xFFFFFF00&mask))
	seed.setNext(1, mask)
	if profile.variant == FAT32 {
		seed.setNext(2, mask)
	}
	for i := 0; i < numFATs; i++ {
		off := (int64(reserved) + int64(i)*int64(fatSize)) * discfs.SectorSize
		if _, err := dev.WriteAt(fatBuf, off); err != nil {
			return checkpoint.Wrap(err, discfs.ErrIO)
		}
	}

	// Empty root directory, with the volume label as its first entry.
	rootSize := int64(rootDirSectors) * discfs.SectorSize
	rootOffset := (int64(reserved) + numFATs*int64(fatSize)) * discfs.SectorSize
	if profile.variant == FAT32 {
		rootSize = int64(profile.sectorsPerClust) * discfs.SectorSize
		firstDataSector := int64(reserved) + numFATs*int64(fatSize)
		rootOffset = firstDataSector * discfs.SectorSize // cluster 2
	}
	rootBuf := make([]byte, rootSize)
	if opts.Label != "" || profile.variant != FAT32 {
		labelEntry := EntryHeader{
			Name:      labelField,
			Attribute: byte(discfs.AttrVolumeLabel),
		}
		packEntry(rootBuf, labelEntry)
	}
	if _, err := dev.WriteAt(rootBuf, rootOffset); err != nil {
		return checkpoint.Wrap(err, discfs.ErrIO)
	}

	// Pad the stream to its full size.
	full := int64(profile.sectors) * discfs.SectorSize
	if dev.Size() < full {
		if err := dev.Truncate(full); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"type":    profile.variant.String(),
		"sectors": profile.sectors,
		"label":   label,
	}).Debug("formatted volume")
	return nil
}

// writeFSInfo writes a FAT32 FS information sector.
func writeFSInfo(dev discfs.Device, sector uint32, freeCount, nextFree uint32) error {
	buf := make([]byte, discfs.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:], 0x41615252)   // "RRaA"
	binary.LittleEndian.PutUint32(buf[484:], 0x61417272) // "rrAa"
	binary.LittleEndian.PutUint32(buf[488:], freeCount)
	binary.LittleEndian.PutUint32(buf[492:], nextFree)
	buf[510] = 0x55
	buf[511] = 0xAA
	_, err := dev.WriteAt(buf, int64(sector)*discfs.SectorSize)
	return checkpoint.Wrap(err, discfs.ErrIO)
}
