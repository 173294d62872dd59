// Package ntfs implements read-only access to NTFS filesystem images backed
// by an arbitrary byte stream.
package ntfs

import (
	"encoding/binary"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// BootSector is the parsed NTFS boot sector.
type BootSector struct {
	OEMID                 [8]byte
	BytesPerSector        uint16
	SectorsPerCluster     uint8
	MediaDescriptor       uint8
	SectorsPerTrack       uint16
	NumberOfHeads         uint16
	HiddenSectors         uint32
	TotalSectors          uint64
	MFTStartLCN           uint64
	MFTMirrorStartLCN     uint64
	ClustersPerMFTRecord  int8
	ClustersPerIndexBlock int8
	VolumeSerial          uint64
}

// parseBootSector decodes sector 0. The signature check is strict: the OEM
// field must read "NTFS    ".
func parseBootSector(data []byte) (*BootSector, error) {
	if len(data) < discfs.SectorSize {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	if string(data[3:11]) != "NTFS    " {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}

	bs := &BootSector{}
	copy(bs.OEMID[:], data[3:11])
	bs.BytesPerSector = binary.LittleEndian.Uint16(data[0x0B:])
	bs.SectorsPerCluster = data[0x0D]
	bs.MediaDescriptor = data[0x15]
	bs.SectorsPerTrack = binary.LittleEndian.Uint16(data[0x18:])
	bs.NumberOfHeads = binary.LittleEndian.Uint16(data[0x1A:])
	bs.HiddenSectors = binary.LittleEndian.Uint32(data[0x1C:])
	bs.TotalSectors = binary.LittleEndian.Uint64(data[0x28:])
	bs.MFTStartLCN = binary.LittleEndian.Uint64(data[0x30:])
	bs.MFTMirrorStartLCN = binary.LittleEndian.Uint64(data[0x38:])
	bs.ClustersPerMFTRecord = int8(data[0x40])
	bs.ClustersPerIndexBlock = int8(data[0x44])
	bs.VolumeSerial = binary.LittleEndian.Uint64(data[0x48:])

	switch bs.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	spc := bs.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	return bs, nil
}

// bytesPerCluster returns the cluster size in bytes.
func (bs *BootSector) bytesPerCluster() int64 {
	return int64(bs.BytesPerSector) * int64(bs.SectorsPerCluster)
}

// mftRecordSize decodes the clusters-per-record field: positive values count
// clusters, negative ones are a power-of-two byte size.
func (bs *BootSector) mftRecordSize() int64 {
	if bs.ClustersPerMFTRecord > 0 {
		return int64(bs.ClustersPerMFTRecord) * bs.bytesPerCluster()
	}
	return 1 << uint(-bs.ClustersPerMFTRecord)
}

// indexBlockSize decodes the clusters-per-index-block field the same way.
func (bs *BootSector) indexBlockSize() int64 {
	if bs.ClustersPerIndexBlock > 0 {
		return int64(bs.ClustersPerIndexBlock) * bs.bytesPerCluster()
	}
	return 1 << uint(-bs.ClustersPerIndexBlock)
}
