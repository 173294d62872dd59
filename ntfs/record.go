package ntfs

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// Well known MFT record indexes.
const (
	recordMFT        = 0
	recordMFTMirror  = 1
	recordLogFile    = 2
	recordVolume     = 3
	recordAttrDefs   = 4
	recordRoot       = 5
	recordBitmap     = 6
	recordBoot       = 7
	recordBadClus    = 8
	recordSecure     = 9
	recordUpCase     = 10
	recordExtend     = 11
	firstUserRecord  = 16
	recordSignature  = "FILE"
	recordHeaderSize = 0x30
)

// Record flags.
const (
	recordFlagInUse       = 0x0001
	recordFlagIsDirectory = 0x0002
)

// FileReference addresses an MFT record together with the sequence number
// that guards against stale references.
type FileReference uint64

// Index returns the 48 bit MFT record index.
func (r FileReference) Index() uint64 {
	return uint64(r) & 0x0000FFFFFFFFFFFF
}

// Sequence returns the 16 bit sequence number.
func (r FileReference) Sequence() uint16 {
	return uint16(uint64(r) >> 48)
}

// Record is one parsed MFT file record.
type Record struct {
	Index         uint64
	Sequence      uint16
	HardLinkCount uint16
	Flags         uint16
	BaseReference FileReference
	Attributes    []Attribute
}

// InUse reports whether the record describes a live file.
func (r *Record) InUse() bool {
	return r.Flags&recordFlagInUse != 0
}

// IsDirectory reports whether the record describes a directory.
func (r *Record) IsDirectory() bool {
	return r.Flags&recordFlagIsDirectory != 0
}

// applyFixups verifies and removes the update sequence array in place. The
// last two bytes of every 512 byte slice must equal the update sequence
// number; a mismatch means a torn multi-sector write and the record is
// rejected as corrupt.
func applyFixups(data []byte) error {
	if len(data) < 8 {
		return checkpoint.From(discfs.ErrCorrupt)
	}
	usaOffset := binary.LittleEndian.Uint16(data[4:6])
	usaCount := binary.LittleEndian.Uint16(data[6:8])
	if usaCount < 2 || int(usaOffset)+int(usaCount)*2 > len(data) {
		return checkpoint.From(discfs.ErrCorrupt)
	}
	if int(usaCount-1)*discfs.SectorSize > len(data) {
		return checkpoint.From(discfs.ErrCorrupt)
	}

	usn := binary.LittleEndian.Uint16(data[usaOffset : usaOffset+2])
	for i := uint16(1); i < usaCount; i++ {
		sectorEnd := int(i) * discfs.SectorSize
		tail := binary.LittleEndian.Uint16(data[sectorEnd-2 : sectorEnd])
		if tail != usn {
			return checkpoint.From(discfs.ErrCorrupt)
		}
		saved := data[int(usaOffset)+int(i)*2 : int(usaOffset)+int(i)*2+2]
		copy(data[sectorEnd-2:sectorEnd], saved)
	}
	return nil
}

// parseRecord decodes a fixed-up file record buffer.
func parseRecord(index uint64, data []byte) (*Record, error) {
	if len(data) < recordHeaderSize || string(data[0:4]) != recordSignature {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	if err := applyFixups(data); err != nil {
		return nil, err
	}

	r := &Record{
		Index:         index,
		Sequence:      binary.LittleEndian.Uint16(data[0x10:]),
		HardLinkCount: binary.LittleEndian.Uint16(data[0x12:]),
		Flags:         binary.LittleEndian.Uint16(data[0x16:]),
		BaseReference: FileReference(binary.LittleEndian.Uint64(data[0x20:])),
	}
	firstAttr := int(binary.LittleEndian.Uint16(data[0x14:]))
	usedSize := int(binary.LittleEndian.Uint32(data[0x18:]))
	if firstAttr <= 0 || firstAttr >= len(data) || usedSize > len(data) {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}

	attrs, err := parseAttributes(data[firstAttr:])
	if err != nil {
		return nil, err
	}
	r.Attributes = attrs
	return r, nil
}

// parseAttributes walks attribute headers until the terminator.
func parseAttributes(b []byte) ([]Attribute, error) {
	var attrs []Attribute
	for len(b) >= 4 {
		attrType := binary.LittleEndian.Uint32(b)
		if attrType == uint32(attrTerminator) {
			break
		}
		if len(b) < 8 {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}
		recordLength := int(binary.LittleEndian.Uint32(b[4:]))
		if recordLength <= 0 || recordLength > len(b) {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}

		attr, err := parseAttribute(b[:recordLength])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
		b = b[recordLength:]
	}
	return attrs, nil
}

// parseAttribute decodes one attribute header plus content reference.
func parseAttribute(b []byte) (Attribute, error) {
	if len(b) < 0x18 {
		return Attribute{}, checkpoint.From(discfs.ErrCorrupt)
	}

	nonResident := b[0x08] != 0
	nameLength := int(b[0x09])
	nameOffset := int(binary.LittleEndian.Uint16(b[0x0A:]))

	attr := Attribute{
		Type:  AttributeType(binary.LittleEndian.Uint32(b)),
		Flags: binary.LittleEndian.Uint16(b[0x0C:]),
		ID:    int(binary.LittleEndian.Uint16(b[0x0E:])),
	}

	if nameLength > 0 {
		end := nameOffset + nameLength*2
		if end > len(b) {
			return Attribute{}, checkpoint.From(discfs.ErrCorrupt)
		}
		units := make([]uint16, nameLength)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[nameOffset+i*2:])
		}
		attr.Name = string(utf16.Decode(units))
	}

	if !nonResident {
		attr.Resident = true
		contentLength := int(binary.LittleEndian.Uint32(b[0x10:]))
		contentOffset := int(binary.LittleEndian.Uint16(b[0x14:]))
		if contentOffset+contentLength > len(b) {
			return Attribute{}, checkpoint.From(discfs.ErrCorrupt)
		}
		attr.Data = append([]byte(nil), b[contentOffset:contentOffset+contentLength]...)
		attr.RealSize = int64(contentLength)
		attr.AllocatedSize = int64(contentLength)
		attr.InitializedSize = int64(contentLength)
		return attr, nil
	}

	if len(b) < 0x40 {
		return Attribute{}, checkpoint.From(discfs.ErrCorrupt)
	}
	attr.StartVCN = int64(binary.LittleEndian.Uint64(b[0x10:]))
	attr.LastVCN = int64(binary.LittleEndian.Uint64(b[0x18:]))
	runsOffset := int(binary.LittleEndian.Uint16(b[0x20:]))
	attr.AllocatedSize = int64(binary.LittleEndian.Uint64(b[0x28:]))
	attr.RealSize = int64(binary.LittleEndian.Uint64(b[0x30:]))
	attr.InitializedSize = int64(binary.LittleEndian.Uint64(b[0x38:]))
	if runsOffset <= 0 || runsOffset > len(b) {
		return Attribute{}, checkpoint.From(discfs.ErrCorrupt)
	}

	runs, err := decodeRunlist(b[runsOffset:], attr.StartVCN)
	if err != nil {
		return Attribute{}, err
	}
	attr.Runs = runs
	return attr, nil
}
