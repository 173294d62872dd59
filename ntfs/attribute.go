package ntfs

import (
	"encoding/binary"
	"time"
	"unicode/utf16"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// AttributeType is the 32 bit attribute type code.
type AttributeType uint32

// The known attribute types.
const (
	AttrStandardInformation AttributeType = 0x10
	AttrAttributeList       AttributeType = 0x20
	AttrFileName            AttributeType = 0x30
	AttrObjectID            AttributeType = 0x40
	AttrSecurityDescriptor  AttributeType = 0x50
	AttrVolumeName          AttributeType = 0x60
	AttrVolumeInformation   AttributeType = 0x70
	AttrData                AttributeType = 0x80
	AttrIndexRoot           AttributeType = 0x90
	AttrIndexAllocation     AttributeType = 0xA0
	AttrBitmap              AttributeType = 0xB0
	AttrReparsePoint        AttributeType = 0xC0
	AttrEAInformation       AttributeType = 0xD0
	AttrEA                  AttributeType = 0xE0
	AttrPropertySet         AttributeType = 0xF0
	AttrLoggedUtilityStream AttributeType = 0x100

	attrTerminator AttributeType = 0xFFFFFFFF
)

// Attribute is one attribute of a file record: the header fields plus either
// the resident content or the decoded runlist.
type Attribute struct {
	Type     AttributeType
	Name     string
	Resident bool
	Flags    uint16
	ID       int

	// Resident content.
	Data []byte

	// Non-resident extent description.
	StartVCN        int64
	LastVCN         int64
	AllocatedSize   int64
	RealSize        int64
	InitializedSize int64
	Runs            []Extent
}

// findAttr returns the first attribute of the given type and name, or nil.
// The unnamed default stream uses the empty name.
func (r *Record) findAttr(t AttributeType, name string) *Attribute {
	for i := range r.Attributes {
		a := &r.Attributes[i]
		if a.Type == t && a.Name == name {
			return a
		}
	}
	return nil
}

// findAttrs returns all attributes of the given type in record order.
func (r *Record) findAttrs(t AttributeType) []*Attribute {
	var out []*Attribute
	for i := range r.Attributes {
		if r.Attributes[i].Type == t {
			out = append(out, &r.Attributes[i])
		}
	}
	return out
}

// ntfsEpoch is 1601-01-01 UTC; timestamps count 100ns ticks from it.
var ntfsEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// timeFromTicks converts an on-disk timestamp to time.Time.
func timeFromTicks(ticks uint64) time.Time {
	const ticksPerSecond = 10000000
	secs := int64(ticks / ticksPerSecond)
	nanos := int64(ticks%ticksPerSecond) * 100
	return time.Unix(ntfsEpoch.Unix()+secs, nanos).UTC()
}

// StandardInformation is the decoded $STANDARD_INFORMATION content.
type StandardInformation struct {
	CreationTime   time.Time
	ModifiedTime   time.Time
	MFTChangedTime time.Time
	AccessedTime   time.Time
	FileAttributes uint32
	SecurityID     uint32
}

func decodeStandardInformation(data []byte) (*StandardInformation, error) {
	if len(data) < 0x30 {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	si := &StandardInformation{
		CreationTime:   timeFromTicks(binary.LittleEndian.Uint64(data[0x00:])),
		ModifiedTime:   timeFromTicks(binary.LittleEndian.Uint64(data[0x08:])),
		MFTChangedTime: timeFromTicks(binary.LittleEndian.Uint64(data[0x10:])),
		AccessedTime:   timeFromTicks(binary.LittleEndian.Uint64(data[0x18:])),
		FileAttributes: binary.LittleEndian.Uint32(data[0x20:]),
	}
	// The security id exists only in the longer NTFS 3.x layout.
	if len(data) >= 0x38 {
		si.SecurityID = binary.LittleEndian.Uint32(data[0x34:])
	}
	return si, nil
}

// File name namespaces.
const (
	nameSpacePOSIX    = 0
	nameSpaceWin32    = 1
	nameSpaceDOS      = 2
	nameSpaceWin32DOS = 3
)

// FileName is the decoded $FILE_NAME content, also used as the key of
// directory index entries.
type FileName struct {
	ParentRef     FileReference
	CreationTime  time.Time
	ModifiedTime  time.Time
	AccessedTime  time.Time
	AllocatedSize int64
	RealSize      int64
	Flags         uint32
	Namespace     byte
	Name          string
}

func decodeFileName(data []byte) (*FileName, error) {
	if len(data) < 0x42 {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	nameLength := int(data[0x40])
	if 0x42+nameLength*2 > len(data) {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	units := make([]uint16, nameLength)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[0x42+i*2:])
	}
	return &FileName{
		ParentRef:     FileReference(binary.LittleEndian.Uint64(data[0x00:])),
		CreationTime:  timeFromTicks(binary.LittleEndian.Uint64(data[0x08:])),
		ModifiedTime:  timeFromTicks(binary.LittleEndian.Uint64(data[0x10:])),
		AccessedTime:  timeFromTicks(binary.LittleEndian.Uint64(data[0x20:])),
		AllocatedSize: int64(binary.LittleEndian.Uint64(data[0x28:])),
		RealSize:      int64(binary.LittleEndian.Uint64(data[0x30:])),
		Flags:         binary.LittleEndian.Uint32(data[0x38:]),
		Namespace:     data[0x41],
		Name:          string(utf16.Decode(units)),
	}, nil
}

// fileNameFlagDirectory is set in FileName.Flags for directories.
const fileNameFlagDirectory = 0x10000000

// attrListEntry is one entry of an $ATTRIBUTE_LIST: it names the record
// holding an attribute that did not fit the base record.
type attrListEntry struct {
	Type      AttributeType
	StartVCN  int64
	Reference FileReference
	Name      string
}

func decodeAttributeList(data []byte) ([]attrListEntry, error) {
	var out []attrListEntry
	offset := 0
	for offset+0x1A <= len(data) {
		length := int(binary.LittleEndian.Uint16(data[offset+4:]))
		if length < 0x1A || offset+length > len(data) {
			break
		}
		entry := attrListEntry{
			Type:      AttributeType(binary.LittleEndian.Uint32(data[offset:])),
			StartVCN:  int64(binary.LittleEndian.Uint64(data[offset+8:])),
			Reference: FileReference(binary.LittleEndian.Uint64(data[offset+16:])),
		}
		nameLength := int(data[offset+6])
		nameOffset := int(data[offset+7])
		if nameLength > 0 && offset+nameOffset+nameLength*2 <= len(data) {
			units := make([]uint16, nameLength)
			for i := range units {
				units[i] = binary.LittleEndian.Uint16(data[offset+nameOffset+i*2:])
			}
			entry.Name = string(utf16.Decode(units))
		}
		out = append(out, entry)
		offset += length
	}
	return out, nil
}

// VolumeInformation is the decoded $VOLUME_INFORMATION content.
type VolumeInformation struct {
	MajorVersion byte
	MinorVersion byte
	Flags        uint16
}

func decodeVolumeInformation(data []byte) (*VolumeInformation, error) {
	if len(data) < 0x0C {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	return &VolumeInformation{
		MajorVersion: data[0x08],
		MinorVersion: data[0x09],
		Flags:        binary.LittleEndian.Uint16(data[0x0A:]),
	}, nil
}
