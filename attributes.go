package discfs

import "strings"

// Attributes is the DOS attribute bit set shared by both engines. The values
// are bit-compatible with the FAT directory entry attribute byte.
type Attributes uint8

const (
	AttrReadOnly    Attributes = 0x01
	AttrHidden      Attributes = 0x02
	AttrSystem      Attributes = 0x04
	AttrVolumeLabel Attributes = 0x08
	AttrDirectory   Attributes = 0x10
	AttrArchive     Attributes = 0x20

	// AttrLongName marks a long file name slot in a FAT directory.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// Has reports whether all bits of a are set.
func (attrs Attributes) Has(a Attributes) bool {
	return attrs&a == a
}

// IsDir reports whether the directory bit is set.
func (attrs Attributes) IsDir() bool {
	return attrs.Has(AttrDirectory)
}

func (attrs Attributes) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Attributes
		r   byte
	}{
		{AttrReadOnly, 'r'},
		{AttrHidden, 'h'},
		{AttrSystem, 's'},
		{AttrVolumeLabel, 'v'},
		{AttrDirectory, 'd'},
		{AttrArchive, 'a'},
	} {
		if attrs.Has(f.bit) {
			b.WriteByte(f.r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
