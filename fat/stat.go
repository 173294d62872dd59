package fat

import (
	"os"
	"time"

	"github.com/aligator/discfs"
)

// EntryInfo exposes one directory entry as os.FileInfo.
type EntryInfo struct {
	name   string
	header EntryHeader
	loc    *time.Location
}

func newEntryInfo(e *dirEntry, loc *time.Location) EntryInfo {
	return EntryInfo{name: e.name, header: e.header, loc: loc}
}

func (e EntryInfo) Name() string {
	return e.name
}

func (e EntryInfo) Size() int64 {
	return int64(e.header.FileSize)
}

func (e EntryInfo) Mode() os.FileMode {
	var mode os.FileMode
	if e.IsDir() {
		mode |= os.ModeDir | 0o755
	} else {
		mode |= 0o644
	}
	if discfs.Attributes(e.header.Attribute).Has(discfs.AttrReadOnly) {
		mode &^= 0o222
	}
	return mode
}

// ModTime returns the last write time. A zero date word yields time.Time{}
// so time.Time.IsZero() can be used; a zero time word is a valid midnight.
func (e EntryInfo) ModTime() time.Time {
	return ParseDateTime(e.header.WriteDate, e.header.WriteTime, 0, e.loc)
}

func (e EntryInfo) IsDir() bool {
	return discfs.Attributes(e.header.Attribute).IsDir()
}

// Sys returns the raw on-disk entry header.
func (e EntryInfo) Sys() interface{} {
	return e.header
}

// Attributes returns the DOS attribute bits of the entry.
func (e EntryInfo) Attributes() discfs.Attributes {
	return discfs.Attributes(e.header.Attribute)
}

// ShortName returns the 8.3 alias of the entry.
func (e EntryInfo) ShortName() string {
	return displayShortName(e.header.Name)
}

// FirstCluster returns the head cluster of the entry's chain.
func (e EntryInfo) FirstCluster() uint32 {
	return e.header.FirstCluster()
}
