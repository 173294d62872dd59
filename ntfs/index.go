package ntfs

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// Directory listings are B-trees keyed by up-cased file name. The root node
// lives in the resident $INDEX_ROOT attribute; overflowing nodes continue in
// fixed-size blocks of the $INDEX_ALLOCATION attribute, each guarded by its
// own update sequence array.

const (
	indexEntryFlagSubnode = 0x01
	indexEntryFlagLast    = 0x02

	indexBlockSignature = "INDX"
)

// indexEntry is one entry of an index node: a file reference, the $FILE_NAME
// key and an optional child node pointer.
type indexEntry struct {
	Reference FileReference
	Key       *FileName
	ChildVCN  int64 // -1 when the entry has no subnode
	last      bool
}

// directoryIndex walks a directory's index attributes.
type directoryIndex struct {
	fs        *Fs
	record    *Record
	blockSize int64
	alloc     *Attribute
}

func newDirectoryIndex(fs *Fs, record *Record) (*directoryIndex, error) {
	if !record.IsDirectory() {
		return nil, checkpoint.From(discfs.ErrNotADirectory)
	}
	root := record.findAttr(AttrIndexRoot, "$I30")
	if root == nil {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	if len(root.Data) < 0x20 {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	idx := &directoryIndex{
		fs:        fs,
		record:    record,
		blockSize: int64(binary.LittleEndian.Uint32(root.Data[0x08:])),
		alloc:     record.findAttr(AttrIndexAllocation, "$I30"),
	}
	if idx.blockSize == 0 {
		idx.blockSize = fs.boot.indexBlockSize()
	}
	return idx, nil
}

// entries returns all index entries in collation order.
func (d *directoryIndex) entries() ([]indexEntry, error) {
	root := d.record.findAttr(AttrIndexRoot, "$I30")
	// The node header starts after the 16 byte index root header.
	node, err := parseIndexNode(root.Data[0x10:])
	if err != nil {
		return nil, err
	}
	return d.walk(node)
}

// walk performs an in-order traversal: each entry's subtree precedes the
// entry itself.
func (d *directoryIndex) walk(node []indexEntry) ([]indexEntry, error) {
	var out []indexEntry
	for _, entry := range node {
		if entry.ChildVCN >= 0 {
			child, err := d.loadBlock(entry.ChildVCN)
			if err != nil {
				return nil, err
			}
			sub, err := d.walk(child)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		if !entry.last {
			out = append(out, entry)
		}
	}
	return out, nil
}

// loadBlock reads one $INDEX_ALLOCATION block and parses its node.
func (d *directoryIndex) loadBlock(vcn int64) ([]indexEntry, error) {
	if d.alloc == nil {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	// The VCN of a child pointer counts clusters when blocks are at least a
	// cluster, index-block units otherwise.
	unit := d.blockSize
	if d.blockSize >= d.fs.boot.bytesPerCluster() {
		unit = d.fs.boot.bytesPerCluster()
	}
	buf, err := d.fs.readRuns(d.alloc.Runs, vcn*unit, d.blockSize, d.alloc.RealSize)
	if err != nil {
		return nil, err
	}
	if string(buf[0:4]) != indexBlockSignature {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	if err := applyFixups(buf); err != nil {
		return nil, err
	}
	// The node header starts after the 24 byte block header.
	return parseIndexNode(buf[0x18:])
}

// parseIndexNode decodes the entries of one node.
func parseIndexNode(b []byte) ([]indexEntry, error) {
	if len(b) < 0x10 {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}
	entriesOffset := int(binary.LittleEndian.Uint32(b[0x00:]))
	totalSize := int(binary.LittleEndian.Uint32(b[0x04:]))
	if entriesOffset < 0x10 || totalSize > len(b) || entriesOffset > totalSize {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}

	var entries []indexEntry
	offset := entriesOffset
	for offset+0x10 <= totalSize {
		entrySize := int(binary.LittleEndian.Uint16(b[offset+0x08:]))
		keySize := int(binary.LittleEndian.Uint16(b[offset+0x0A:]))
		flags := binary.LittleEndian.Uint16(b[offset+0x0C:])
		if entrySize < 0x10 || offset+entrySize > totalSize {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}

		entry := indexEntry{
			Reference: FileReference(binary.LittleEndian.Uint64(b[offset:])),
			ChildVCN:  -1,
			last:      flags&indexEntryFlagLast != 0,
		}
		if keySize > 0 && offset+0x10+keySize <= totalSize {
			key, err := decodeFileName(b[offset+0x10 : offset+0x10+keySize])
			if err == nil {
				entry.Key = key
			}
		}
		if flags&indexEntryFlagSubnode != 0 {
			entry.ChildVCN = int64(binary.LittleEndian.Uint64(b[offset+entrySize-8:]))
		}
		entries = append(entries, entry)

		offset += entrySize
		if entry.last {
			break
		}
	}
	return entries, nil
}

// fileNames filters the entries down to one display entry per file,
// dropping DOS-only aliases, and keeps collation order.
func fileNames(entries []indexEntry) []indexEntry {
	var out []indexEntry
	for _, e := range entries {
		if e.Key == nil || e.Key.Namespace == nameSpaceDOS {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToUpper(out[i].Key.Name) < strings.ToUpper(out[j].Key.Name)
	})
	return out
}
