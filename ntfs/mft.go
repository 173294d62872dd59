package ntfs

import (
	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// mft provides access to the master file table, which is itself stored as
// the data attribute of its own record 0.
type mft struct {
	fs         *Fs
	recordSize int64
	runs       []Extent
	length     int64
	cache      map[uint64]*Record
}

// bootstrapMFT reads record 0 straight from the boot sector's MFT cluster,
// then opens the table as a stream over the runs that record describes.
func bootstrapMFT(fs *Fs) (*mft, error) {
	recordSize := fs.boot.mftRecordSize()
	buf := make([]byte, recordSize)
	if _, err := fs.dev.ReadAt(buf, int64(fs.boot.MFTStartLCN)*fs.boot.bytesPerCluster()); err != nil {
		return nil, checkpoint.Wrap(err, discfs.ErrIO)
	}
	record0, err := parseRecord(recordMFT, buf)
	if err != nil {
		return nil, err
	}
	data := record0.findAttr(AttrData, "")
	if data == nil || data.Resident {
		return nil, checkpoint.From(discfs.ErrCorrupt)
	}

	return &mft{
		fs:         fs,
		recordSize: recordSize,
		runs:       data.Runs,
		length:     data.RealSize,
		cache:      map[uint64]*Record{recordMFT: record0},
	}, nil
}

// recordCount returns the number of records the table holds.
func (m *mft) recordCount() uint64 {
	return uint64(m.length / m.recordSize)
}

// record fetches and parses record idx, caching the result. Records whose
// update sequence array does not verify are rejected as corrupt.
func (m *mft) record(idx uint64) (*Record, error) {
	if r, ok := m.cache[idx]; ok {
		return r, nil
	}
	if idx >= m.recordCount() {
		return nil, checkpoint.From(discfs.ErrNotExist)
	}

	buf, err := m.fs.readRuns(m.runs, int64(idx)*m.recordSize, m.recordSize, m.length)
	if err != nil {
		return nil, err
	}
	r, err := parseRecord(idx, buf)
	if err != nil {
		return nil, err
	}
	m.cache[idx] = r
	return r, nil
}

// recordByRef fetches the record a file reference points at and rejects
// stale references whose sequence number no longer matches.
func (m *mft) recordByRef(ref FileReference) (*Record, error) {
	r, err := m.record(ref.Index())
	if err != nil {
		return nil, err
	}
	if ref.Sequence() != 0 && r.Sequence != ref.Sequence() {
		return nil, checkpoint.From(discfs.ErrNotExist)
	}
	return r, nil
}

// fullRecord returns record idx with the attributes of any extension
// records merged in, chased through $ATTRIBUTE_LIST.
func (m *mft) fullRecord(idx uint64) (*Record, error) {
	base, err := m.record(idx)
	if err != nil {
		return nil, err
	}
	list := base.findAttr(AttrAttributeList, "")
	if list == nil {
		return base, nil
	}

	listData := list.Data
	if !list.Resident {
		listData, err = m.fs.readRuns(list.Runs, 0, list.RealSize, list.RealSize)
		if err != nil {
			return nil, err
		}
	}
	entries, err := decodeAttributeList(listData)
	if err != nil {
		return nil, err
	}

	merged := &Record{
		Index:         base.Index,
		Sequence:      base.Sequence,
		HardLinkCount: base.HardLinkCount,
		Flags:         base.Flags,
		BaseReference: base.BaseReference,
		Attributes:    append([]Attribute(nil), base.Attributes...),
	}
	for _, entry := range entries {
		if entry.Reference.Index() == idx {
			continue
		}
		ext, err := m.record(entry.Reference.Index())
		if err != nil {
			return nil, err
		}
		for i := range ext.Attributes {
			a := &ext.Attributes[i]
			if a.Type == entry.Type && a.Name == entry.Name && a.StartVCN == entry.StartVCN {
				merged.Attributes = append(merged.Attributes, *a)
			}
		}
	}
	return merged, nil
}
