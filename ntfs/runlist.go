package ntfs

import (
	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// Extent is one contiguous run of a non-resident attribute: Length clusters
// starting at LCN, covering the virtual clusters from VCN on. A sparse
// extent has no LCN; its clusters read as zeros.
type Extent struct {
	VCN    int64
	Length int64
	LCN    int64
	Sparse bool
}

// decodeRunlist parses the packed runlist of a non-resident attribute. Each
// run starts with a header byte whose low nibble is the byte width of the
// length field and whose high nibble is the byte width of the signed LCN
// delta. A delta width of zero marks a sparse run. Deltas accumulate from
// run to run.
func decodeRunlist(data []byte, startVCN int64) ([]Extent, error) {
	var runs []Extent
	vcn := startVCN
	lcn := int64(0)

	offset := 0
	for offset < len(data) && data[offset] != 0 {
		header := data[offset]
		lengthBytes := int(header & 0x0F)
		deltaBytes := int(header >> 4)
		offset++

		if lengthBytes == 0 || offset+lengthBytes+deltaBytes > len(data) {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}

		length := int64(0)
		for i := 0; i < lengthBytes; i++ {
			length |= int64(data[offset+i]) << (i * 8)
		}
		offset += lengthBytes
		if length <= 0 {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}

		if deltaBytes == 0 {
			runs = append(runs, Extent{VCN: vcn, Length: length, Sparse: true})
			vcn += length
			continue
		}

		delta := int64(0)
		for i := 0; i < deltaBytes; i++ {
			delta |= int64(data[offset+i]) << (i * 8)
		}
		// Sign extend the delta.
		if data[offset+deltaBytes-1]&0x80 != 0 {
			delta |= -1 << uint(deltaBytes*8)
		}
		offset += deltaBytes

		lcn += delta
		if lcn < 0 {
			return nil, checkpoint.From(discfs.ErrCorrupt)
		}
		runs = append(runs, Extent{VCN: vcn, Length: length, LCN: lcn})
		vcn += length
	}
	return runs, nil
}

// extentsClusters sums the cluster count of a runlist.
func extentsClusters(runs []Extent) int64 {
	var total int64
	for _, r := range runs {
		total += r.Length
	}
	return total
}
