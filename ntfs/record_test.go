package ntfs

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/aligator/discfs"
)

func TestApplyFixupsRoundTrip(t *testing.T) {
	record := buildRecord(recordFlagInUse,
		residentAttr(AttrData, "", []byte("payload")),
	)

	// Remember the bytes the builder moved into the update sequence array.
	saved1 := binary.LittleEndian.Uint16(record[0x30+2:])
	saved2 := binary.LittleEndian.Uint16(record[0x30+4:])

	if err := applyFixups(record); err != nil {
		t.Fatalf("applyFixups: %v", err)
	}

	// After stripping, the sector tails hold the original content again.
	if got := binary.LittleEndian.Uint16(record[510:]); got != saved1 {
		t.Errorf("first sector tail = %#x, want %#x", got, saved1)
	}
	if got := binary.LittleEndian.Uint16(record[1022:]); got != saved2 {
		t.Errorf("second sector tail = %#x, want %#x", got, saved2)
	}
}

func TestApplyFixupsRejectsTornRecord(t *testing.T) {
	record := buildRecord(recordFlagInUse,
		residentAttr(AttrData, "", []byte("payload")),
	)
	// Damage the tail of the second sector, as a torn write would.
	record[1022] ^= 0xFF

	if err := applyFixups(record); !errors.Is(err, discfs.ErrCorrupt) {
		t.Errorf("applyFixups on torn record = %v, want ErrCorrupt", err)
	}
}

func TestParseRecordRejectsBadSignature(t *testing.T) {
	record := buildRecord(recordFlagInUse)
	copy(record[0:4], "BAAD")

	if _, err := parseRecord(0, record); !errors.Is(err, discfs.ErrCorrupt) {
		t.Errorf("parseRecord = %v, want ErrCorrupt", err)
	}
}

func TestParseRecordAttributes(t *testing.T) {
	record := buildRecord(recordFlagInUse|recordFlagIsDirectory,
		standardInfoAttr(ticks(2020, 3, 1), ticks(2020, 3, 2), ticks(2020, 3, 3), 0x06),
		residentAttr(AttrData, "", []byte("abc")),
		residentAttr(AttrData, "side", []byte("defg")),
	)

	r, err := parseRecord(42, record)
	if err != nil {
		t.Fatalf("parseRecord: %v", err)
	}

	if !r.IsDirectory() || !r.InUse() {
		t.Errorf("flags not decoded: %#x", r.Flags)
	}
	if r.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", r.Sequence)
	}

	si := r.findAttr(AttrStandardInformation, "")
	if si == nil {
		t.Fatal("standard information missing")
	}
	decoded, err := decodeStandardInformation(si.Data)
	if err != nil {
		t.Fatalf("decodeStandardInformation: %v", err)
	}
	if decoded.FileAttributes != 0x06 {
		t.Errorf("file attributes = %#x, want 0x06", decoded.FileAttributes)
	}
	if decoded.SecurityID != 0x103 {
		t.Errorf("security id = %#x, want 0x103", decoded.SecurityID)
	}

	unnamed := r.findAttr(AttrData, "")
	if unnamed == nil || string(unnamed.Data) != "abc" {
		t.Errorf("unnamed data = %v", unnamed)
	}
	named := r.findAttr(AttrData, "side")
	if named == nil || string(named.Data) != "defg" {
		t.Errorf("named data = %v", named)
	}
	if len(r.findAttrs(AttrData)) != 2 {
		t.Errorf("findAttrs(Data) = %d entries, want 2", len(r.findAttrs(AttrData)))
	}
}

func TestFileReference(t *testing.T) {
	ref := FileReference(5 | 7<<48)
	if ref.Index() != 5 {
		t.Errorf("Index = %d, want 5", ref.Index())
	}
	if ref.Sequence() != 7 {
		t.Errorf("Sequence = %d, want 7", ref.Sequence())
	}
}

func TestTimeFromTicks(t *testing.T) {
	if got := timeFromTicks(0); got.Year() != 1601 {
		t.Errorf("epoch year = %d, want 1601", got.Year())
	}
	// 1601 to 1970 is 11644473600 seconds.
	const unixEpochTicks = 11644473600 * 10000000
	if got := timeFromTicks(unixEpochTicks); got.Unix() != 0 {
		t.Errorf("unix epoch = %v, want 1970-01-01", got)
	}
}
