package ntfs

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/aligator/discfs"
)

// Helpers that assemble a minimal but structurally correct NTFS volume in
// memory: boot sector, an MFT with a handful of records, directory indexes
// and both resident and non-resident data streams.

const (
	testRecordSize  = 1024
	testClusterSize = 512 // one sector per cluster
	testMFTLCN      = 4
	testMFTRecords  = 8
	testUSN         = 0x3713
)

// encodeFixups stamps the update sequence array onto a raw record buffer:
// the original tail bytes of every 512 byte slice move into the array and
// are replaced by the update sequence number.
func encodeFixups(buf []byte, usaOffset int) {
	usaCount := len(buf)/discfs.SectorSize + 1
	binary.LittleEndian.PutUint16(buf[4:], uint16(usaOffset))
	binary.LittleEndian.PutUint16(buf[6:], uint16(usaCount))
	binary.LittleEndian.PutUint16(buf[usaOffset:], testUSN)
	for i := 1; i < usaCount; i++ {
		sectorEnd := i * discfs.SectorSize
		copy(buf[usaOffset+i*2:], buf[sectorEnd-2:sectorEnd])
		binary.LittleEndian.PutUint16(buf[sectorEnd-2:], testUSN)
	}
}

// buildRecord assembles one fixed-up MFT record from raw attribute blobs.
func buildRecord(flags uint16, attrs ...[]byte) []byte {
	buf := make([]byte, testRecordSize)
	copy(buf, recordSignature)
	binary.LittleEndian.PutUint16(buf[0x10:], 1) // sequence
	binary.LittleEndian.PutUint16(buf[0x12:], 1) // hard links
	const firstAttr = 0x38
	binary.LittleEndian.PutUint16(buf[0x14:], firstAttr)
	binary.LittleEndian.PutUint16(buf[0x16:], flags)
	binary.LittleEndian.PutUint32(buf[0x1C:], testRecordSize)

	offset := firstAttr
	for _, attr := range attrs {
		copy(buf[offset:], attr)
		offset += len(attr)
	}
	binary.LittleEndian.PutUint32(buf[offset:], uint32(attrTerminator))
	offset += 8
	binary.LittleEndian.PutUint32(buf[0x18:], uint32(offset)) // used size

	encodeFixups(buf, 0x30)
	return buf
}

// align8 pads n up to the next multiple of eight.
func align8(n int) int {
	return (n + 7) &^ 7
}

// residentAttr assembles a resident attribute with optional name.
func residentAttr(t AttributeType, name string, content []byte) []byte {
	nameUnits := utf16.Encode([]rune(name))
	nameOffset := 0x18
	contentOffset := align8(nameOffset + len(nameUnits)*2)
	total := align8(contentOffset + len(content))

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0x00:], uint32(t))
	binary.LittleEndian.PutUint32(buf[0x04:], uint32(total))
	buf[0x08] = 0 // resident
	buf[0x09] = byte(len(nameUnits))
	binary.LittleEndian.PutUint16(buf[0x0A:], uint16(nameOffset))
	binary.LittleEndian.PutUint32(buf[0x10:], uint32(len(content)))
	binary.LittleEndian.PutUint16(buf[0x14:], uint16(contentOffset))
	for i, u := range nameUnits {
		binary.LittleEndian.PutUint16(buf[nameOffset+i*2:], u)
	}
	copy(buf[contentOffset:], content)
	return buf
}

// nonResidentAttr assembles a non-resident attribute around a raw runlist.
func nonResidentAttr(t AttributeType, name string, lastVCN int64, allocated, real int64, runlist []byte) []byte {
	nameUnits := utf16.Encode([]rune(name))
	nameOffset := 0x40
	runsOffset := align8(nameOffset + len(nameUnits)*2)
	total := align8(runsOffset + len(runlist))

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0x00:], uint32(t))
	binary.LittleEndian.PutUint32(buf[0x04:], uint32(total))
	buf[0x08] = 1 // non-resident
	buf[0x09] = byte(len(nameUnits))
	binary.LittleEndian.PutUint16(buf[0x0A:], uint16(nameOffset))
	binary.LittleEndian.PutUint64(buf[0x18:], uint64(lastVCN))
	binary.LittleEndian.PutUint16(buf[0x20:], uint16(runsOffset))
	binary.LittleEndian.PutUint64(buf[0x28:], uint64(allocated))
	binary.LittleEndian.PutUint64(buf[0x30:], uint64(real))
	binary.LittleEndian.PutUint64(buf[0x38:], uint64(real)) // initialized
	for i, u := range nameUnits {
		binary.LittleEndian.PutUint16(buf[nameOffset+i*2:], u)
	}
	copy(buf[runsOffset:], runlist)
	return buf
}

// standardInfoAttr assembles a $STANDARD_INFORMATION with the given tick
// stamps.
func standardInfoAttr(created, modified, accessed uint64, fileAttrs uint32) []byte {
	content := make([]byte, 0x48)
	binary.LittleEndian.PutUint64(content[0x00:], created)
	binary.LittleEndian.PutUint64(content[0x08:], modified)
	binary.LittleEndian.PutUint64(content[0x10:], modified)
	binary.LittleEndian.PutUint64(content[0x18:], accessed)
	binary.LittleEndian.PutUint32(content[0x20:], fileAttrs)
	binary.LittleEndian.PutUint32(content[0x34:], 0x103) // security id
	return residentAttr(AttrStandardInformation, "", content)
}

// fileNameKey assembles the $FILE_NAME structure used as index entry key.
func fileNameKey(parent uint64, name string, size int64, isDir bool) []byte {
	units := utf16.Encode([]rune(name))
	buf := make([]byte, 0x42+len(units)*2)
	binary.LittleEndian.PutUint64(buf[0x00:], parent|1<<48)
	binary.LittleEndian.PutUint64(buf[0x28:], uint64(size))
	binary.LittleEndian.PutUint64(buf[0x30:], uint64(size))
	if isDir {
		binary.LittleEndian.PutUint32(buf[0x38:], fileNameFlagDirectory)
	}
	buf[0x40] = byte(len(units))
	buf[0x41] = nameSpaceWin32
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[0x42+i*2:], u)
	}
	return buf
}

// indexEntryBlob assembles one index entry around a $FILE_NAME key.
func indexEntryBlob(ref uint64, key []byte, last bool) []byte {
	size := align8(0x10 + len(key))
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0x00:], ref|1<<48)
	binary.LittleEndian.PutUint16(buf[0x08:], uint16(size))
	binary.LittleEndian.PutUint16(buf[0x0A:], uint16(len(key)))
	if last {
		binary.LittleEndian.PutUint16(buf[0x0C:], indexEntryFlagLast)
	}
	copy(buf[0x10:], key)
	return buf
}

// indexRootAttr assembles a resident $I30 $INDEX_ROOT from entry blobs.
func indexRootAttr(entries ...[]byte) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}

	content := make([]byte, 0x20+len(body))
	binary.LittleEndian.PutUint32(content[0x00:], uint32(AttrFileName)) // indexed attribute
	binary.LittleEndian.PutUint32(content[0x04:], 1)                    // collation: file name
	binary.LittleEndian.PutUint32(content[0x08:], 4096)                 // bytes per index block
	content[0x0C] = 8                                                   // clusters per index block
	// Node header, relative to its own start at 0x10.
	binary.LittleEndian.PutUint32(content[0x10:], 0x10)
	binary.LittleEndian.PutUint32(content[0x14:], uint32(0x10+len(body)))
	binary.LittleEndian.PutUint32(content[0x18:], uint32(0x10+len(body)))
	copy(content[0x20:], body)

	return residentAttr(AttrIndexRoot, "$I30", content)
}

// lastEntry is the terminating entry every index node carries.
func lastEntry() []byte {
	return indexEntryBlob(0, nil, true)
}

// buildTestVolume lays out the synthetic volume:
//
//	record 0  $MFT, non-resident data covering the whole table
//	record 4  big.bin, non-resident data with a sparse hole
//	record 5  root directory listing big.bin, file.txt and sub
//	record 6  file.txt, resident data plus an alternate stream "s1"
//	record 7  sub, an empty subdirectory
func buildTestVolume(t *testing.T) discfs.Device {
	t.Helper()

	totalClusters := int64(40)
	image := make([]byte, totalClusters*testClusterSize)

	// Boot sector.
	copy(image[3:], "NTFS    ")
	binary.LittleEndian.PutUint16(image[0x0B:], testClusterSize)
	image[0x0D] = 1 // sectors per cluster
	image[0x15] = 0xF8
	binary.LittleEndian.PutUint64(image[0x28:], uint64(totalClusters))
	binary.LittleEndian.PutUint64(image[0x30:], testMFTLCN)
	binary.LittleEndian.PutUint64(image[0x38:], 1)
	image[0x40] = 0xF6 // -10: 1024 byte records
	image[0x44] = 0x01 // one cluster per index block
	image[510] = 0x55
	image[511] = 0xAA

	// $MFT: 8 records of 1024 bytes = 16 clusters at LCN 4.
	mftData := nonResidentAttr(AttrData, "", 15, 16*testClusterSize, testMFTRecords*testRecordSize,
		[]byte{0x11, 0x10, testMFTLCN, 0x00})
	record0 := buildRecord(recordFlagInUse, mftData)

	// big.bin: 2 clusters at LCN 20, a 2 cluster hole, 2 clusters at LCN 22.
	bigReal := int64(5*testClusterSize + 13)
	bigRuns := []byte{
		0x11, 0x02, 20, // 2 clusters at LCN 20
		0x01, 0x02, // 2 sparse clusters
		0x11, 0x02, 0x02, // 2 clusters at LCN 22
		0x00,
	}
	record4 := buildRecord(recordFlagInUse,
		standardInfoAttr(ticks(2020, 1, 1), ticks(2021, 6, 15), ticks(2021, 6, 16), 0x20),
		nonResidentAttr(AttrData, "", 5, 6*testClusterSize, bigReal, bigRuns),
	)

	// Root directory (record 5).
	record5 := buildRecord(recordFlagInUse|recordFlagIsDirectory,
		standardInfoAttr(ticks(2020, 1, 1), ticks(2020, 1, 1), ticks(2020, 1, 1), 0x10),
		indexRootAttr(
			indexEntryBlob(4, fileNameKey(recordRoot, "big.bin", bigReal, false), false),
			indexEntryBlob(6, fileNameKey(recordRoot, "file.txt", 11, false), false),
			indexEntryBlob(7, fileNameKey(recordRoot, "sub", 0, true), false),
			lastEntry(),
		),
	)

	// file.txt (record 6) with a default and an alternate stream.
	record6 := buildRecord(recordFlagInUse,
		standardInfoAttr(ticks(2019, 5, 4), ticks(2019, 5, 5), ticks(2019, 5, 6), 0x21),
		residentAttr(AttrData, "", []byte("hello world")),
		residentAttr(AttrData, "s1", []byte("ALT")),
	)

	// sub (record 7), an empty directory.
	record7 := buildRecord(recordFlagInUse|recordFlagIsDirectory,
		standardInfoAttr(ticks(2020, 2, 2), ticks(2020, 2, 2), ticks(2020, 2, 2), 0x10),
		indexRootAttr(lastEntry()),
	)

	records := map[int][]byte{
		0: record0,
		4: record4,
		5: record5,
		6: record6,
		7: record7,
	}
	mftOffset := int64(testMFTLCN) * testClusterSize
	for idx, record := range records {
		copy(image[mftOffset+int64(idx)*testRecordSize:], record)
	}

	// big.bin content: clusters 20-21 then 22-23, the hole in between.
	bigContent := make([]byte, 4*testClusterSize)
	for i := range bigContent {
		bigContent[i] = byte(i % 251)
	}
	copy(image[20*testClusterSize:], bigContent[:2*testClusterSize])
	copy(image[22*testClusterSize:], bigContent[2*testClusterSize:])

	return discfs.NewMemDevice(image)
}

// ticks converts a date to NTFS 100ns ticks since 1601.
func ticks(year, month, day int) uint64 {
	return uint64(dateTicks(year, month, day))
}

func dateTicks(year, month, day int) int64 {
	t := timeFromTicks(0)
	target := t.AddDate(year-1601, month-1, day-1)
	return (target.Unix() - t.Unix()) * 10000000
}
