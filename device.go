package discfs

import (
	"io"
	"os"
	"sync"

	"github.com/aligator/discfs/checkpoint"
	"github.com/spf13/afero"
)

// SectorSize is the fixed addressing unit of all on-disk structures handled
// by this module. Cluster sizes vary, sector size does not.
const SectorSize = 512

// Device abstracts the backing store of a filesystem image as a positional
// byte range. Reads must either fill the whole buffer or fail. A Device is
// owned exclusively by the filesystem mounted on it.
type Device interface {
	// ReadAt fills p from offset off. Short reads are reported as an error.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes p at offset off, growing the device if needed and allowed.
	WriteAt(p []byte, off int64) (int, error)
	// Size returns the current length of the device in bytes.
	Size() int64
	// Truncate sets the length of the device.
	Truncate(size int64) error
	// Writable reports whether WriteAt and Truncate may be used.
	Writable() bool
}

// fileDevice adapts an afero.File (or *os.File via afero) to Device.
type fileDevice struct {
	f        afero.File
	writable bool
}

// NewFileDevice wraps an open file as a writable Device.
func NewFileDevice(f afero.File) Device {
	return &fileDevice{f: f, writable: true}
}

// NewReadOnlyFileDevice wraps an open file as a read-only Device.
func NewReadOnlyFileDevice(f afero.File) Device {
	return &fileDevice{f: f, writable: false}
}

// NewOSFileDevice wraps an *os.File as a writable Device.
func NewOSFileDevice(f *os.File) Device {
	return &fileDevice{f: f, writable: true}
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrIO)
	}
	if n != len(p) {
		return n, checkpoint.From(ErrIO)
	}
	return n, nil
}

func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) {
	if !d.writable {
		return 0, checkpoint.From(ErrReadOnly)
	}
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrIO)
	}
	return n, nil
}

func (d *fileDevice) Size() int64 {
	info, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (d *fileDevice) Truncate(size int64) error {
	if !d.writable {
		return checkpoint.From(ErrReadOnly)
	}
	return checkpoint.Wrap(d.f.Truncate(size), ErrIO)
}

func (d *fileDevice) Writable() bool {
	return d.writable
}

// memDevice is a growable in-memory Device. It backs formatter targets and
// test fixtures.
type memDevice struct {
	buf []byte
}

// NewMemDevice wraps a byte slice as a writable in-memory Device. The slice
// is used directly, not copied.
func NewMemDevice(buf []byte) Device {
	return &memDevice{buf: buf}
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(d.buf)) {
		return 0, checkpoint.From(ErrIO)
	}
	n := copy(p, d.buf[off:])
	if n != len(p) {
		return n, checkpoint.From(ErrIO)
	}
	return n, nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, checkpoint.From(ErrIO)
	}
	if end := off + int64(len(p)); end > int64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	return copy(d.buf[off:], p), nil
}

func (d *memDevice) Size() int64 {
	return int64(len(d.buf))
}

func (d *memDevice) Truncate(size int64) error {
	if size < 0 {
		return checkpoint.From(ErrIO)
	}
	if size <= int64(len(d.buf)) {
		d.buf = d.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, d.buf)
	d.buf = grown
	return nil
}

func (d *memDevice) Writable() bool {
	return true
}

// Bytes exposes the current image of a memDevice, for tests and the CLI.
func (d *memDevice) Bytes() []byte {
	return d.buf
}

// MemDeviceBytes returns the underlying buffer if d is a memory device.
func MemDeviceBytes(d Device) ([]byte, bool) {
	m, ok := d.(*memDevice)
	if !ok {
		return nil, false
	}
	return m.Bytes(), true
}

// sectionDevice exposes a window of another Device, typically a partition
// inside a whole-disk image.
type sectionDevice struct {
	d      Device
	off    int64
	length int64
}

// NewSectionDevice restricts d to the byte range [off, off+length).
func NewSectionDevice(d Device, off, length int64) Device {
	return &sectionDevice{d: d, off: off, length: length}
}

func (s *sectionDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.length {
		return 0, checkpoint.From(ErrIO)
	}
	return s.d.ReadAt(p, s.off+off)
}

func (s *sectionDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.length {
		return 0, checkpoint.From(ErrIO)
	}
	return s.d.WriteAt(p, s.off+off)
}

func (s *sectionDevice) Size() int64 {
	return s.length
}

func (s *sectionDevice) Truncate(int64) error {
	return checkpoint.From(ErrUnsupported)
}

func (s *sectionDevice) Writable() bool {
	return s.d.Writable()
}

// streamDevice adapts a plain io.ReadSeeker. It keeps the entry point that
// accepts any seekable reader working, at the price of being read-only and
// needing a lock around the seek+read pair.
type streamDevice struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

// NewStreamDevice wraps a seekable reader as a read-only Device.
func NewStreamDevice(rs io.ReadSeeker) Device {
	return &streamDevice{rs: rs}
}

func (s *streamDevice) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, checkpoint.Wrap(err, ErrIO)
	}
	n, err := io.ReadFull(s.rs, p)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrIO)
	}
	return n, nil
}

func (s *streamDevice) WriteAt([]byte, int64) (int, error) {
	return 0, checkpoint.From(ErrReadOnly)
}

func (s *streamDevice) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	end, err := s.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	s.rs.Seek(cur, io.SeekStart)
	return end
}

func (s *streamDevice) Truncate(int64) error {
	return checkpoint.From(ErrReadOnly)
}

func (s *streamDevice) Writable() bool {
	return false
}
