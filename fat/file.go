package fat

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	"github.com/spf13/afero"
)

// fatFileFs provides all methods needed from a FAT filesystem for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//
//	mockgen -source=file.go -destination=file_mock.go -package fat
type fatFileFs interface {
	readFileAt(firstCluster uint32, fileSize, offset, readSize int64) ([]byte, error)
	writeFileAt(firstCluster uint32, offset int64, p []byte) error
	ensureChain(firstCluster uint32, size int64) (uint32, error)
	shrinkChain(firstCluster uint32, size int64) (uint32, error)
	commitEntry(dirKey uint32, entryID int, firstCluster uint32, size int64, modTime time.Time) error
	readRoot() ([]os.FileInfo, error)
	readDir(cluster uint32) ([]os.FileInfo, error)
	clock() time.Time
}

// File is an open file or directory on a FAT volume. It implements
// afero.File. The directory entry is rewritten with the current size, chain
// head and write time on Sync and Close.
type File struct {
	fs   fatFileFs
	path string

	name        string
	isDirectory bool
	readOnly    bool

	firstCluster uint32
	size         int64
	offset       int64

	dirKey  uint32
	entryID int

	dirty  bool
	closed bool
	stat   os.FileInfo
}

var _ afero.File = (*File)(nil)

// Close flushes pending metadata and invalidates the handle. Closing twice
// is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	err := f.Sync()
	f.closed = true
	f.fs = nil
	f.offset = 0
	return err
}

// Sync rewrites the directory entry if the file changed.
func (f *File) Sync() error {
	if f.closed || !f.dirty {
		return nil
	}
	if err := f.fs.commitEntry(f.dirKey, f.entryID, f.firstCluster, f.size, f.fs.clock()); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if p == nil {
		return 0, nil
	}
	if f.closed {
		return 0, checkpoint.From(afero.ErrFileClosed)
	}
	if f.size <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.size, f.offset, int64(len(p)))
	if data != nil {
		copy(p, data)
	}

	// Seek even if an error occurred, errors from reading win over seek
	// errors.
	_, seekErr := f.Seek(int64(len(data)), io.SeekCurrent)

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	if seekErr != nil {
		return len(data), checkpoint.Wrap(seekErr, ErrReadFile)
	}
	if len(data) == 0 {
		// The chain is shorter than the recorded size; do not spin forever.
		return 0, io.EOF
	}
	return len(data), nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if p == nil {
		return 0, nil
	}
	if f.closed {
		return 0, checkpoint.From(afero.ErrFileClosed)
	}
	if f.size <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.size, off, int64(len(p)))
	if data != nil {
		copy(p, data)
	}
	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	if len(data) < len(p) {
		return len(data), io.EOF
	}
	return len(data), nil
}

// Seek jumps to a specific offset in the file. This affects all Read and
// Write operations except ReadAt and WriteAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.size + offset
	default:
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrSeekFile)
	}

	if offset < 0 || (f.readOnly && offset > f.size) {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, ErrSeekFile)
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, checkpoint.From(afero.ErrFileClosed)
	}
	if f.readOnly {
		return 0, checkpoint.From(discfs.ErrReadOnly)
	}
	if f.isDirectory {
		return 0, checkpoint.From(discfs.ErrIsADirectory)
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := off + int64(len(p))
	if end > f.size {
		head, err := f.fs.ensureChain(f.firstCluster, end)
		if err != nil {
			return 0, err
		}
		f.firstCluster = head
		// A write starting past the old end leaves a gap that must read as
		// zeros, including the stale tail of the old last cluster.
		if off > f.size {
			if err := f.fs.writeFileAt(f.firstCluster, f.size, make([]byte, off-f.size)); err != nil {
				return 0, err
			}
		}
		f.size = end
		f.dirty = true
	}
	if err := f.fs.writeFileAt(f.firstCluster, off, p); err != nil {
		return 0, err
	}
	f.dirty = true
	return len(p), nil
}

// Truncate resizes the file, freeing or allocating clusters as needed.
func (f *File) Truncate(size int64) error {
	if f.closed {
		return checkpoint.From(afero.ErrFileClosed)
	}
	if f.readOnly {
		return checkpoint.From(discfs.ErrReadOnly)
	}
	if f.isDirectory {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	if size < 0 {
		return checkpoint.From(afero.ErrOutOfRange)
	}

	switch {
	case size < f.size:
		head, err := f.fs.shrinkChain(f.firstCluster, size)
		if err != nil {
			return err
		}
		f.firstCluster = head
	case size > f.size:
		head, err := f.fs.ensureChain(f.firstCluster, size)
		if err != nil {
			return err
		}
		f.firstCluster = head
		// Zero fill the grown range.
		if err := f.fs.writeFileAt(f.firstCluster, f.size, make([]byte, size-f.size)); err != nil {
			return err
		}
	default:
		return nil
	}
	f.size = size
	f.dirty = true
	return f.Sync()
}

func (f *File) Name() string {
	return f.name
}

// Readdir reads the contents of a directory.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}
	if f.closed {
		return nil, checkpoint.From(afero.ErrFileClosed)
	}

	var content []os.FileInfo
	var err error
	if f.dirKey == fixedRootKey && f.path == "" {
		content, err = f.fs.readRoot()
	} else {
		content, err = f.fs.readDir(f.firstCluster)
	}
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	end := len(content)
	if int64(len(content)) < f.offset+int64(count) {
		count = len(content) - int(f.offset)
		err = io.EOF
	}
	if count >= 0 {
		end = int(f.offset) + count
	}

	content = content[f.offset:end]

	if count > 0 {
		f.offset += int64(count)
	} else if count < 0 {
		f.offset = int64(end)
	}

	if errors.Is(err, io.EOF) && count <= 0 {
		err = nil
	}
	return content, err
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, err
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.stat, nil
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}
