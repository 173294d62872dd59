package ntfs

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	"github.com/spf13/afero"
)

// File is an open file or directory on an NTFS volume. Files are read-only;
// every mutating method fails with ErrReadOnly.
type File struct {
	fs     *Fs
	path   string
	name   string
	record *Record
	attr   *Attribute // nil for directories
	offset int64
	closed bool
}

var _ afero.File = (*File)(nil)

func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.fs = nil
	f.record = nil
	f.attr = nil
	return nil
}

// Size returns the real size of the selected data stream.
func (f *File) Size() int64 {
	if f.attr == nil {
		return 0
	}
	return f.attr.RealSize
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// ReadAt reads from the stream: resident content is served from the record
// buffer, non-resident content through the runlist, with sparse runs
// yielding zeros. Reads past the real size come up short.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, checkpoint.From(afero.ErrFileClosed)
	}
	if f.attr == nil {
		return 0, checkpoint.From(discfs.ErrIsADirectory)
	}
	if off >= f.attr.RealSize {
		return 0, io.EOF
	}

	if f.attr.Resident {
		n := copy(p, f.attr.Data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}

	data, err := f.fs.readRuns(f.attr.Runs, off, int64(len(p)), f.attr.RealSize)
	if err != nil {
		return 0, err
	}
	// Content past the initialized size is zeros regardless of what the
	// clusters hold.
	for i := int64(len(data)) - 1; i >= 0; i-- {
		if off+i >= f.attr.InitializedSize {
			data[i] = 0
		} else {
			break
		}
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, checkpoint.From(afero.ErrFileClosed)
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.Size() + offset
	default:
		return 0, checkpoint.From(syscall.EINVAL)
	}
	if offset < 0 {
		return 0, checkpoint.From(afero.ErrOutOfRange)
	}
	f.offset = offset
	return offset, nil
}

func (f *File) Write([]byte) (int, error) {
	return 0, checkpoint.From(discfs.ErrReadOnly)
}

func (f *File) WriteAt([]byte, int64) (int, error) {
	return 0, checkpoint.From(discfs.ErrReadOnly)
}

func (f *File) WriteString(string) (int, error) {
	return 0, checkpoint.From(discfs.ErrReadOnly)
}

func (f *File) Truncate(int64) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (f *File) Sync() error {
	return nil
}

func (f *File) Name() string {
	return f.name
}

// Readdir lists the directory in collation order.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if f.closed {
		return nil, checkpoint.From(afero.ErrFileClosed)
	}
	if f.attr != nil || !f.record.IsDirectory() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, discfs.ErrNotADirectory)
	}

	entries, err := f.fs.directoryEntries(f.record)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for i := range entries {
		key := entries[i].Key
		if isInternalName(key.Name) && f.record.Index == recordRoot {
			continue
		}
		infos = append(infos, FileInfo{name: key.Name, key: key, loc: f.fs.opts.Location})
	}

	end := len(infos)
	if count > 0 {
		if int(f.offset) >= end {
			return nil, io.EOF
		}
		if int(f.offset)+count < end {
			end = int(f.offset) + count
		}
		infos = infos[f.offset:end]
		f.offset = int64(end)
		return infos, nil
	}
	return infos, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	infos, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.record == nil {
		return nil, checkpoint.From(afero.ErrFileClosed)
	}
	return f.fs.fileInfoFor(f.name, f.record, f.attr)
}

// isInternalName reports whether a root entry is one of the $-prefixed
// metadata files.
func isInternalName(name string) bool {
	return len(name) > 0 && name[0] == '$'
}

// FileInfo is the os.FileInfo of an NTFS directory entry.
type FileInfo struct {
	name  string
	key   *FileName
	attrs uint32
	size  int64
	isDir bool
	mtime time.Time
	loc   *time.Location
}

func (i FileInfo) Name() string {
	return i.name
}

func (i FileInfo) Size() int64 {
	if i.key != nil {
		return i.key.RealSize
	}
	return i.size
}

func (i FileInfo) Mode() os.FileMode {
	if i.IsDir() {
		return os.ModeDir | 0o555
	}
	return 0o444
}

func (i FileInfo) ModTime() time.Time {
	if i.key != nil {
		return i.key.ModifiedTime.In(i.loc)
	}
	return i.mtime.In(i.loc)
}

func (i FileInfo) IsDir() bool {
	if i.key != nil {
		return i.key.Flags&fileNameFlagDirectory != 0
	}
	return i.isDir
}

func (i FileInfo) Sys() interface{} {
	return i.key
}
