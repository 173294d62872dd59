package ntfs

import (
	"errors"
	"os"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	"github.com/spf13/afero"
)

var _ discfs.FileSystem = (*Fs)(nil)

// Name returns the name of this filesystem implementation.
func (fs *Fs) Name() string {
	return "discfs-NTFS"
}

// Open opens a file, directory or alternate data stream for reading.
func (fs *Fs) Open(path string) (afero.File, error) {
	return fs.OpenFile(path, os.O_RDONLY, 0)
}

// OpenFile opens path read-only. Any write flag fails with ErrReadOnly. The
// final component may carry an ":altstream" suffix selecting a named $DATA
// attribute.
func (fs *Fs) OpenFile(path string, flag int, _ os.FileMode) (afero.File, error) {
	if fs.closed {
		return nil, checkpoint.From(afero.ErrFileClosed)
	}
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, checkpoint.From(discfs.ErrReadOnly)
	}

	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		return nil, err
	}

	name := discfs.BaseName(base)
	if record.IsDirectory() && stream == "" {
		return &File{fs: fs, path: discfs.NormalizePath(base), name: name, record: record}, nil
	}

	attr, err := dataAttribute(record, stream)
	if err != nil {
		return nil, err
	}
	return &File{
		fs:     fs,
		path:   discfs.NormalizePath(path),
		name:   name,
		record: record,
		attr:   attr,
	}, nil
}

// Create is not available on a read-only engine.
func (fs *Fs) Create(string) (afero.File, error) {
	return nil, checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Mkdir(string, os.FileMode) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) MkdirAll(string, os.FileMode) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Remove(string) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) RemoveAll(string) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Rename(string, string) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Chmod(string, os.FileMode) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Chown(string, int, int) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) Chtimes(string, time.Time, time.Time) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

// Stat returns the FileInfo of path.
func (fs *Fs) Stat(path string) (os.FileInfo, error) {
	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		return nil, err
	}
	var attr *Attribute
	if !record.IsDirectory() || stream != "" {
		if attr, err = dataAttribute(record, stream); err != nil {
			return nil, err
		}
	}
	return fs.fileInfoFor(discfs.BaseName(base), record, attr)
}

// fileInfoFor builds a FileInfo from a record and optional data attribute.
func (fs *Fs) fileInfoFor(name string, record *Record, attr *Attribute) (os.FileInfo, error) {
	si, err := fs.standardInformation(record)
	if err != nil {
		return nil, err
	}
	info := FileInfo{
		name:  name,
		attrs: si.FileAttributes,
		isDir: record.IsDirectory(),
		mtime: si.ModifiedTime,
		loc:   fs.opts.Location,
	}
	if attr != nil {
		info.size = attr.RealSize
	}
	return info, nil
}

// Exists reports whether path names any entry.
func (fs *Fs) Exists(path string) (bool, error) {
	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		if errors.Is(err, discfs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if stream != "" {
		if _, err := dataAttribute(record, stream); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// FileExists reports whether path names a file (or a named stream).
func (fs *Fs) FileExists(path string) (bool, error) {
	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		if errors.Is(err, discfs.ErrNotExist) || errors.Is(err, discfs.ErrNotADirectory) {
			return false, nil
		}
		return false, err
	}
	if stream != "" {
		_, err := dataAttribute(record, stream)
		return err == nil, nil
	}
	return !record.IsDirectory(), nil
}

// DirectoryExists reports whether path names a directory. The root always
// exists.
func (fs *Fs) DirectoryExists(path string) (bool, error) {
	record, err := fs.resolveRecord(path)
	if err != nil {
		if errors.Is(err, discfs.ErrNotExist) || errors.Is(err, discfs.ErrNotADirectory) {
			return false, nil
		}
		return false, err
	}
	return record.IsDirectory(), nil
}

// FileLength returns the real size of the selected data stream of path.
func (fs *Fs) FileLength(path string) (int64, error) {
	base, stream := discfs.SplitStreamName(path)
	record, err := fs.resolveRecord(base)
	if err != nil {
		return 0, err
	}
	if record.IsDirectory() && stream == "" {
		return 0, checkpoint.From(discfs.ErrIsADirectory)
	}
	attr, err := dataAttribute(record, stream)
	if err != nil {
		return 0, err
	}
	return attr.RealSize, nil
}

// GetAttributes maps the $STANDARD_INFORMATION file attribute flags onto
// the DOS attribute bits, which they are bit-compatible with.
func (fs *Fs) GetAttributes(path string) (discfs.Attributes, error) {
	record, err := fs.resolveRecord(path)
	if err != nil {
		return 0, err
	}
	si, err := fs.standardInformation(record)
	if err != nil {
		return 0, err
	}
	attrs := discfs.Attributes(si.FileAttributes & 0x27)
	if record.IsDirectory() {
		attrs |= discfs.AttrDirectory
	}
	return attrs, nil
}

// SetAttributes is not available on a read-only engine.
func (fs *Fs) SetAttributes(string, discfs.Attributes) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) standardTime(path string, pick func(*StandardInformation) time.Time) (time.Time, error) {
	record, err := fs.resolveRecord(path)
	if err != nil {
		return time.Time{}, err
	}
	si, err := fs.standardInformation(record)
	if err != nil {
		return time.Time{}, err
	}
	return pick(si).In(fs.opts.Location), nil
}

// CreationTime returns the creation timestamp of path.
func (fs *Fs) CreationTime(path string) (time.Time, error) {
	return fs.standardTime(path, func(si *StandardInformation) time.Time { return si.CreationTime })
}

func (fs *Fs) SetCreationTime(string, time.Time) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

// LastAccessTime returns the access timestamp of path.
func (fs *Fs) LastAccessTime(path string) (time.Time, error) {
	return fs.standardTime(path, func(si *StandardInformation) time.Time { return si.AccessedTime })
}

func (fs *Fs) SetLastAccessTime(string, time.Time) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

// LastWriteTime returns the last write timestamp of path.
func (fs *Fs) LastWriteTime(path string) (time.Time, error) {
	return fs.standardTime(path, func(si *StandardInformation) time.Time { return si.ModifiedTime })
}

func (fs *Fs) SetLastWriteTime(string, time.Time) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) CopyFile(string, string, bool) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) MoveFile(string, string, bool) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

func (fs *Fs) MoveDirectory(string, string) error {
	return checkpoint.From(discfs.ErrReadOnly)
}

// GetFiles lists files below path matching the DOS wildcard pattern.
func (fs *Fs) GetFiles(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, true, false)
}

// GetDirectories lists directories below path matching pattern.
func (fs *Fs) GetDirectories(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, false, true)
}

// GetFileSystemEntries lists files and directories together.
func (fs *Fs) GetFileSystemEntries(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, true, true)
}

func (fs *Fs) enumerate(path, pattern string, recurse, files, dirs bool) ([]string, error) {
	re, err := discfs.CompileWildcard(pattern)
	if err != nil {
		return nil, err
	}
	record, err := fs.resolveRecord(path)
	if err != nil {
		return nil, err
	}
	if !record.IsDirectory() {
		return nil, checkpoint.From(discfs.ErrNotADirectory)
	}

	entries, err := fs.directoryEntries(record)
	if err != nil {
		return nil, err
	}

	base := discfs.NormalizePath(path)
	var out []string
	for i := range entries {
		key := entries[i].Key
		if record.Index == recordRoot && isInternalName(key.Name) {
			continue
		}
		full := discfs.JoinPath(base, key.Name)
		isDir := key.Flags&fileNameFlagDirectory != 0
		match := re.MatchString(key.Name)
		if isDir {
			if dirs && match {
				out = append(out, full)
			}
			if recurse {
				sub, err := fs.enumerate(full, pattern, true, files, dirs)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
		} else if files && match {
			out = append(out, full)
		}
	}
	return out, nil
}
