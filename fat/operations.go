package fat

import (
	"errors"
	"os"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
)

// The methods in this file implement the extended discfs.FileSystem surface
// plus the narrow backend interface File runs on.

// Exists reports whether path names any entry.
func (fs *Fs) Exists(path string) (bool, error) {
	if _, _, err := fs.resolveEntry(path); err != nil {
		if checkpointIsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FileExists reports whether path names an existing file.
func (fs *Fs) FileExists(path string) (bool, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		if checkpointIsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return idx >= 0 && !parent.entries[idx].IsDir(), nil
}

// DirectoryExists reports whether path names an existing directory. The
// root always exists.
func (fs *Fs) DirectoryExists(path string) (bool, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		if checkpointIsNotExist(err) || errorsIsNotADirectory(err) {
			return false, nil
		}
		return false, err
	}
	return idx < 0 || parent.entries[idx].IsDir(), nil
}

// FileLength returns the size of the file at path.
func (fs *Fs) FileLength(path string) (int64, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return 0, err
	}
	if idx < 0 || parent.entries[idx].IsDir() {
		return 0, checkpoint.From(discfs.ErrIsADirectory)
	}
	return int64(parent.entries[idx].header.FileSize), nil
}

// GetAttributes returns the DOS attribute bits of path.
func (fs *Fs) GetAttributes(path string) (discfs.Attributes, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		return discfs.AttrDirectory, nil
	}
	return discfs.Attributes(parent.entries[idx].header.Attribute), nil
}

// SetAttributes replaces the attribute bits of path. The directory and
// volume label bits are preserved from the entry.
func (fs *Fs) SetAttributes(path string, attrs discfs.Attributes) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return err
	}
	if idx < 0 {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	header := parent.entries[idx].header
	fixed := discfs.Attributes(header.Attribute) & (discfs.AttrDirectory | discfs.AttrVolumeLabel)
	header.Attribute = byte(attrs&^(discfs.AttrDirectory|discfs.AttrVolumeLabel) | fixed)
	return parent.updateEntry(idx, header)
}

func (fs *Fs) entryTime(path string, get func(*EntryHeader) time.Time) (time.Time, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return time.Time{}, err
	}
	if idx < 0 {
		return time.Time{}, nil
	}
	return get(&parent.entries[idx].header), nil
}

func (fs *Fs) setEntryTime(path string, set func(*EntryHeader, time.Time), t time.Time) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return err
	}
	if idx < 0 {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	header := parent.entries[idx].header
	set(&header, t.In(fs.opts.Location))
	return parent.updateEntry(idx, header)
}

// CreationTime returns the creation timestamp of path.
func (fs *Fs) CreationTime(path string) (time.Time, error) {
	return fs.entryTime(path, func(h *EntryHeader) time.Time {
		return ParseDateTime(h.CreateDate, h.CreateTime, h.CreateTimeTenth, fs.opts.Location)
	})
}

// SetCreationTime sets the creation timestamp of path.
func (fs *Fs) SetCreationTime(path string, t time.Time) error {
	return fs.setEntryTime(path, func(h *EntryHeader, t time.Time) {
		h.CreateDate = EncodeDate(t)
		h.CreateTime = EncodeTime(t)
		h.CreateTimeTenth = EncodeTenths(t)
	}, t)
}

// LastAccessTime returns the access date of path. FAT stores no access time
// of day.
func (fs *Fs) LastAccessTime(path string) (time.Time, error) {
	return fs.entryTime(path, func(h *EntryHeader) time.Time {
		return ParseDateTime(h.LastAccessDate, 0, 0, fs.opts.Location)
	})
}

// SetLastAccessTime sets the access date of path.
func (fs *Fs) SetLastAccessTime(path string, t time.Time) error {
	return fs.setEntryTime(path, func(h *EntryHeader, t time.Time) {
		h.LastAccessDate = EncodeDate(t)
	}, t)
}

// LastWriteTime returns the last write timestamp of path.
func (fs *Fs) LastWriteTime(path string) (time.Time, error) {
	return fs.entryTime(path, func(h *EntryHeader) time.Time {
		return ParseDateTime(h.WriteDate, h.WriteTime, 0, fs.opts.Location)
	})
}

// SetLastWriteTime sets the last write timestamp of path.
func (fs *Fs) SetLastWriteTime(path string, t time.Time) error {
	return fs.setEntryTime(path, func(h *EntryHeader, t time.Time) {
		h.WriteDate = EncodeDate(t)
		h.WriteTime = EncodeTime(t)
	}, t)
}

// DeleteFile removes a file, freeing its cluster chain.
func (fs *Fs) DeleteFile(path string) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return err
	}
	if idx < 0 || parent.entries[idx].IsDir() {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	return parent.deleteEntry(idx, true)
}

// DeleteDirectory removes an empty directory. A directory that still has
// children fails with ErrDirectoryNotEmpty; recursion is the caller's
// business.
func (fs *Fs) DeleteDirectory(path string) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return err
	}
	if idx < 0 {
		return checkpoint.From(discfs.ErrInvalidPath)
	}
	entry := &parent.entries[idx]
	if !entry.IsDir() {
		return checkpoint.From(discfs.ErrNotADirectory)
	}

	dir, err := fs.directory(entry.header.FirstCluster())
	if err != nil {
		return err
	}
	for i := range dir.entries {
		name := dir.entries[i].name
		if name != "." && name != ".." {
			return checkpoint.From(discfs.ErrDirectoryNotEmpty)
		}
	}

	key := dir.key
	if err := parent.deleteEntry(idx, true); err != nil {
		return err
	}
	fs.forget(key)
	return nil
}

// CopyFile copies src to dst, overwriting only when allowed.
func (fs *Fs) CopyFile(src, dst string, overwrite bool) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	length, err := fs.FileLength(src)
	if err != nil {
		return err
	}
	if exists, err := fs.FileExists(dst); err != nil {
		return err
	} else if exists && !overwrite {
		return checkpoint.From(discfs.ErrExist)
	}

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	buf := make([]byte, fs.bytesPerCluster())
	var copied int64
	for copied < length {
		n, err := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return werr
			}
			copied += int64(n)
		}
		if err != nil {
			break
		}
	}
	return out.Close()
}

// MoveFile renames src to dst by registering a new entry pointing at the
// same chain and deleting the old entry without wiping the chain.
func (fs *Fs) MoveFile(src, dst string, overwrite bool) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	srcParent, srcIdx, err := fs.resolveEntry(src)
	if err != nil {
		return err
	}
	if srcIdx < 0 || srcParent.entries[srcIdx].IsDir() {
		return checkpoint.From(discfs.ErrIsADirectory)
	}

	if exists, err := fs.FileExists(dst); err != nil {
		return err
	} else if exists {
		if !overwrite {
			return checkpoint.From(discfs.ErrExist)
		}
		if err := fs.DeleteFile(dst); err != nil {
			return err
		}
		// The delete reparsed directories, the source index may have moved.
		srcParent, srcIdx, err = fs.resolveEntry(src)
		if err != nil {
			return err
		}
	}

	dstParent, err := fs.resolveDir(discfs.DirName(dst))
	if err != nil {
		return err
	}

	header := srcParent.entries[srcIdx].header
	if _, err := dstParent.addEntry(discfs.BaseName(dst), header); err != nil {
		return err
	}
	// The source entry goes away, the chain stays.
	if srcParent == dstParent {
		// addEntry reparsed the directory, find the old entry again.
		srcIdx = srcParent.findByName(discfs.BaseName(src))
		if srcIdx < 0 {
			return checkpoint.From(discfs.ErrCorrupt)
		}
	}
	return srcParent.deleteEntry(srcIdx, false)
}

// MoveDirectory renames a directory without copying its contents: the new
// entry points at the existing first cluster.
func (fs *Fs) MoveDirectory(src, dst string) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	srcParent, srcIdx, err := fs.resolveEntry(src)
	if err != nil {
		return err
	}
	if srcIdx < 0 {
		return checkpoint.From(discfs.ErrInvalidPath)
	}
	entry := &srcParent.entries[srcIdx]
	if !entry.IsDir() {
		return checkpoint.From(discfs.ErrNotADirectory)
	}

	if exists, err := fs.Exists(dst); err != nil {
		return err
	} else if exists {
		return checkpoint.From(discfs.ErrExist)
	}

	dstParent, err := fs.resolveDir(discfs.DirName(dst))
	if err != nil {
		return err
	}

	cluster := entry.header.FirstCluster()
	header := entry.header
	if _, err := dstParent.addEntry(discfs.BaseName(dst), header); err != nil {
		return err
	}
	if srcParent == dstParent {
		srcIdx = srcParent.findByName(discfs.BaseName(src))
		if srcIdx < 0 {
			return checkpoint.From(discfs.ErrCorrupt)
		}
	}
	if err := srcParent.deleteEntry(srcIdx, false); err != nil {
		return err
	}
	fs.forget(cluster)

	// Rewrite ".." when the directory moved to a different parent.
	dir, err := fs.directory(cluster)
	if err != nil {
		return err
	}
	if idx := dir.findByName(".."); idx >= 0 {
		header := dir.entries[idx].header
		if dstParent.fixedRoot || dstParent.key == fs.info.RootCluster {
			header.SetFirstCluster(0)
		} else {
			header.SetFirstCluster(dstParent.key)
		}
		if err := dir.updateEntry(idx, header); err != nil {
			return err
		}
	}
	return nil
}

// GetFiles lists files below path matching the DOS wildcard pattern.
func (fs *Fs) GetFiles(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, true, false)
}

// GetDirectories lists directories below path matching pattern.
func (fs *Fs) GetDirectories(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, false, true)
}

// GetFileSystemEntries lists files and directories below path.
func (fs *Fs) GetFileSystemEntries(path, pattern string, recurse bool) ([]string, error) {
	return fs.enumerate(path, pattern, recurse, true, true)
}

func (fs *Fs) enumerate(path, pattern string, recurse, files, dirs bool) ([]string, error) {
	re, err := discfs.CompileWildcard(pattern)
	if err != nil {
		return nil, err
	}
	dir, err := fs.resolveDir(path)
	if err != nil {
		return nil, err
	}

	base := discfs.NormalizePath(path)
	var out []string
	for i := range dir.entries {
		e := &dir.entries[i]
		if e.name == "." || e.name == ".." || discfs.Attributes(e.header.Attribute).Has(discfs.AttrVolumeLabel) {
			continue
		}
		full := discfs.JoinPath(base, e.name)
		match := re.MatchString(e.name)
		if e.IsDir() {
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

// --- fatFileFs backend ---

// commitEntry updates the entry of a closed or synced file with its current
// head cluster, size and write time.
func (fs *Fs) commitEntry(dirKey uint32, entryID int, firstCluster uint32, size int64, modTime time.Time) error {
	dir, err := fs.directory(dirKey)
	if err != nil {
		return err
	}
	if entryID < 0 || entryID >= len(dir.entries) {
		return checkpoint.From(discfs.ErrNotExist)
	}
	header := dir.entries[entryID].header
	header.SetFirstCluster(firstCluster)
	header.FileSize = uint32(size)
	local := modTime.In(fs.opts.Location)
	header.WriteDate = EncodeDate(local)
	header.WriteTime = EncodeTime(local)
	header.LastAccessDate = EncodeDate(local)
	if err := dir.updateEntry(entryID, header); err != nil {
		return err
	}
	return fs.table.flush()
}

// readRoot lists the root directory.
func (fs *Fs) readRoot() ([]os.FileInfo, error) {
	dir, err := fs.root()
	if err != nil {
		return nil, err
	}
	return fs.listDir(dir), nil
}

// readDir lists the directory content starting at cluster.
func (fs *Fs) readDir(cluster uint32) ([]os.FileInfo, error) {
	dir, err := fs.directory(cluster)
	if err != nil {
		return nil, err
	}
	return fs.listDir(dir), nil
}

func (fs *Fs) listDir(dir *directory) []os.FileInfo {
	out := make([]os.FileInfo, 0, len(dir.entries))
	for i := range dir.entries {
		e := &dir.entries[i]
		if e.name == "." || e.name == ".." || discfs.Attributes(e.header.Attribute).Has(discfs.AttrVolumeLabel) {
			continue
		}
		out = append(out, newEntryInfo(e, fs.opts.Location))
	}
	return out
}

// clock returns the mutation timestamp source.
func (fs *Fs) clock() time.Time {
	return fs.now()
}

func errorsIsNotADirectory(err error) bool {
	return err != nil && errors.Is(err, discfs.ErrNotADirectory)
}
