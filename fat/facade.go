package fat

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	"github.com/spf13/afero"
)

var _ discfs.FileSystem = (*Fs)(nil)

// resolveDir walks all components of path and returns the directory they
// name. An intermediate component that is a file fails with ErrNotADirectory.
func (fs *Fs) resolveDir(path string) (*directory, error) {
	dir, err := fs.root()
	if err != nil {
		return nil, err
	}
	for _, part := range discfs.SplitPath(path) {
		idx := dir.findByName(part)
		if idx < 0 {
			return nil, checkpoint.From(discfs.ErrNotExist)
		}
		entry := &dir.entries[idx]
		if !entry.IsDir() {
			return nil, checkpoint.From(discfs.ErrNotADirectory)
		}
		dir, err = fs.directory(entry.header.FirstCluster())
		if err != nil {
			return nil, err
		}
	}
	return dir, nil
}

// resolveEntry resolves path to its containing directory and the entry
// index inside it. The root resolves to (rootDir, -1).
func (fs *Fs) resolveEntry(path string) (*directory, int, error) {
	parts := discfs.SplitPath(path)
	if len(parts) == 0 {
		dir, err := fs.root()
		return dir, -1, err
	}

	parent, err := fs.resolveDir(strings.Join(parts[:len(parts)-1], "\\"))
	if err != nil {
		return nil, -1, err
	}
	idx := parent.findByName(parts[len(parts)-1])
	if idx < 0 {
		return parent, -1, checkpoint.From(discfs.ErrNotExist)
	}
	return parent, idx, nil
}

func (fs *Fs) requireWritable() error {
	if fs.closed {
		return checkpoint.From(afero.ErrFileClosed)
	}
	if !fs.writable {
		return checkpoint.From(discfs.ErrReadOnly)
	}
	return nil
}

// Name returns the name of this filesystem implementation.
func (fs *Fs) Name() string {
	return "discfs-" + fs.info.FSType.String()
}

// Open opens the named file or directory for reading.
func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens path with the given flags. Write flags require a writable
// mount. Opening a directory with write access fails.
func (fs *Fs) OpenFile(path string, flag int, _ os.FileMode) (afero.File, error) {
	if err := discfs.ValidatePath(path); err != nil {
		return nil, err
	}
	writing := flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0
	if writing {
		if err := fs.requireWritable(); err != nil {
			return nil, err
		}
	}

	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		if !checkpointIsNotExist(err) || !writing || flag&os.O_CREATE == 0 || parent == nil {
			return nil, err
		}
		// Create the file.
		idx, err = fs.createFileEntry(parent, discfs.BaseName(path))
		if err != nil {
			return nil, err
		}
	} else if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return nil, checkpoint.From(discfs.ErrExist)
	}

	if idx < 0 {
		// The root directory.
		root, err := fs.root()
		if err != nil {
			return nil, err
		}
		if writing {
			return nil, checkpoint.From(discfs.ErrIsADirectory)
		}
		return &File{
			fs:          fs,
			path:        "",
			name:        "",
			isDirectory: true,
			readOnly:    true,
			firstCluster: func() uint32 {
				if fs.info.FSType == FAT32 {
					return fs.info.RootCluster
				}
				return 0
			}(),
			dirKey: root.key,
			stat:   EntryInfo{name: "", header: EntryHeader{Attribute: byte(discfs.AttrDirectory)}, loc: fs.opts.Location},
		}, nil
	}

	entry := &parent.entries[idx]
	if entry.IsDir() {
		if writing {
			return nil, checkpoint.From(discfs.ErrIsADirectory)
		}
		return &File{
			fs:           fs,
			path:         discfs.NormalizePath(path),
			name:         entry.name,
			isDirectory:  true,
			readOnly:     true,
			firstCluster: entry.header.FirstCluster(),
			dirKey:       parent.key,
			entryID:      idx,
			stat:         newEntryInfo(entry, fs.opts.Location),
		}, nil
	}

	f := &File{
		fs:           fs,
		path:         discfs.NormalizePath(path),
		name:         entry.name,
		readOnly:     !writing,
		firstCluster: entry.header.FirstCluster(),
		size:         int64(entry.header.FileSize),
		dirKey:       parent.key,
		entryID:      idx,
		stat:         newEntryInfo(entry, fs.opts.Location),
	}
	if flag&os.O_TRUNC != 0 && f.size > 0 {
		if err := f.Truncate(0); err != nil {
			return nil, err
		}
	}
	if flag&os.O_APPEND != 0 {
		f.offset = f.size
	}
	return f, nil
}

// createFileEntry registers a fresh zero length file in parent.
func (fs *Fs) createFileEntry(parent *directory, name string) (int, error) {
	now := fs.now().In(fs.opts.Location)
	header := EntryHeader{
		Attribute:       byte(discfs.AttrArchive),
		CreateTimeTenth: EncodeTenths(now),
		CreateTime:      EncodeTime(now),
		CreateDate:      EncodeDate(now),
		LastAccessDate:  EncodeDate(now),
		WriteTime:       EncodeTime(now),
		WriteDate:       EncodeDate(now),
	}
	return parent.addEntry(name, header)
}

// Create creates or truncates the named file.
func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0)
}

// Mkdir creates a single directory. The parent must exist.
func (fs *Fs) Mkdir(path string, _ os.FileMode) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parts := discfs.SplitPath(path)
	if len(parts) == 0 {
		return checkpoint.From(discfs.ErrExist)
	}
	parent, err := fs.resolveDir(strings.Join(parts[:len(parts)-1], "\\"))
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if parent.findByName(name) >= 0 {
		return checkpoint.From(discfs.ErrExist)
	}
	_, err = fs.createDirectory(parent, name)
	return err
}

// MkdirAll creates path and any missing parents.
func (fs *Fs) MkdirAll(path string, _ os.FileMode) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	dir, err := fs.root()
	if err != nil {
		return err
	}
	for _, part := range discfs.SplitPath(path) {
		idx := dir.findByName(part)
		if idx >= 0 {
			entry := &dir.entries[idx]
			if !entry.IsDir() {
				return checkpoint.From(discfs.ErrNotADirectory)
			}
			dir, err = fs.directory(entry.header.FirstCluster())
			if err != nil {
				return err
			}
			continue
		}
		cluster, err := fs.createDirectory(dir, part)
		if err != nil {
			return err
		}
		dir, err = fs.directory(cluster)
		if err != nil {
			return err
		}
	}
	return nil
}

// createDirectory allocates one cluster, writes the dot entries and
// registers name in parent. It returns the new directory's first cluster.
func (fs *Fs) createDirectory(parent *directory, name string) (uint32, error) {
	cluster, err := fs.table.allocate()
	if err != nil {
		return 0, err
	}

	now := fs.now().In(fs.opts.Location)
	stamp := EntryHeader{
		Attribute:       byte(discfs.AttrDirectory),
		CreateTimeTenth: EncodeTenths(now),
		CreateTime:      EncodeTime(now),
		CreateDate:      EncodeDate(now),
		LastAccessDate:  EncodeDate(now),
		WriteTime:       EncodeTime(now),
		WriteDate:       EncodeDate(now),
	}

	// "." points at the directory itself, ".." at the parent; a root parent
	// is stored as cluster zero.
	dot := stamp
	copy(dot.Name[:], ".          ")
	dot.SetFirstCluster(cluster)
	dotdot := stamp
	copy(dotdot.Name[:], "..         ")
	if !parent.fixedRoot && parent.key != fs.info.RootCluster {
		dotdot.SetFirstCluster(parent.key)
	}

	content := make([]byte, fs.bytesPerCluster())
	packEntry(content[0:], dot)
	packEntry(content[slotSize:], dotdot)
	if err := fs.writeCluster(cluster, content); err != nil {
		return 0, err
	}

	entry := stamp
	entry.SetFirstCluster(cluster)
	if _, err := parent.addEntry(name, entry); err != nil {
		_ = fs.table.freeChain(cluster)
		return 0, err
	}
	return cluster, fs.table.flush()
}

// Remove deletes the named file or empty directory.
func (fs *Fs) Remove(path string) error {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return err
	}
	if idx < 0 {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	if parent.entries[idx].IsDir() {
		return fs.DeleteDirectory(path)
	}
	return fs.DeleteFile(path)
}

// RemoveAll deletes path and all its descendants. Deleting the root clears
// the volume but keeps the root itself.
func (fs *Fs) RemoveAll(path string) error {
	if err := fs.requireWritable(); err != nil {
		return err
	}
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		if checkpointIsNotExist(err) {
			return nil
		}
		return err
	}
	if idx >= 0 && !parent.entries[idx].IsDir() {
		return fs.DeleteFile(path)
	}

	dir, err := fs.resolveDir(path)
	if err != nil {
		return err
	}
	for {
		deleted := false
		for i := range dir.entries {
			e := &dir.entries[i]
			if e.name == "." || e.name == ".." || discfs.Attributes(e.header.Attribute).Has(discfs.AttrVolumeLabel) {
				continue
			}
			child := discfs.JoinPath(path, e.name)
			if e.IsDir() {
				if err := fs.RemoveAll(child); err != nil {
					return err
				}
			} else {
				if err := fs.DeleteFile(child); err != nil {
					return err
				}
			}
			deleted = true
			break
		}
		if !deleted {
			break
		}
	}
	if idx < 0 {
		return nil
	}
	return fs.DeleteDirectory(path)
}

// Rename moves a file or directory to a new path.
func (fs *Fs) Rename(oldname, newname string) error {
	parent, idx, err := fs.resolveEntry(oldname)
	if err != nil {
		return err
	}
	if idx < 0 {
		return checkpoint.From(discfs.ErrIsADirectory)
	}
	if parent.entries[idx].IsDir() {
		return fs.MoveDirectory(oldname, newname)
	}
	return fs.MoveFile(oldname, newname, false)
}

// Stat returns the FileInfo of path.
func (fs *Fs) Stat(path string) (os.FileInfo, error) {
	parent, idx, err := fs.resolveEntry(path)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return EntryInfo{name: "", header: EntryHeader{Attribute: byte(discfs.AttrDirectory)}, loc: fs.opts.Location}, nil
	}
	return newEntryInfo(&parent.entries[idx], fs.opts.Location), nil
}

// Chmod maps the write permission to the DOS read-only bit.
func (fs *Fs) Chmod(path string, mode os.FileMode) error {
	attrs, err := fs.GetAttributes(path)
	if err != nil {
		return err
	}
	if mode&0o200 == 0 {
		attrs |= discfs.AttrReadOnly
	} else {
		attrs &^= discfs.AttrReadOnly
	}
	return fs.SetAttributes(path, attrs)
}

// Chown is not supported on FAT.
func (fs *Fs) Chown(string, int, int) error {
	return checkpoint.From(discfs.ErrUnsupported)
}

// Chtimes sets the access and write times of path.
func (fs *Fs) Chtimes(path string, atime time.Time, mtime time.Time) error {
	if err := fs.SetLastAccessTime(path, atime); err != nil {
		return err
	}
	return fs.SetLastWriteTime(path, mtime)
}

func checkpointIsNotExist(err error) bool {
	return err != nil && errors.Is(err, discfs.ErrNotExist)
}
