package discfs

import (
	"time"

	"github.com/spf13/afero"
)

// FileSystem is the capability set every disc image filesystem exposes.
// It embeds afero.Fs so a mounted image can be used anywhere a generic
// filesystem is expected, and adds the disc image specific surface:
// attribute access, the raw timestamp accessors and DOS wildcard
// enumeration.
//
// A FileSystem owns its backing Device exclusively. It is not safe for
// concurrent use; callers share one instance across goroutines at their
// own risk with external serialization.
type FileSystem interface {
	afero.Fs

	// FSType names the concrete format, e.g. "FAT16" or "NTFS".
	FSType() string
	// Label returns the volume label.
	Label() string
	// CanWrite reports whether mutating operations are available.
	CanWrite() bool

	// Exists reports whether a file or directory exists at path.
	Exists(path string) (bool, error)
	// FileExists reports whether path names an existing file.
	FileExists(path string) (bool, error)
	// DirectoryExists reports whether path names an existing directory.
	// The root always exists.
	DirectoryExists(path string) (bool, error)

	// GetAttributes returns the DOS attribute bits of path.
	GetAttributes(path string) (Attributes, error)
	// SetAttributes replaces the DOS attribute bits of path. The directory
	// and volume label bits cannot be changed this way.
	SetAttributes(path string, attrs Attributes) error

	// CreationTime, LastAccessTime and LastWriteTime return the respective
	// timestamp in the mount location. The setters require a writable mount.
	CreationTime(path string) (time.Time, error)
	SetCreationTime(path string, t time.Time) error
	LastAccessTime(path string) (time.Time, error)
	SetLastAccessTime(path string, t time.Time) error
	LastWriteTime(path string) (time.Time, error)
	SetLastWriteTime(path string, t time.Time) error

	// FileLength returns the size of the file at path in bytes.
	FileLength(path string) (int64, error)

	// GetFiles lists the files in path whose names match the DOS wildcard
	// pattern, optionally descending into subdirectories. Results are full
	// paths. An empty pattern matches everything.
	GetFiles(path, pattern string, recurse bool) ([]string, error)
	// GetDirectories is GetFiles for directories.
	GetDirectories(path, pattern string, recurse bool) ([]string, error)
	// GetFileSystemEntries lists files and directories together.
	GetFileSystemEntries(path, pattern string, recurse bool) ([]string, error)

	// CopyFile copies src to dst. With overwrite false an existing
	// destination is an error.
	CopyFile(src, dst string, overwrite bool) error
	// MoveFile renames a file, possibly across directories.
	MoveFile(src, dst string, overwrite bool) error
	// MoveDirectory renames a directory without copying its contents.
	MoveDirectory(src, dst string) error

	// Close releases the directory cache and flushes pending writes.
	// Closing twice is a no-op.
	Close() error
}
