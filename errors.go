package discfs

import "errors"

// These errors classify every failure the filesystem engines can surface.
// Engines wrap them with checkpoint so that both the kind and the underlying
// cause can be checked with errors.Is.
var (
	// ErrNotExist is returned when a file, directory or named stream does not exist.
	ErrNotExist = errors.New("file or directory does not exist")
	// ErrExist is returned when a create-new operation collides with an existing entry.
	ErrExist = errors.New("file or directory already exists")
	// ErrNotADirectory is returned when a path component resolves to a file.
	ErrNotADirectory = errors.New("not a directory")
	// ErrIsADirectory is returned when a directory is opened or deleted through the file API.
	ErrIsADirectory = errors.New("is a directory")
	// ErrDirectoryNotEmpty is returned when deleting a directory that still has children.
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	// ErrNoSpace is returned when cluster allocation fails or a fixed root directory is full.
	ErrNoSpace = errors.New("no space left on volume")
	// ErrInvalidPath is returned for empty, oversize or otherwise malformed path components.
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidName is returned when a name cannot be normalized to the on-disk form.
	ErrInvalidName = errors.New("invalid name")
	// ErrReadOnly is returned for any mutation on a read-only filesystem.
	ErrReadOnly = errors.New("filesystem is read-only")
	// ErrCorrupt is returned for structural corruption: bad signatures, update
	// sequence mismatches, cyclic cluster chains, out-of-range table entries.
	ErrCorrupt = errors.New("filesystem structure is corrupt")
	// ErrUnsupported is returned for operations the engine does not implement.
	ErrUnsupported = errors.New("operation not supported")
	// ErrIO is returned when the backing device fails or reads come up short.
	ErrIO = errors.New("i/o error on backing device")
)
