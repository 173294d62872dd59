package discfs

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/aligator/discfs/checkpoint"
)

// GoDirEntry adapts an os.FileInfo to fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile adapts an open afero.File to fs.File / fs.ReadDirFile.
type GoFile struct {
	File interface {
		Stat() (fs.FileInfo, error)
		Read([]byte) (int, error)
		Close() error
		Readdir(int) ([]fs.FileInfo, error)
	}
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

func (g GoFile) Read(p []byte) (int, error) {
	return g.File.Read(p)
}

func (g GoFile) Close() error {
	return g.File.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs wraps a FileSystem to be compatible with fs.FS. Paths use forward
// slashes as io/fs requires; they are translated to the engine's separator.
type GoFs struct {
	Fs FileSystem
}

// NewGoFS wraps an already mounted filesystem as fs.FS.
func NewGoFS(fsys FileSystem) *GoFs {
	return &GoFs{Fs: fsys}
}

func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		name = ""
	}
	file, err := g.Fs.Open(strings.ReplaceAll(name, "/", "\\"))
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return nil, checkpoint.From(err)
	}

	return GoFile{file}, nil
}
