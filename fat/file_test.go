package fat

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aligator/discfs"
	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
)

func TestFileRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockFs := NewMockfatFileFs(ctrl)
	mockFs.EXPECT().
		readFileAt(uint32(2), int64(11), int64(0), int64(5)).
		Return([]byte("hello"), nil)
	mockFs.EXPECT().
		readFileAt(uint32(2), int64(11), int64(5), int64(5)).
		Return([]byte(" worl"), nil)

	f := &File{
		fs:           mockFs,
		name:         "f.txt",
		readOnly:     true,
		firstCluster: 2,
		size:         11,
	}

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("first Read = %d %q %v", n, buf, err)
	}
	n, err = f.Read(buf)
	if err != nil || n != 5 || string(buf) != " worl" {
		t.Fatalf("second Read = %d %q %v", n, buf, err)
	}
	if f.offset != 10 {
		t.Errorf("offset = %d, want 10", f.offset)
	}
}

func TestFileReadAtEOF(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := &File{
		fs:       NewMockfatFileFs(ctrl),
		readOnly: true,
		size:     4,
		offset:   4,
	}
	if _, err := f.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read at EOF = %v, want io.EOF", err)
	}
	if _, err := f.ReadAt(make([]byte, 1), 4); err != io.EOF {
		t.Errorf("ReadAt past EOF = %v, want io.EOF", err)
	}
}

func TestFileSeek(t *testing.T) {
	tests := []struct {
		name       string
		offset     int64
		whence     int
		start      int64
		want       int64
		wantErr    bool
		wantTarget error
	}{
		{name: "seek start", offset: 3, whence: io.SeekStart, want: 3},
		{name: "seek current", offset: 2, whence: io.SeekCurrent, start: 3, want: 5},
		{name: "seek end", offset: -4, whence: io.SeekEnd, want: 6},
		{name: "negative result", offset: -1, whence: io.SeekStart, wantErr: true, wantTarget: afero.ErrOutOfRange},
		{name: "past end read-only", offset: 11, whence: io.SeekStart, wantErr: true, wantTarget: afero.ErrOutOfRange},
		{name: "bad whence", offset: 0, whence: 42, wantErr: true, wantTarget: ErrSeekFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{readOnly: true, size: 10, offset: tt.start}
			got, err := f.Seek(tt.offset, tt.whence)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Seek error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, tt.wantTarget) {
					t.Errorf("Seek error = %v, want %v", err, tt.wantTarget)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Seek = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFileWriteGrowsChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

	mockFs := NewMockfatFileFs(ctrl)
	mockFs.EXPECT().ensureChain(uint32(0), int64(5)).Return(uint32(7), nil)
	mockFs.EXPECT().writeFileAt(uint32(7), int64(0), []byte("hello")).Return(nil)
	mockFs.EXPECT().clock().Return(now)
	mockFs.EXPECT().commitEntry(uint32(0), 3, uint32(7), int64(5), now).Return(nil)

	f := &File{
		fs:      mockFs,
		name:    "new.txt",
		entryID: 3,
	}
	n, err := f.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d %v", n, err)
	}
	if f.firstCluster != 7 || f.size != 5 {
		t.Errorf("file state = cluster %d size %d, want 7/5", f.firstCluster, f.size)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Double close is a no-op.
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFileWriteReadOnly(t *testing.T) {
	f := &File{readOnly: true}
	if _, err := f.Write([]byte("x")); !errors.Is(err, discfs.ErrReadOnly) {
		t.Errorf("Write on read-only = %v, want ErrReadOnly", err)
	}
}

func TestFileReaddir(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	infos := []os.FileInfo{
		EntryInfo{name: "a.txt"},
		EntryInfo{name: "b.txt"},
		EntryInfo{name: "c.txt"},
	}

	mockFs := NewMockfatFileFs(ctrl)
	mockFs.EXPECT().readDir(uint32(9)).Return(infos, nil).AnyTimes()

	f := &File{
		fs:           mockFs,
		path:         "sub",
		isDirectory:  true,
		firstCluster: 9,
		dirKey:       9,
	}

	first, err := f.Readdir(2)
	if err != nil {
		t.Fatalf("Readdir(2): %v", err)
	}
	if len(first) != 2 || first[0].Name() != "a.txt" {
		t.Fatalf("Readdir(2) = %v", first)
	}

	rest, err := f.Readdir(2)
	if len(rest) != 1 || rest[0].Name() != "c.txt" {
		t.Fatalf("Readdir continuation = %v, err %v", rest, err)
	}
}

func TestFileReaddirOnFile(t *testing.T) {
	f := &File{}
	if _, err := f.Readdir(-1); !errors.Is(err, ErrReadDir) {
		t.Errorf("Readdir on file = %v, want ErrReadDir", err)
	}
}

func TestFileReadAll(t *testing.T) {
	// An integration style read through a real volume, no mocks.
	fs, _ := newTestVolume(t)
	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 1000)
	writeFile(t, fs, "\\all.bin", payload)

	f, err := fs.Open("\\all.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadAll mismatch: %d bytes vs %d", len(got), len(payload))
	}
}
