package discfs

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{
			name: "empty path is the root",
			path: "",
			want: nil,
		},
		{
			name: "single backslash is the root",
			path: "\\",
			want: nil,
		},
		{
			name: "backslash separated",
			path: "\\A\\B\\c.txt",
			want: []string{"A", "B", "c.txt"},
		},
		{
			name: "forward slashes work too",
			path: "A/B/c.txt",
			want: []string{"A", "B", "c.txt"},
		},
		{
			name: "repeated separators collapse",
			path: "\\\\A\\\\\\B",
			want: []string{"A", "B"},
		},
		{
			name: "dot components are dropped",
			path: "\\A\\.\\B",
			want: []string{"A", "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPath(tt.path)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{"\\", ""},
		{"/A/B", "A\\B"},
		{"\\A\\\\B\\", "A\\B"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.path); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestBaseAndDirName(t *testing.T) {
	if got := BaseName("\\A\\B\\c.txt"); got != "c.txt" {
		t.Errorf("BaseName = %q, want c.txt", got)
	}
	if got := DirName("\\A\\B\\c.txt"); got != "A\\B" {
		t.Errorf("DirName = %q, want A\\B", got)
	}
	if got := DirName("c.txt"); got != "" {
		t.Errorf("DirName of root child = %q, want empty", got)
	}
}

func TestValidateComponent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain name", "hello.txt", false},
		{"spaces are fine", "a long name.txt", false},
		{"empty", "", true},
		{"wildcard star", "a*b", true},
		{"wildcard question mark", "a?b", true},
		{"colon", "a:b", true},
		{"nul byte", "a\x00b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateComponent(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateComponent(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPath) {
				t.Errorf("ValidateComponent(%q) error is not ErrInvalidPath: %v", tt.input, err)
			}
		})
	}
}

func TestSplitStreamName(t *testing.T) {
	tests := []struct {
		path       string
		wantPath   string
		wantStream string
	}{
		{"\\file.txt", "\\file.txt", ""},
		{"\\file.txt:stream1", "file.txt", "stream1"},
		{"\\dir\\file.txt:s", "dir\\file.txt", "s"},
	}
	for _, tt := range tests {
		gotPath, gotStream := SplitStreamName(tt.path)
		if gotStream != tt.wantStream {
			t.Errorf("SplitStreamName(%q) stream = %q, want %q", tt.path, gotStream, tt.wantStream)
		}
		if tt.wantStream != "" && NormalizePath(gotPath) != tt.wantPath {
			t.Errorf("SplitStreamName(%q) path = %q, want %q", tt.path, gotPath, tt.wantPath)
		}
	}
}

func TestMatchesWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*.txt", "hello.txt", true},
		{"*.txt", "hello.TXT", true},
		{"*.txt", "hello.doc", false},
		{"*", "anything.at.all", true},
		{"*", "noextension", true},
		{"", "anything", true},
		{"file?.bin", "file1.bin", true},
		{"file?.bin", "file.bin", false},
		{"file?.bin", "file12.bin", false},
		{"?", "a", true},
		{"?", ".", false},
		{"A*", "abc", true},
		{"hel*o.txt", "hello.txt", true},
	}
	for _, tt := range tests {
		got, err := MatchesWildcard(tt.pattern, tt.input)
		if err != nil {
			t.Fatalf("MatchesWildcard(%q, %q) error: %v", tt.pattern, tt.input, err)
		}
		if got != tt.want {
			t.Errorf("MatchesWildcard(%q, %q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
		}
	}
}

func TestAttributesString(t *testing.T) {
	attrs := AttrReadOnly | AttrDirectory
	if got := attrs.String(); got != "r---d-" {
		t.Errorf("Attributes.String() = %q, want r---d-", got)
	}
	if !attrs.IsDir() {
		t.Error("IsDir() = false, want true")
	}
	if !attrs.Has(AttrReadOnly) {
		t.Error("Has(AttrReadOnly) = false, want true")
	}
}
