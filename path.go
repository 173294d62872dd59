package discfs

import (
	"regexp"
	"strings"

	"github.com/aligator/discfs/checkpoint"
)

// Paths are backslash separated and case-insensitive. The root directory is
// addressed by the empty string or a single separator. Forward slashes are
// accepted as separators too.

const maxComponentLength = 255

// SplitPath splits a path into its components, dropping empty ones. The root
// path yields an empty slice.
func SplitPath(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '\\' || r == '/'
	})
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// ValidatePath checks every component of path for forbidden characters and
// oversize names.
func ValidatePath(path string) error {
	for _, part := range SplitPath(path) {
		if err := ValidateComponent(part); err != nil {
			return err
		}
	}
	return nil
}

// ValidateComponent checks a single path component.
func ValidateComponent(name string) error {
	if name == "" || len(name) > maxComponentLength {
		return checkpoint.From(ErrInvalidPath)
	}
	if strings.ContainsAny(name, "\x00\\/:*?\"<>|") {
		return checkpoint.From(ErrInvalidPath)
	}
	return nil
}

// NormalizePath joins the components of path back together with backslashes
// and no leading separator. The root becomes "".
func NormalizePath(path string) string {
	return strings.Join(SplitPath(path), "\\")
}

// BaseName returns the last component of path, or "" for the root.
func BaseName(path string) string {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// DirName returns the path without its last component.
func DirName(path string) string {
	parts := SplitPath(path)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "\\")
}

// JoinPath joins any number of path fragments with a single backslash.
func JoinPath(parts ...string) string {
	return NormalizePath(strings.Join(parts, "\\"))
}

// SplitStreamName separates an ":altstream" suffix from the final path
// component. FAT never produces one; NTFS uses it to address alternate
// data streams.
func SplitStreamName(path string) (string, string) {
	base := BaseName(path)
	idx := strings.IndexByte(base, ':')
	if idx < 0 {
		return path, ""
	}
	trimmed := strings.TrimSuffix(NormalizePath(path), base[idx:])
	return trimmed, base[idx+1:]
}

// CompileWildcard translates a DOS wildcard pattern into an anchored,
// case-insensitive regular expression. A star matches any run of characters
// including the dot; a question mark matches any single character except the
// dot. A pattern that contains no dot has one appended, so "*" also matches
// names without an extension. An empty pattern matches everything.
func CompileWildcard(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !strings.Contains(pattern, ".") {
		pattern += "."
	}

	var b strings.Builder
	b.WriteString(`(?i)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`[^.]`)
		case '.':
			b.WriteString(`\.?`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidName)
	}
	return re, nil
}

// MatchesWildcard reports whether name matches the DOS wildcard pattern.
func MatchesWildcard(pattern, name string) (bool, error) {
	re, err := CompileWildcard(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(name), nil
}
