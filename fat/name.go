package fat

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/aligator/discfs"
	"github.com/aligator/discfs/checkpoint"
	"golang.org/x/text/encoding/charmap"
)

// Short names live in the 11 byte Name field of a directory slot: eight name
// bytes and three extension bytes, space padded, upper case in the OEM code
// page of the volume.

// shortNameForbidden are the bytes that may never appear in a short name.
var shortNameForbidden = []byte(`"*+,./:;<=>?[\]|`)

// displayShortName formats an 11 byte field as "NAME.EXT".
func displayShortName(field [11]byte) string {
	name := strings.TrimRight(string(field[:8]), " ")
	ext := strings.TrimRight(string(field[8:11]), " ")

	// 0x05 substitutes a leading 0xE5 so it is not taken for a deleted slot.
	if len(name) > 0 && name[0] == 0x05 {
		name = string([]byte{0xE5}) + name[1:]
	}

	if ext != "" {
		return name + "." + ext
	}
	return name
}

// encodeOEM converts a string to the volume's OEM code page, upper cased.
func encodeOEM(name string, cp *charmap.Charmap) ([]byte, error) {
	upper := strings.ToUpper(name)
	encoded, err := cp.NewEncoder().Bytes([]byte(upper))
	if err != nil {
		return nil, checkpoint.Wrap(err, discfs.ErrInvalidName)
	}
	return encoded, nil
}

// normalizeShortName converts name into the 11 byte on-disk form, if it fits
// the 8.3 shape. ok is false when a long name entry group is required.
func normalizeShortName(name string, cp *charmap.Charmap) (field [11]byte, ok bool) {
	for i := range field {
		field[i] = ' '
	}

	base, ext := name, ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base, ext = name[:idx], name[idx+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return field, false
	}
	// A name that is not already upper case needs an LFN to keep its casing.
	if name != strings.ToUpper(name) {
		return field, false
	}

	encBase, err := encodeOEM(base, cp)
	if err != nil {
		return field, false
	}
	encExt, err := encodeOEM(ext, cp)
	if err != nil {
		return field, false
	}
	for _, b := range append(append([]byte{}, encBase...), encExt...) {
		if b < 0x20 || bytes.IndexByte(shortNameForbidden, b) >= 0 {
			return field, false
		}
	}

	copy(field[:8], encBase)
	copy(field[8:11], encExt)
	return field, true
}

// makeShortAlias derives the 8.3 alias for a long name: upper cased OEM
// subset, invalid characters replaced by '_', base truncated to six
// characters followed by "~N" with the lowest N not yet used in the
// directory, keeping up to three extension characters.
func makeShortAlias(name string, cp *charmap.Charmap, taken func([11]byte) bool) ([11]byte, error) {
	var field [11]byte
	for i := range field {
		field[i] = ' '
	}

	base, ext := name, ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base, ext = name[:idx], name[idx+1:]
	}

	clean := func(s string, max int) []byte {
		encoded, err := cp.NewEncoder().Bytes([]byte(strings.ToUpper(s)))
		if err != nil {
			// Encode rune by rune so a single unmappable character does not
			// empty the whole name.
			var out []byte
			enc := cp.NewEncoder()
			for _, r := range strings.ToUpper(s) {
				b, err := enc.Bytes([]byte(string(r)))
				if err != nil || len(b) != 1 {
					out = append(out, '_')
					continue
				}
				out = append(out, b[0])
			}
			encoded = out
		}
		var out []byte
		for _, b := range encoded {
			if b == ' ' || b == '.' {
				continue
			}
			if b < 0x20 || bytes.IndexByte(shortNameForbidden, b) >= 0 {
				b = '_'
			}
			out = append(out, b)
			if len(out) == max {
				break
			}
		}
		return out
	}

	prefix := clean(base, 6)
	if len(prefix) == 0 {
		prefix = []byte{'_'}
	}
	extField := clean(ext, 3)
	copy(field[8:11], extField)

	for n := 1; n < 1000000; n++ {
		suffix := "~" + strconv.Itoa(n)
		keep := len(prefix)
		if keep+len(suffix) > 8 {
			keep = 8 - len(suffix)
		}
		for i := 0; i < 8; i++ {
			field[i] = ' '
		}
		copy(field[:8], prefix[:keep])
		copy(field[keep:8], suffix)

		if !taken(field) {
			return field, nil
		}
	}
	return field, checkpoint.From(discfs.ErrNoSpace)
}

// lfnChecksum is the rotate-right sum over the 11 short name bytes that ties
// a long name group to its short entry.
func lfnChecksum(field [11]byte) byte {
	var sum byte
	for _, b := range field[:] {
		sum = (sum >> 1) | (sum << 7)
		sum += b
	}
	return sum
}

// namesEqual compares a display name against a lookup name case
// insensitively. LFNs are stored in UTF-16 but compared at the rune level.
func namesEqual(stored, lookup string) bool {
	return strings.EqualFold(stored, lookup)
}
