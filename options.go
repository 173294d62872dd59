package discfs

import (
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Options configures how a filesystem is mounted.
type Options struct {
	// ReadOnly forces a read-only mount even on a writable device.
	ReadOnly bool
	// OEMEncoding is the code page used for FAT short names.
	// Defaults to code page 437.
	OEMEncoding *charmap.Charmap
	// Location is the timezone applied when decoding on-disk timestamps.
	// Defaults to UTC.
	Location *time.Location
	// SkipChecks relaxes boot sector validation. This may allow mounting
	// not perfectly standard images. Use with caution.
	SkipChecks bool
}

// WithDefaults fills unset fields with their documented defaults.
func (o Options) WithDefaults() Options {
	if o.OEMEncoding == nil {
		o.OEMEncoding = charmap.CodePage437
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}
