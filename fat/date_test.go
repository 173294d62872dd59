package fat

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "the DOS epoch",
			input: 1<<5 | 1,
			want:  time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "a normal date",
			input: (2020-1980)<<9 | 6<<5 | 15,
			want:  time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "zero day is unspecified",
			input: 6 << 5,
			want:  time.Time{},
		},
		{
			name:  "zero month is unspecified",
			input: 15,
			want:  time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseDate(%#x) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input uint16
		want  time.Time
	}{
		{
			name:  "midnight",
			input: 0,
			want:  time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "two second resolution",
			input: 13<<11 | 37<<5 | 21,
			want:  time.Date(1, 1, 1, 13, 37, 42, 0, time.UTC),
		},
		{
			name:  "end of day",
			input: 23<<11 | 59<<5 | 29,
			want:  time.Date(1, 1, 1, 23, 59, 58, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseTime(%#x) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// FAT stores two second granularity, so use an even second.
	stamp := time.Date(2021, 11, 5, 8, 30, 14, 0, time.UTC)

	date := EncodeDate(stamp)
	clock := EncodeTime(stamp)

	got := ParseDateTime(date, clock, 0, time.UTC)
	if !got.Equal(stamp) {
		t.Errorf("round trip = %v, want %v", got, stamp)
	}
}

func TestEncodeTenths(t *testing.T) {
	stamp := time.Date(2021, 1, 1, 0, 0, 1, 500e6, time.UTC)
	// One odd second plus 500ms is 150 hundredths.
	if got := EncodeTenths(stamp); got != 150 {
		t.Errorf("EncodeTenths = %d, want 150", got)
	}
}

func TestEncodeDateClamping(t *testing.T) {
	before := time.Date(1975, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseDate(EncodeDate(before)); !got.Equal(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("dates before the epoch should clamp to it, got %v", got)
	}
	if got := EncodeDate(time.Time{}); got != 0 {
		t.Errorf("EncodeDate(zero) = %d, want 0", got)
	}
}
