package ntfs

import (
	"errors"
	"testing"

	"github.com/aligator/discfs"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeRunlist(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []Extent
		wantErr bool
	}{
		{
			name: "single positive run",
			// 8 clusters at LCN 4.
			data: []byte{0x11, 0x08, 0x04, 0x00},
			want: []Extent{{VCN: 0, Length: 8, LCN: 4}},
		},
		{
			name: "two runs with positive deltas",
			data: []byte{0x11, 0x02, 0x10, 0x11, 0x03, 0x20, 0x00},
			want: []Extent{
				{VCN: 0, Length: 2, LCN: 0x10},
				{VCN: 2, Length: 3, LCN: 0x30},
			},
		},
		{
			name: "negative delta",
			// Second run jumps backwards by 0x10.
			data: []byte{0x11, 0x02, 0x20, 0x11, 0x01, 0xF0, 0x00},
			want: []Extent{
				{VCN: 0, Length: 2, LCN: 0x20},
				{VCN: 2, Length: 1, LCN: 0x10},
			},
		},
		{
			name: "sparse run in the middle",
			data: []byte{0x11, 0x02, 0x08, 0x01, 0x04, 0x11, 0x02, 0x01, 0x00},
			want: []Extent{
				{VCN: 0, Length: 2, LCN: 8},
				{VCN: 2, Length: 4, Sparse: true},
				{VCN: 6, Length: 2, LCN: 9},
			},
		},
		{
			name: "two byte length",
			data: []byte{0x12, 0x00, 0x01, 0x05, 0x00},
			want: []Extent{{VCN: 0, Length: 256, LCN: 5}},
		},
		{
			name:    "zero length run is corrupt",
			data:    []byte{0x11, 0x00, 0x04, 0x00},
			wantErr: true,
		},
		{
			name:    "run header past the buffer is corrupt",
			data:    []byte{0x44, 0x01},
			wantErr: true,
		},
		{
			name:    "negative absolute LCN is corrupt",
			data:    []byte{0x11, 0x02, 0xF0, 0x00},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRunlist(tt.data, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeRunlist error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, discfs.ErrCorrupt) {
					t.Errorf("error = %v, want ErrCorrupt", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtentsClusters(t *testing.T) {
	runs := []Extent{
		{Length: 2, LCN: 8},
		{Length: 4, Sparse: true},
		{Length: 2, LCN: 9},
	}
	if got := extentsClusters(runs); got != 8 {
		t.Errorf("extentsClusters = %d, want 8", got)
	}
}
