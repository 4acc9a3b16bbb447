package core

import (
	"errors"
	"testing"
)

func TestEncodeLine(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		entryType EntryType
		want      string
	}{
		{"put", "name", "Likitha", EntryTypePut, "name=Likitha\n"},
		{"empty_value", "k", "", EntryTypePut, "k=\n"},
		{"delete", "k", "", EntryTypeDelete, "k=__TOMBSTONE__\n"},
		{"delete_ignores_value", "k", "whatever", EntryTypeDelete, "k=__TOMBSTONE__\n"},
		{"value_with_equals", "k", "a=b=c", EntryTypePut, "k=a=b=c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeLine(tt.key, tt.value, tt.entryType); got != tt.want {
				t.Errorf("EncodeLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Entry
		wantErr bool
	}{
		{"put", "name=Likitha", Entry{Key: "name", Value: "Likitha", Type: EntryTypePut}, false},
		{"empty_value", "k=", Entry{Key: "k", Type: EntryTypePut}, false},
		{"tombstone", "k=__TOMBSTONE__", Entry{Key: "k", Type: EntryTypeDelete}, false},
		{"splits_on_first_equals", "k=a=b=c", Entry{Key: "k", Value: "a=b=c", Type: EntryTypePut}, false},
		{"no_separator", "garbage", Entry{}, true},
		{"empty_line", "", Entry{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrCorruptLine) {
					t.Errorf("DecodeLine() error = %v, want ErrCorruptLine", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("DecodeLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTombstoneRoundTrip(t *testing.T) {
	// A key equal to the marker is legal; only values are reserved.
	line := EncodeLine(TombstoneMarker, "v", EntryTypePut)
	entry, err := DecodeLine(line[:len(line)-1])
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if entry.Key != TombstoneMarker || entry.Type != EntryTypePut {
		t.Errorf("marker key did not round-trip: %+v", entry)
	}
}
