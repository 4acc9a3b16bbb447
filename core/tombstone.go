package core

// TombstoneMarker is the reserved value written to the WAL and to SSTables
// in place of a real value when a key has been deleted. A key holding this
// marker shadows any older live value for the same key until a full
// compaction removes both.
//
// Keys equal to the marker are legal; caller values equal to the marker are
// rejected by the engine, since they would be indistinguishable from a
// deletion on disk.
const TombstoneMarker = "__TOMBSTONE__"

// IsTombstone reports whether a raw stored value is the tombstone marker.
func IsTombstone(value string) bool {
	return value == TombstoneMarker
}
