// Package pellet is an embedded, single-process, file-backed key–value
// store organized as a log-structured merge tree.
//
// Writes land in a write-ahead log and an in-memory memtable; full
// memtables rotate into an immutable queue and are flushed to sorted
// on-disk SSTable files by a background worker. Reads merge all layers,
// newest first, with per-file Bloom filters cutting unnecessary scans.
// Compaction folds the SSTables into a single gzip-compressed table,
// dropping shadowed entries and deleted keys.
//
// Example usage:
//
//	db, err := pellet.Open("/path/to/data", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Put("name", "value"); err != nil {
//		log.Printf("put failed: %v", err)
//	}
//
//	value, found, err := db.Get("name")
//	if err == nil && found {
//		fmt.Println(value)
//	}
//
//	if err := db.Delete("name"); err != nil {
//		log.Printf("delete failed: %v", err)
//	}
//
// A data directory is owned by exactly one DB instance at a time; sharing
// it across processes is undefined behaviour.
package pellet
