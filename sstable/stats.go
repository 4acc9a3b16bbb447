package sstable

import "fmt"

// CompressionStats summarizes how much of the directory's SSTable data is
// gzip-compressed.
type CompressionStats struct {
	TotalFiles      int
	CompressedFiles int
	TotalBytes      int64
	CompressedBytes int64
}

// Ratio returns the compressed share of the total bytes as a percentage.
func (cs CompressionStats) Ratio() float64 {
	if cs.TotalBytes == 0 {
		return 0
	}
	return float64(cs.CompressedBytes) / float64(cs.TotalBytes) * 100
}

func (cs CompressionStats) String() string {
	return fmt.Sprintf("CompressionStats{files=%d/%d compressed, size=%.1f KB/%.1f KB (%.1f%% compressed)}",
		cs.CompressedFiles, cs.TotalFiles,
		float64(cs.CompressedBytes)/1024, float64(cs.TotalBytes)/1024, cs.Ratio())
}

// CompressionStats totals the SSTable files currently on disk.
func (s *Store) CompressionStats() (CompressionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return CompressionStats{}, err
	}
	var cs CompressionStats
	for _, f := range files {
		cs.TotalFiles++
		cs.TotalBytes += f.size
		if f.compressed() {
			cs.CompressedFiles++
			cs.CompressedBytes += f.size
		}
	}
	return cs, nil
}
