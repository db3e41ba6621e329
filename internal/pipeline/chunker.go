package pipeline

import "github.com/SamoM225/the-bible-translations/internal/domain"

// Chunk slices entries into batches of at most size, preserving order. No
// entry is dropped or duplicated and the last batch may be short. An empty
// input yields no batches. A non-positive size is treated as 1.
func Chunk(entries []domain.SourceEntry, size int) []domain.Batch {
	if size <= 0 {
		size = 1
	}
	if len(entries) == 0 {
		return nil
	}

	batches := make([]domain.Batch, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		batches = append(batches, domain.NewBatch(entries[start:end]))
	}
	return batches
}
