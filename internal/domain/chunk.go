package domain

// ChunkAssignment is one worker's contiguous byte range of one file.
type ChunkAssignment struct {
	FileIndex int   `json:"fileIndex"`
	Offset    int64 `json:"offset"`
	Length    int64 `json:"length"`
}

// PartitionFile splits size bytes into near-equal contiguous ranges, one per
// worker. The worker count is min(maxWorkers, ceil(size/minChunkBytes)) but
// at least one, so small files never fan out. The split depends only on
// (size, maxWorkers, minChunkBytes), which both peers take from the
// handshake, so sender and receiver always agree on the ranges.
//
// The returned ranges tile [0, size) exactly: the last range absorbs the
// division remainder. A zero-size file yields a single empty range.
func PartitionFile(fileIndex int, size int64, maxWorkers int, minChunkBytes int64) []ChunkAssignment {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if minChunkBytes < 1 {
		minChunkBytes = 1
	}

	workers := 1
	if size > 0 {
		byBudget := (size + minChunkBytes - 1) / minChunkBytes
		if byBudget > int64(maxWorkers) {
			byBudget = int64(maxWorkers)
		}
		if byBudget > 1 {
			workers = int(byBudget)
		}
	}

	per := size / int64(workers)
	assignments := make([]ChunkAssignment, 0, workers)
	for i := 0; i < workers; i++ {
		offset := int64(i) * per
		length := per
		if i == workers-1 {
			length = size - offset
		}
		assignments = append(assignments, ChunkAssignment{
			FileIndex: fileIndex,
			Offset:    offset,
			Length:    length,
		})
	}
	return assignments
}
