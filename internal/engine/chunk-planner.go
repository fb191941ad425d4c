package engine

// Range is an inclusive byte range. The empty range is {0, -1}.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Size() int64 {
	return r.End - r.Start + 1
}

// Plan splits size bytes into contiguous ranges, one per thread unless that
// would make chunks smaller than minChunk.
func Plan(size int64, threads int, minChunk int64) []Range {
	if size <= 0 {
		return []Range{{Start: 0, End: -1}}
	}
	if threads < 1 {
		threads = 1
	}
	if minChunk < 1 {
		minChunk = 1
	}
	count := int64(threads)
	if size/count < minChunk {
		count = max(1, size/minChunk)
	}
	chunkSize := size / count
	ranges := make([]Range, count)
	for i := range count {
		startByte := i * chunkSize
		endByte := startByte + chunkSize - 1
		if i == count-1 {
			endByte = size - 1
		}
		ranges[i] = Range{Start: startByte, End: endByte}
	}
	return ranges
}
