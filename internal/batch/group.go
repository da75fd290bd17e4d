package batch

// rangeGroup is a run of entries that are contiguous in the blob and can be
// fetched with one range read.
type rangeGroup struct {
	start   uint64
	end     uint64
	entries []*Entry
}

// groupAdjacentEntries splits entries, which must be sorted by offset and
// non-empty, into contiguous runs. A run is closed when the next entry does
// not start at its end or when adding it would exceed maxGroupBytes
// (0 = unbounded).
func groupAdjacentEntries(entries []*Entry, maxGroupBytes uint64) []rangeGroup {
	groups := make([]rangeGroup, 0, len(entries))
	current := rangeGroup{
		start:   entries[0].Offset,
		end:     entries[0].Offset + entries[0].CompressedSize,
		entries: []*Entry{entries[0]},
	}

	for _, entry := range entries[1:] {
		entryEnd := entry.Offset + entry.CompressedSize
		fits := maxGroupBytes == 0 || entryEnd-current.start <= maxGroupBytes
		if entry.Offset == current.end && fits {
			current.end = entryEnd
			current.entries = append(current.entries, entry)
			continue
		}
		groups = append(groups, current)
		current = rangeGroup{
			start:   entry.Offset,
			end:     entryEnd,
			entries: []*Entry{entry},
		}
	}
	return append(groups, current)
}
