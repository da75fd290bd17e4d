package batch

// ProcessStats reports the outcome of a Process call.
type ProcessStats struct {
	// Processed is the number of entries written to the sink.
	Processed int

	// Skipped is the number of entries the sink declined.
	Skipped int

	// TotalBytes is the sum of OriginalSize over processed entries.
	TotalBytes uint64
}
