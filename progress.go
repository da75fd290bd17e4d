package s4a

import "github.com/meigma/s4a/internal/archivetype"

// Re-export progress types from internal/archivetype.
type (
	// ProgressEvent represents a progress update during creation or extraction.
	ProgressEvent = archivetype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = archivetype.ProgressStage

	// ProgressFunc receives progress updates.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = archivetype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageEnumerating indicates the input tree is being walked.
	StageEnumerating = archivetype.StageEnumerating

	// StageCompressing indicates files are being compressed and written.
	StageCompressing = archivetype.StageCompressing

	// StageFinalizing indicates the index is being committed.
	StageFinalizing = archivetype.StageFinalizing

	// StageExtracting indicates files are being extracted.
	StageExtracting = archivetype.StageExtracting
)
