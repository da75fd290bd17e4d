package archivetype

// ProgressStage is the phase an operation is in when it reports progress.
type ProgressStage uint8

// Stages, in the order Create passes through them. StageExtracting is
// reported only by the copy operations.
const (
	StageEnumerating ProgressStage = iota
	StageCompressing
	StageFinalizing
	StageExtracting
)

var stageNames = [...]string{
	StageEnumerating: "enumerating",
	StageCompressing: "compressing",
	StageFinalizing:  "finalizing",
	StageExtracting:  "extracting",
}

func (s ProgressStage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// ProgressEvent is a snapshot of an operation's progress.
//
// FilesTotal is zero while the total is not yet known, which is the case
// for every event of StageEnumerating. BytesDone counts original
// (uncompressed) bytes.
type ProgressEvent struct {
	Stage      ProgressStage
	Path       string
	BytesDone  uint64
	FilesDone  int
	FilesTotal int
}

// ProgressFunc receives progress events. It may be called from several
// goroutines at once.
type ProgressFunc func(ProgressEvent)
