package submission

// Stage is a pipeline lifecycle state.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageParsing     Stage = "parsing"
	StageDownloading Stage = "downloading"
	StageUploading   Stage = "uploading"
	StageVideoReady  Stage = "video_ready"
	StageAnalyzing   Stage = "analyzing"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

var allStages = []Stage{
	StageIdle,
	StageParsing,
	StageDownloading,
	StageUploading,
	StageVideoReady,
	StageAnalyzing,
	StageCompleted,
	StageError,
}

var stageRank = func() map[Stage]int {
	ranks := make(map[Stage]int, len(allStages))
	for i, s := range allStages {
		ranks[s] = i
	}
	return ranks
}()

// AllStages returns the stages in pipeline order.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// CanTransition reports whether a submission at from may move to to.
// Stages only move forward; error is reachable from any non-terminal stage
// and staying in the same stage is allowed for progress updates.
func CanTransition(from, to Stage) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	if from == to || to == StageError {
		return true
	}
	return stageRank[to] > stageRank[from]
}
