package models

import "time"

// AnalysisState is the lifecycle of the live analysis request.
type AnalysisState int

const (
	AnalysisIdle AnalysisState = iota
	AnalysisLoading
	AnalysisRetrying
	AnalysisReady
	AnalysisError
)

func (s AnalysisState) String() string {
	switch s {
	case AnalysisLoading:
		return "loading"
	case AnalysisRetrying:
		return "retrying"
	case AnalysisReady:
		return "ready"
	case AnalysisError:
		return "error"
	default:
		return "idle"
	}
}

// AnalysisStatus is shown in the analysis panel's status line.
type AnalysisStatus struct {
	State   AnalysisState
	Message string
	Attempt int
	RetryIn time.Duration
}

// PlaybackState is the audio synchronizer's externally visible state.
// WordIndex is -1 when no word is highlighted.
type PlaybackState struct {
	Playing     bool
	WordIndex   int
	Unavailable bool
}

// RecordingState is the recording service's externally visible state.
type RecordingState struct {
	Recording bool
	Uploading bool
	Message   string
}

// CacheOutcome is the result of an analysis cache lookup.
type CacheOutcome int

const (
	CacheMiss CacheOutcome = iota
	CacheHit
	// CacheCorrupt means an entry existed but failed to decode; it has been removed.
	CacheCorrupt
)

func (o CacheOutcome) String() string {
	switch o {
	case CacheHit:
		return "hit"
	case CacheCorrupt:
		return "corrupt"
	default:
		return "miss"
	}
}
