package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageTranscription  Stage = "transcription"
	StageSpeechAnalysis Stage = "speech_analysis"
	StageAudioAnalysis  Stage = "audio_analysis"
)

// ErrStageTimeout is wrapped by a [StageError] whose stage exceeded the
// limit set with [WithStageTimeout].
var ErrStageTimeout = errors.New("stage timed out")

// StageError reports which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage that produced err, if err wraps a
// [StageError].
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
