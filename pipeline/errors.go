package pipeline

import (
	"errors"
	"fmt"

	"github.com/krau/headpose/infer"
)

var ErrNoImages = errors.New("missing input images, try --help for usage")

type Stage int

const (
	StageModel Stage = iota
	StageLoad
	StageRun
	StageDetect
	StageDecode
)

// StageError records which step of the pipeline failed. Its message is
// what the command line prints before exiting.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	switch e.Stage {
	case StageModel:
		return fmt.Sprintf("failed to load model: %s", infer.Strerror(e.Err))
	case StageLoad:
		return fmt.Sprintf("failed to load %s: %s", e.Path, infer.Strerror(e.Err))
	case StageRun:
		return fmt.Sprintf("failed to run model: %s", infer.Strerror(e.Err))
	case StageDetect:
		return fmt.Sprintf("face detection decode failed: %s", infer.Strerror(e.Err))
	default:
		return fmt.Sprintf("head pose decode failed: %s", infer.Strerror(e.Err))
	}
}

func (e *StageError) Unwrap() error { return e.Err }
