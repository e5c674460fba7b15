package companion

import (
	"errors"
	"fmt"
)

// Stage identifies the save step that failed.
type Stage string

const (
	StageFaceUpload    Stage = "face_upload"
	StageBodyUpload    Stage = "body_upload"
	StageDocumentWrite Stage = "document_write"
)

var ErrInvalidInput = errors.New("companion: invalid input")

// PersistenceError reports a failed save and the step it failed in, so the
// caller can retry precisely.
type PersistenceError struct {
	Stage Stage
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("companion: %s failed: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
