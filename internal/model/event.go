package model

import (
	"time"
)

// Stage is the lifecycle stage recorded by an import event.
type Stage string

const (
	StageSubmitted     Stage = "submitted"
	StageStarted       Stage = "started"
	StagePreprocessing Stage = "preprocessing"
	StageImported      Stage = "imported"
	StageFailed        Stage = "failed"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsValid checks whether the stage is a known value.
func (s Stage) IsValid() bool {
	switch s {
	case StageSubmitted, StageStarted, StagePreprocessing, StageImported, StageFailed:
		return true
	}
	return false
}

// Terminal reports whether the stage ends an order's lifecycle.
// No further processing happens for an order once a terminal event exists.
func (s Stage) Terminal() bool {
	return s == StageImported || s == StageFailed
}

// Preprocessing holds the optional container preprocessing parameters
// attached to a submitted order. Stored as JSONB on the event row.
type Preprocessing struct {
	Container       string            `json:"container"`
	InputFile       string            `json:"inputfile"`
	OutputFolder    string            `json:"outputfolder"`
	AltOutputFolder string            `json:"altoutputfolder,omitempty"`
	Kwargs          map[string]string `json:"kwargs,omitempty"`
}

// Event is one immutable row of the import event log. Rows are only ever
// appended; an order's current status is the latest event sharing its UUID.
type Event struct {
	ID            int64          `json:"id"`
	Group         string         `json:"group"`
	GroupID       int64          `json:"group_id"`
	Username      string         `json:"username"`
	DestinationID string         `json:"destination_id"`
	Stage         Stage          `json:"stage"`
	UUID          string         `json:"uuid"`
	CreatedAt     time.Time      `json:"created_at"`
	Files         []string       `json:"files"`
	FileNames     []string       `json:"file_names"`
	Preprocessing *Preprocessing `json:"preprocessing,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Next returns a new unsaved event for the same order at the given stage,
// copying the descriptive fields. The original event is never modified.
func (e *Event) Next(stage Stage) *Event {
	return &Event{
		Group:         e.Group,
		GroupID:       e.GroupID,
		Username:      e.Username,
		DestinationID: e.DestinationID,
		Stage:         stage,
		UUID:          e.UUID,
		Files:         append([]string(nil), e.Files...),
		FileNames:     append([]string(nil), e.FileNames...),
		Preprocessing: e.Preprocessing,
	}
}
