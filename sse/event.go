package sse

import (
	"encoding/json"

	"github.com/kbukum/tilekit/task"
)

// SSE event types.
const (
	EventTypeConnected = "connected"
	EventTypeProgress  = "progress"
	EventTypeDone      = "done"
)

// ProgressEvent is one run progress record as sent to clients.
type ProgressEvent struct {
	RunID     string `json:"run_id"`
	Task      string `json:"task"`
	Tile      string `json:"tile,omitempty"`
	Processed bool   `json:"processed"`
	Written   bool   `json:"written"`
	Count     int    `json:"count"`
	Total     int    `json:"total"`
}

// Progress builds the event for one task record.
func Progress(runID string, info task.Info, count, total int) ProgressEvent {
	e := ProgressEvent{
		RunID:     runID,
		Task:      info.Task,
		Processed: info.Processed,
		Written:   info.Written,
		Count:     count,
		Total:     total,
	}
	if info.Tile != nil {
		e.Tile = info.Tile.ID()
	}
	return e
}

func (e ProgressEvent) marshal() []byte {
	data, _ := json.Marshal(e)
	return data
}

// DoneEvent closes out a run on the stream.
type DoneEvent struct {
	RunID     string `json:"run_id"`
	Count     int    `json:"count"`
	Total     int    `json:"total"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Done builds the terminal event for a run.
func Done(runID string, count, total int, cancelled bool, err error) DoneEvent {
	e := DoneEvent{RunID: runID, Count: count, Total: total, Cancelled: cancelled}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e DoneEvent) marshal() []byte {
	data, _ := json.Marshal(e)
	return data
}
