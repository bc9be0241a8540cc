package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdEnqueueSearch CommandType = "enqueue_search"
	CmdTriggerNow    CommandType = "trigger_now"
	CmdPause         CommandType = "pause"
	CmdResume        CommandType = "resume"
)

// Command is a row in the command inbox polled by the scheduler.
type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Term       string   `json:"term,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}
