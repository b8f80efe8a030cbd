// Package screening coordinates runs of the external condition-search program.
//
// A run flows through four pieces: the Gate admits at most one run at a time,
// a runner.Runner executes the program, Extract turns its stdout into a
// Result, and the Cache keeps the last good Result (also persisted to disk).
// The Scheduler triggers runs on a fixed interval and the Service ties
// everything together for callers.
package screening

import (
	"time"
)

// Trigger identifies who asked for a run.
type Trigger string

// Run triggers.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerBootstrap Trigger = "bootstrap"
)

// Item is one stock that matched the screening condition.
type Item struct {
	Code  string   `json:"code"`
	Name  string   `json:"name"`
	Price *float64 `json:"price,omitempty"`
}

// Result is the structured outcome of a successful run.
// Count always equals len(Items) and Items keep the order the program printed.
type Result struct {
	ConditionName string    `json:"condition_name"`
	Count         int       `json:"count"`
	Items         []Item    `json:"result"`
	RetrievedAt   time.Time `json:"retrievedAt"`
}

// Run describes one admitted invocation of the screening program.
type Run struct {
	ID         string
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt *time.Time
	ExitCode   *int
	Stdout     string
	Stderr     string
}

// Status is a point-in-time snapshot of the screening state.
type Status struct {
	IsRunning       bool          `json:"isRunning"`
	LastError       string        `json:"lastError,omitempty"`
	LastErrorAt     *time.Time    `json:"lastErrorAt,omitempty"`
	LastResult      *Result       `json:"-"`
	LastUpdate      *time.Time    `json:"lastUpdate"`
	SchedulerActive bool          `json:"schedulerActive"`
	LastRunAt       *time.Time    `json:"lastRunAt,omitempty"`
	LastDuration    time.Duration `json:"-"`
}
