// Package pipeline carries progress events and stage timings of a merge run.
package pipeline

import "time"

// Stage describes a high-level phase of a merge run.
type Stage string

const (
	// StageDiscover is shard discovery.
	StageDiscover Stage = "discover"
	// StageLoad is reading and decoding one shard.
	StageLoad Stage = "load"
	// StageMerge is folding decoded records into a worker table.
	StageMerge Stage = "merge"
	// StageReduce is combining worker tables into the global table.
	StageReduce Stage = "reduce"
	// StageReport is deriving exports and violations.
	StageReport Stage = "report"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the shard is waiting to be picked up.
	StatusQueued Status = "queued"
	// StatusWorking indicates the stage is in progress.
	StatusWorking Status = "working"
	// StatusDone indicates the stage finished.
	StatusDone Status = "done"
	// StatusError indicates the stage failed.
	StatusError Status = "error"
)

// Event reports progress for a shard (or for the whole run when File is empty).
// Remaining is the number of shards still waiting in the queue when the
// event was produced.
type Event struct {
	File      string
	Stage     Stage
	Status    Status
	Err       error
	Elapsed   time.Duration
	Remaining int
	Total     int
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations. Load and merge durations are summed over
// all shards, so with several workers they exceed wall-clock time.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Add accumulates a duration for the given stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] += dur
}

// Merge adds every stage duration of other.
func (t *Timings) Merge(other Timings) {
	for stage, dur := range other.stages {
		t.Add(stage, dur)
	}
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}
