package domain

import (
	"slices"
	"time"
)

// RunStatus enumerates lifecycle states of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunPartial
}

// Canonical stage names in execution order.
const (
	StageScout      = "scout"
	StageRelevance  = "relevance"
	StageInsight    = "insight"
	StageEditor     = "editor"
	StageAsset      = "asset"
	StageRedundancy = "redundancy"
)

// StageOrder is the canonical sequence; a run's completed-stage list is
// always a prefix of it.
var StageOrder = []string{
	StageScout,
	StageRelevance,
	StageInsight,
	StageEditor,
	StageAsset,
	StageRedundancy,
}

// Run is one execution instance of the full stage sequence.
// Mutated only by the coordinator; immutable once Status is terminal.
type Run struct {
	ID                string
	ConfigFingerprint string
	Status            RunStatus
	StartedAt         time.Time
	CompletedAt       time.Time
	CompletedStages   []string
	ErrorMessage      string
	DryRun            bool
}

// StageCompleted reports whether the named stage finished in this run.
func (r *Run) StageCompleted(name string) bool {
	return slices.Contains(r.CompletedStages, name)
}
