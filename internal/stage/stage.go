package stage

import (
	"context"
	"log/slog"
	"time"

	"CurateAI/internal/config"
	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// FailurePolicy declares how the coordinator treats a stage failure.
type FailurePolicy int

const (
	// Fatal aborts the run; nothing downstream is meaningful.
	Fatal FailurePolicy = iota
	// Skippable logs the failure and lets the run continue as partial.
	Skippable
	// FatalIfEmptyOutput aborts only when the stage produced nothing
	// despite having non-empty input.
	FatalIfEmptyOutput
)

// RunContext carries per-run context into a stage. Stages are stateless:
// everything they need arrives here or in the State.
type RunContext struct {
	Run     *domain.Run
	Options config.Options
	Now     time.Time
	Logger  *slog.Logger
}

// State is the typed pipeline state threaded between stages. Each stage
// reads the fields its predecessors filled and writes its own.
type State struct {
	Topics   []domain.TopicCandidate
	Scored   []domain.ScoredTopic
	Filtered []domain.ScoredTopic
	Angles   []domain.Angle
	Accepted []domain.Angle
}

// Stage is one pure, stateless phase of the pipeline. Execute returns
// the batch of records it declares for persistence; the coordinator
// commits the batch, never the stage itself.
type Stage interface {
	Name() string

	// After lists the stages that must be completed before this one runs.
	After() []string

	Policy() FailurePolicy

	// ValidateInput and ValidateOutput check the slice of State this
	// stage consumes and produces against its declared schema. A
	// violation is a *domain.ValidationError naming the field.
	ValidateInput(s *State) error
	ValidateOutput(s *State) error

	Execute(ctx context.Context, rc RunContext, s *State) (ports.Batch, error)
}

func debugLog(rc RunContext, msg string, args ...any) {
	if rc.Logger != nil {
		rc.Logger.Debug(msg, args...)
	}
}

func warnLog(rc RunContext, msg string, args ...any) {
	if rc.Logger != nil {
		rc.Logger.Warn(msg, args...)
	}
}
