package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"CurateAI/internal/config"
	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
	"CurateAI/internal/stage"
)

// ErrStageSkipped marks a stage-level failure the run survived. The run
// finishes partial instead of failed.
var ErrStageSkipped = errors.New("stage skipped")

// CoordinatorDeps wires all driven adapters into the run coordinator.
type CoordinatorDeps struct {
	Store    ports.RunStore
	Index    ports.AngleIndex
	Notifier ports.Notifier
	Stages   []stage.Stage
	Options  config.Options
	Channel  string
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Coordinator owns the run lifecycle: it creates the run record, drives
// the stage sequence in order, persists each stage's batch, and finishes
// with brief assembly and delivery. Stages stay pure; every side effect
// funnels through here.
type Coordinator struct {
	store    ports.RunStore
	index    ports.AngleIndex
	notifier ports.Notifier
	stages   []stage.Stage
	options  config.Options
	channel  string
	logger   *slog.Logger
	clock    func() time.Time
}

// NewCoordinator constructs the orchestration component.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		store:    deps.Store,
		index:    deps.Index,
		notifier: deps.Notifier,
		stages:   deps.Stages,
		options:  deps.Options,
		channel:  deps.Channel,
		logger:   logger,
		clock:    clock,
	}
}

// StartRun validates the effective options, fingerprints them, and
// creates the pending run record. No run record exists when validation
// fails.
func (c *Coordinator) StartRun(ctx context.Context, dryRun bool) (*domain.Run, error) {
	if err := c.options.Validate(); err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:                uuid.NewString(),
		ConfigFingerprint: c.options.Fingerprint(),
		Status:            domain.RunPending,
		StartedAt:         c.clock(),
		DryRun:            dryRun,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	c.logger.Info("run started",
		"run", run.ID, "fingerprint", run.ConfigFingerprint, "dry_run", dryRun)
	return run, nil
}

// Execute performs one full pipeline run end to end.
func (c *Coordinator) Execute(ctx context.Context, dryRun bool) (*domain.Run, error) {
	run, err := c.StartRun(ctx, dryRun)
	if err != nil {
		return nil, err
	}

	st := &stage.State{}
	partial := false

	for _, stg := range c.stages {
		if err := c.ExecuteStage(ctx, run, stg, st); err != nil {
			if errors.Is(err, ErrStageSkipped) {
				partial = true
				continue
			}
			return run, err
		}

		if exhausted, reason := pipelineExhausted(stg.Name(), st); exhausted {
			c.logger.Info("run finished early", "run", run.ID, "reason", reason)
			break
		}
	}

	// Angles are never written after the run turns terminal: selection
	// and index updates land first, delivery alone happens afterwards.
	c.indexAccepted(ctx, run, st)

	brief := c.assembleBrief(run, st)
	if err := c.persistSelection(ctx, run, brief); err != nil {
		_ = c.FinalizeRun(ctx, run, domain.RunFailed, err)
		return run, err
	}

	status := domain.RunSucceeded
	if partial {
		status = domain.RunPartial
	}
	if err := c.FinalizeRun(ctx, run, status, nil); err != nil {
		return run, err
	}

	if err := c.deliver(ctx, run, brief); err != nil {
		return run, err
	}

	c.logger.Info("run finished", "run", run.ID, "status", run.Status,
		"topics", len(st.Topics), "angles", len(st.Angles), "accepted", len(st.Accepted))
	return run, nil
}

// ExecuteStage runs a single stage against the shared state. Sequence
// violations and fatal stage failures finalize the run as failed; a
// stage-level failure of a skippable stage is recorded as a rejected
// item, returns ErrStageSkipped, and leaves the run alive.
func (c *Coordinator) ExecuteStage(ctx context.Context, run *domain.Run, stg stage.Stage, st *stage.State) error {
	err := c.runStage(ctx, run, stg, st)
	if err == nil {
		return nil
	}

	if stg.Policy() == stage.Skippable && !alwaysFatal(err) {
		c.logger.Warn("stage failed, run continues without it",
			"run", run.ID, "stage", stg.Name(), "error", err)
		rejection := domain.RejectedItem{
			ID:         uuid.NewString(),
			RunID:      run.ID,
			ItemType:   "stage",
			ItemID:     stg.Name(),
			Reason:     err.Error(),
			Stage:      stg.Name(),
			RejectedAt: c.clock(),
		}
		if aErr := c.store.Apply(ctx, run.ID, ports.Batch{Rejections: []domain.RejectedItem{rejection}}); aErr != nil {
			_ = c.FinalizeRun(ctx, run, domain.RunFailed, aErr)
			return aErr
		}
		run.CompletedStages = append(run.CompletedStages, stg.Name())
		if uErr := c.store.UpdateRun(ctx, run); uErr != nil {
			_ = c.FinalizeRun(ctx, run, domain.RunFailed, uErr)
			return uErr
		}
		return fmt.Errorf("%w: %s: %v", ErrStageSkipped, stg.Name(), err)
	}

	_ = c.FinalizeRun(ctx, run, domain.RunFailed, err)
	return err
}

func (c *Coordinator) runStage(ctx context.Context, run *domain.Run, stg stage.Stage, st *stage.State) error {
	if run.Status.Terminal() {
		return &domain.SequenceError{Stage: stg.Name(), Missing: "a non-terminal run"}
	}
	for _, dep := range stg.After() {
		if !run.StageCompleted(dep) {
			return &domain.SequenceError{Stage: stg.Name(), Missing: dep}
		}
	}

	if err := stg.ValidateInput(st); err != nil {
		return err
	}

	rc := stage.RunContext{
		Run:     run,
		Options: c.options,
		Now:     c.clock(),
		Logger:  c.logger.With("stage", stg.Name()),
	}

	batch, execErr := stg.Execute(ctx, rc, st)
	if !batch.Empty() {
		if err := c.store.Apply(ctx, run.ID, batch); err != nil {
			return err
		}
	}
	if execErr != nil {
		return execErr
	}

	if err := stg.ValidateOutput(st); err != nil {
		return err
	}

	run.Status = domain.RunRunning
	run.CompletedStages = append(run.CompletedStages, stg.Name())
	return c.store.UpdateRun(ctx, run)
}

// FinalizeRun moves the run into a terminal status exactly once. A
// second call is a no-op.
func (c *Coordinator) FinalizeRun(ctx context.Context, run *domain.Run, status domain.RunStatus, cause error) error {
	if run.Status.Terminal() {
		return nil
	}

	run.Status = status
	run.CompletedAt = c.clock()
	if cause != nil {
		run.ErrorMessage = cause.Error()
	}
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	return nil
}

// indexAccepted makes accepted angles visible to future dedup queries.
// Dry runs skip indexing so rehearsals never pollute history. Angles
// that passed through unclassified carry no embedding and are skipped.
func (c *Coordinator) indexAccepted(ctx context.Context, run *domain.Run, st *stage.State) {
	if c.index == nil || run.DryRun {
		return
	}

	for _, angle := range st.Accepted {
		if len(angle.Embedding) == 0 {
			continue
		}
		if err := c.index.Add(ctx, angle); err != nil {
			c.logger.Warn("vector index add failed", "run", run.ID, "angle", angle.ID, "error", err)
		}
	}
}

// assembleBrief ranks accepted angles by confidence (stable, so earlier
// discovery wins ties) and caps the digest at the configured size.
func (c *Coordinator) assembleBrief(run *domain.Run, st *stage.State) domain.Brief {
	angles := make([]domain.Angle, len(st.Accepted))
	copy(angles, st.Accepted)

	sort.SliceStable(angles, func(i, j int) bool {
		return angles[i].Confidence > angles[j].Confidence
	})
	if len(angles) > c.options.MaxBriefAngles {
		angles = angles[:c.options.MaxBriefAngles]
	}
	for i := range angles {
		angles[i].Selected = true
	}

	return domain.Brief{
		RunID:            run.ID,
		GeneratedAt:      c.clock(),
		Angles:           angles,
		TopicsConsidered: len(st.Topics),
		TopicsFiltered:   len(st.Filtered),
		AnglesGenerated:  len(st.Angles),
	}
}

func (c *Coordinator) persistSelection(ctx context.Context, run *domain.Run, brief domain.Brief) error {
	if brief.Empty() {
		return nil
	}
	return c.store.Apply(ctx, run.ID, ports.Batch{Angles: brief.Angles})
}

// deliver sends the brief at most once per run. A prior successful
// delivery makes this a no-op; a prior failure allows a retry.
func (c *Coordinator) deliver(ctx context.Context, run *domain.Run, brief domain.Brief) error {
	if c.notifier == nil || run.DryRun || brief.Empty() {
		c.logger.Info("delivery skipped",
			"run", run.ID, "dry_run", run.DryRun, "angles", len(brief.Angles))
		return nil
	}

	existing, err := c.store.Notification(ctx, run.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Success {
		c.logger.Info("brief already delivered", "run", run.ID, "record", existing.ID)
		return nil
	}

	deliverErr := c.notifier.Deliver(ctx, brief)

	record := domain.NotificationRecord{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		Channel:     c.channel,
		DeliveredAt: c.clock(),
		Success:     deliverErr == nil,
	}
	if deliverErr != nil {
		record.ErrorMessage = deliverErr.Error()
	}
	if err := c.store.SaveNotification(ctx, record); err != nil {
		return err
	}
	return deliverErr
}

// pipelineExhausted reports whether nothing survived the named stage,
// making the remaining stages pointless.
func pipelineExhausted(completed string, st *stage.State) (bool, string) {
	switch completed {
	case domain.StageScout:
		if len(st.Topics) == 0 {
			return true, "no new topics discovered"
		}
	case domain.StageRelevance:
		if len(st.Filtered) == 0 {
			return true, "no topics survived filtering"
		}
	}
	return false, ""
}

// alwaysFatal reports errors no failure policy can downgrade: broken
// persistence, schema violations, and sequence violations poison
// everything downstream.
func alwaysFatal(err error) bool {
	var (
		persistErr  *domain.PersistenceError
		validateErr *domain.ValidationError
		sequenceErr *domain.SequenceError
	)
	return errors.As(err, &persistErr) || errors.As(err, &validateErr) || errors.As(err, &sequenceErr)
}
