package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"CurateAI/internal/config"
	"CurateAI/internal/domain"
	"CurateAI/internal/infrastructure/embedding"
	"CurateAI/internal/infrastructure/storage"
	"CurateAI/internal/ports"
	"CurateAI/internal/redundancy"
	"CurateAI/internal/stage"
)

const goodSummary = "This paper presents a machine learning benchmark with accuracy improvements across production workloads."

var fixedNow = time.Date(2026, time.August, 23, 6, 0, 0, 0, time.UTC)

type fakeSource struct {
	topics []domain.TopicCandidate
	err    error
}

func (f *fakeSource) Discover(_ context.Context, _ time.Time) ([]domain.TopicCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.TopicCandidate, len(f.topics))
	copy(out, f.topics)
	return out, nil
}

type fakeIndex struct {
	mu         sync.Mutex
	neighbors  []ports.Neighbor
	added      []domain.Angle
	nearestErr error
}

func (f *fakeIndex) Add(_ context.Context, angle domain.Angle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, angle)
	return nil
}

func (f *fakeIndex) Nearest(_ context.Context, _ []float32, _ time.Time, _ int) ([]ports.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.Neighbor(nil), f.neighbors...), f.nearestErr
}

func (f *fakeIndex) addedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
	last  domain.Brief
}

func (f *fakeNotifier) Deliver(_ context.Context, brief domain.Brief) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = brief
	return f.err
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, &domain.EmbeddingServiceError{Err: errors.New("backend down")}
}

func (failingEmbedder) Dimensions() int { return 16 }

type offlineEmbedder struct{}

func (offlineEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}

func (offlineEmbedder) Dimensions() int { return 16 }

// selectionStatusStore records the run's status at the moment a batch
// carrying a selected angle is applied.
type selectionStatusStore struct {
	*storage.MemoryStore
	selectionStatuses []domain.RunStatus
}

func (s *selectionStatusStore) Apply(ctx context.Context, runID string, batch ports.Batch) error {
	for _, angle := range batch.Angles {
		if angle.Selected {
			run, _ := s.MemoryStore.Run(runID)
			s.selectionStatuses = append(s.selectionStatuses, run.Status)
			break
		}
	}
	return s.MemoryStore.Apply(ctx, runID, batch)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() config.Options {
	return config.Options{
		LLMModel:            "test-model",
		EmbeddingModel:      "hash-64",
		EmbeddingDimension:  64,
		SimilarityThreshold: 0.85,
		LookbackDays:        14,
		NearestK:            10,
		MaxBriefAngles:      5,
		Sources:             []string{"arxiv/cs.AI"},
	}
}

func newTopic(id, title, summary string) domain.TopicCandidate {
	return domain.TopicCandidate{
		ID:          id,
		Title:       title,
		URL:         "https://example.com/" + id,
		Summary:     summary,
		Source:      "arxiv/cs.AI",
		SourceType:  "research",
		PublishedAt: fixedNow.AddDate(0, 0, -1),
	}
}

func buildCoordinator(src ports.TopicSource, index ports.AngleIndex, embedder ports.Embedder, notifier ports.Notifier) (*Coordinator, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return coordinatorWithStore(store, src, index, embedder, notifier), store
}

func coordinatorWithStore(store ports.RunStore, src ports.TopicSource, index ports.AngleIndex, embedder ports.Embedder, notifier ports.Notifier) *Coordinator {
	opts := testOptions()
	engine := redundancy.NewEngine(embedder, index, opts, discardLogger())

	stages := []stage.Stage{
		stage.NewScout(src),
		stage.NewRelevance(nil),
		stage.NewInsight(nil),
		stage.NewEditor(),
		stage.NewAssetCurator(nil),
		stage.NewRedundancyChecker(engine),
	}

	return NewCoordinator(CoordinatorDeps{
		Store:    store,
		Index:    index,
		Notifier: notifier,
		Stages:   stages,
		Options:  opts,
		Channel:  "slack",
		Logger:   discardLogger(),
		Clock:    func() time.Time { return fixedNow },
	})
}

func assertStagePrefix(t *testing.T, completed []string) {
	t.Helper()
	if len(completed) > len(domain.StageOrder) {
		t.Fatalf("too many completed stages: %v", completed)
	}
	for i, name := range completed {
		if domain.StageOrder[i] != name {
			t.Fatalf("completed stages %v are not a prefix of %v", completed, domain.StageOrder)
		}
	}
}

func TestExecuteFullRunSucceeds(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
		newTopic("t2", "Distillation Improves LLM Inference", goodSummary),
		newTopic("t3", "A Neural Retrieval Benchmark", goodSummary),
		newTopic("t4", "Thin Entry", "Too short."),
		newTopic("t5", "Medieval Pottery Survey", "A study of medieval pottery techniques across southern Europe during the twelfth century."),
	}}
	index := &fakeIndex{}
	notifier := &fakeNotifier{}

	coordinator, store := buildCoordinator(src, index, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if run.Status != domain.RunSucceeded {
		t.Fatalf("expected succeeded, got %s", run.Status)
	}
	if len(run.CompletedStages) != len(domain.StageOrder) {
		t.Fatalf("expected all stages completed, got %v", run.CompletedStages)
	}
	assertStagePrefix(t, run.CompletedStages)

	stored, ok := store.Run(run.ID)
	if !ok {
		t.Fatal("run not persisted")
	}
	if stored.Status != domain.RunSucceeded || stored.CompletedAt.IsZero() {
		t.Fatalf("persisted run not finalized: %+v", stored)
	}
	if stored.ConfigFingerprint == "" {
		t.Fatal("run is missing its config fingerprint")
	}

	rejections := store.RejectionsByRun(run.ID)
	if len(rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(rejections))
	}
	reasons := map[string]bool{}
	for _, rejection := range rejections {
		reasons[rejection.Reason] = true
	}
	if !reasons[domain.ReasonThinContent] || !reasons[domain.ReasonOffTopic] {
		t.Fatalf("unexpected rejection reasons: %v", reasons)
	}

	angles := store.AnglesByRun(run.ID)
	if len(angles) != 3 {
		t.Fatalf("expected 3 angles, got %d", len(angles))
	}
	for _, angle := range angles {
		if angle.Status != domain.AngleAccepted {
			t.Fatalf("angle %s has status %s", angle.ID, angle.Status)
		}
		if !angle.Selected {
			t.Fatalf("angle %s should be selected in the brief", angle.ID)
		}
		if angle.Insight == "" {
			t.Fatalf("angle %s missing editor compression", angle.ID)
		}
	}

	if notifier.calls != 1 {
		t.Fatalf("expected exactly one delivery, got %d", notifier.calls)
	}
	if len(notifier.last.Angles) != 3 {
		t.Fatalf("expected 3 angles in brief, got %d", len(notifier.last.Angles))
	}
	if notifier.last.TopicsConsidered != 5 || notifier.last.TopicsFiltered != 3 {
		t.Fatalf("unexpected brief stats: %+v", notifier.last)
	}

	records := store.Notifications()
	if len(records) != 1 || !records[0].Success || records[0].Channel != "slack" {
		t.Fatalf("unexpected notification records: %+v", records)
	}

	if index.addedCount() != 3 {
		t.Fatalf("expected 3 indexed angles, got %d", index.addedCount())
	}
}

func TestDuplicateAngleRejected(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	index := &fakeIndex{neighbors: []ports.Neighbor{
		{AngleID: "prior", RunID: "prior-run", Similarity: 0.90, CreatedAt: fixedNow.AddDate(0, 0, -2)},
	}}
	notifier := &fakeNotifier{}

	coordinator, store := buildCoordinator(src, index, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunSucceeded {
		t.Fatalf("expected succeeded, got %s", run.Status)
	}

	angles := store.AnglesByRun(run.ID)
	if len(angles) != 1 || angles[0].Status != domain.AngleRejected {
		t.Fatalf("expected one rejected angle, got %+v", angles)
	}

	rejections := store.RejectionsByRun(run.ID)
	if len(rejections) != 1 || rejections[0].Reason != domain.ReasonRedundant {
		t.Fatalf("expected a redundant rejection, got %+v", rejections)
	}

	if notifier.calls != 0 {
		t.Fatalf("empty brief must not be delivered, got %d calls", notifier.calls)
	}
	if index.addedCount() != 0 {
		t.Fatal("rejected angle must not be indexed")
	}
}

func TestSimilarityThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		similarity float64
		duplicate  bool
	}{
		{"exactly at threshold", 0.85, true},
		{"just below threshold", 0.84, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{topics: []domain.TopicCandidate{
				newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
			}}
			index := &fakeIndex{neighbors: []ports.Neighbor{
				{AngleID: "prior", RunID: "prior-run", Similarity: tc.similarity, CreatedAt: fixedNow.AddDate(0, 0, -1)},
			}}

			coordinator, store := buildCoordinator(src, index, embedding.NewHashEmbedder(64), &fakeNotifier{})

			run, err := coordinator.Execute(context.Background(), false)
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}

			angles := store.AnglesByRun(run.ID)
			if len(angles) != 1 {
				t.Fatalf("expected 1 angle, got %d", len(angles))
			}

			if tc.duplicate {
				if angles[0].Status != domain.AngleRejected {
					t.Fatalf("expected rejected at threshold, got %s", angles[0].Status)
				}
				return
			}

			if angles[0].Status != domain.AngleAccepted {
				t.Fatalf("expected accepted below threshold, got %s", angles[0].Status)
			}
			wantNovelty := 1 - tc.similarity
			if math.Abs(angles[0].NoveltyScore-wantNovelty) > 1e-9 {
				t.Fatalf("expected novelty %v, got %v", wantNovelty, angles[0].NoveltyScore)
			}
		})
	}
}

func TestEmbeddingOutagePassesThrough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	index := &fakeIndex{}
	notifier := &fakeNotifier{}

	coordinator, store := buildCoordinator(src, index, failingEmbedder{}, notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunSucceeded {
		t.Fatalf("an embedding outage must not fail the run, got %s", run.Status)
	}

	angles := store.AnglesByRun(run.ID)
	if len(angles) != 1 || angles[0].Status != domain.AngleAccepted {
		t.Fatalf("expected one accepted pass-through angle, got %+v", angles)
	}
	if len(store.RejectionsByRun(run.ID)) != 0 {
		t.Fatal("pass-through must not record a rejection")
	}
	if notifier.calls != 1 {
		t.Fatalf("expected delivery of the pass-through angle, got %d calls", notifier.calls)
	}
	if index.addedCount() != 0 {
		t.Fatal("angles without embeddings must not be indexed")
	}
}

func TestWithinRunDuplicateRejected(t *testing.T) {
	t.Parallel()

	// Identical title and summary produce identical embeddings.
	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
		newTopic("t2", "Scaling Laws for Sparse Models", goodSummary),
	}}
	index := &fakeIndex{}

	coordinator, store := buildCoordinator(src, index, embedding.NewHashEmbedder(64), &fakeNotifier{})

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	angles := store.AnglesByRun(run.ID)
	if len(angles) != 2 {
		t.Fatalf("expected 2 angles, got %d", len(angles))
	}

	accepted, rejected := 0, 0
	for _, angle := range angles {
		switch angle.Status {
		case domain.AngleAccepted:
			accepted++
		case domain.AngleRejected:
			rejected++
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("expected 1 accepted and 1 rejected, got %d/%d", accepted, rejected)
	}
	if index.addedCount() != 1 {
		t.Fatalf("only the accepted angle may be indexed, got %d", index.addedCount())
	}
}

func TestOutOfOrderStageFailsRun(t *testing.T) {
	t.Parallel()

	coordinator, store := buildCoordinator(&fakeSource{}, &fakeIndex{}, embedding.NewHashEmbedder(64), &fakeNotifier{})

	ctx := context.Background()
	run, err := coordinator.StartRun(ctx, false)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}

	err = coordinator.ExecuteStage(ctx, run, stage.NewInsight(nil), &stage.State{})
	if err == nil {
		t.Fatal("expected a sequence error")
	}
	var seqErr *domain.SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected *domain.SequenceError, got %T (%v)", err, err)
	}
	if seqErr.Missing != domain.StageRelevance {
		t.Fatalf("expected missing stage %q, got %q", domain.StageRelevance, seqErr.Missing)
	}

	stored, ok := store.Run(run.ID)
	if !ok {
		t.Fatal("run not persisted")
	}
	if stored.Status != domain.RunFailed {
		t.Fatalf("expected failed run, got %s", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("failed run must carry an error message")
	}
	if len(store.AnglesByRun(run.ID)) != 0 {
		t.Fatal("no angles may be persisted for the failed run")
	}
}

func TestScoutFailureFailsRun(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("upstream unavailable")}
	notifier := &fakeNotifier{}
	coordinator, store := buildCoordinator(src, &fakeIndex{}, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err == nil {
		t.Fatal("expected Execute to fail")
	}
	if run == nil {
		t.Fatal("the failed run must still be returned")
	}

	stored, _ := store.Run(run.ID)
	if stored.Status != domain.RunFailed {
		t.Fatalf("expected failed run, got %s", stored.Status)
	}
	if len(stored.CompletedStages) != 0 {
		t.Fatalf("no stage may be marked complete, got %v", stored.CompletedStages)
	}
	if notifier.calls != 0 {
		t.Fatal("failed runs must not be delivered")
	}
}

func TestEmptyDiscoveryFinishesEarly(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	coordinator, store := buildCoordinator(&fakeSource{}, &fakeIndex{}, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunSucceeded {
		t.Fatalf("an empty discovery is a valid run, got %s", run.Status)
	}

	if len(run.CompletedStages) != 1 || run.CompletedStages[0] != domain.StageScout {
		t.Fatalf("expected only scout completed, got %v", run.CompletedStages)
	}
	assertStagePrefix(t, run.CompletedStages)

	if notifier.calls != 0 {
		t.Fatal("empty brief must not be delivered")
	}
	if len(store.Notifications()) != 0 {
		t.Fatal("no notification record expected")
	}
}

func TestDeliveryFailureIsRecorded(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	notifier := &fakeNotifier{err: errors.New("webhook returned 500")}

	coordinator, store := buildCoordinator(src, &fakeIndex{}, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), false)
	if err == nil {
		t.Fatal("expected the delivery error to surface")
	}

	stored, _ := store.Run(run.ID)
	if stored.Status != domain.RunSucceeded {
		t.Fatalf("a delivery failure must not rewrite the run status, got %s", stored.Status)
	}

	records := store.Notifications()
	if len(records) != 1 || records[0].Success || records[0].ErrorMessage == "" {
		t.Fatalf("expected one failed notification record, got %+v", records)
	}
}

func TestDryRunLeavesNoTrace(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	index := &fakeIndex{}
	notifier := &fakeNotifier{}

	coordinator, store := buildCoordinator(src, index, embedding.NewHashEmbedder(64), notifier)

	run, err := coordinator.Execute(context.Background(), true)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if run.Status != domain.RunSucceeded || !run.DryRun {
		t.Fatalf("expected a succeeded dry run, got %+v", run)
	}
	if notifier.calls != 0 {
		t.Fatal("dry runs must not deliver")
	}
	if index.addedCount() != 0 {
		t.Fatal("dry runs must not index angles")
	}
	if len(store.Notifications()) != 0 {
		t.Fatal("dry runs must not record notifications")
	}
}

func TestStartRunRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	opts := testOptions()
	opts.SimilarityThreshold = 1.5

	coordinator := NewCoordinator(CoordinatorDeps{
		Store:   store,
		Options: opts,
		Logger:  discardLogger(),
	})

	_, err := coordinator.StartRun(context.Background(), false)
	if err == nil {
		t.Fatal("expected a config error")
	}
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *domain.ConfigError, got %T", err)
	}
}

func TestFinalizeRunIsIdempotent(t *testing.T) {
	t.Parallel()

	coordinator, store := buildCoordinator(&fakeSource{}, &fakeIndex{}, embedding.NewHashEmbedder(64), &fakeNotifier{})

	ctx := context.Background()
	run, err := coordinator.StartRun(ctx, false)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}

	if err := coordinator.FinalizeRun(ctx, run, domain.RunFailed, errors.New("first")); err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}
	if err := coordinator.FinalizeRun(ctx, run, domain.RunSucceeded, nil); err != nil {
		t.Fatalf("second finalize errored: %v", err)
	}

	stored, _ := store.Run(run.ID)
	if stored.Status != domain.RunFailed {
		t.Fatalf("terminal status must not change, got %s", stored.Status)
	}
	if stored.ErrorMessage != "first" {
		t.Fatalf("terminal error message must not change, got %q", stored.ErrorMessage)
	}
}

func TestSelectionPersistsBeforeTerminalStatus(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	store := &selectionStatusStore{MemoryStore: storage.NewMemoryStore()}
	coordinator := coordinatorWithStore(store, src, &fakeIndex{}, embedding.NewHashEmbedder(64), &fakeNotifier{})

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunSucceeded {
		t.Fatalf("expected succeeded, got %s", run.Status)
	}

	if len(store.selectionStatuses) == 0 {
		t.Fatal("no selected angle batch was applied")
	}
	for _, status := range store.selectionStatuses {
		if status.Terminal() {
			t.Fatalf("selected angles were written after the run turned terminal (%s)", status)
		}
	}
}

func TestSkippedStageRecordsRejection(t *testing.T) {
	t.Parallel()

	src := &fakeSource{topics: []domain.TopicCandidate{
		newTopic("t1", "Scaling Laws for Sparse Models", goodSummary),
	}}
	coordinator, store := buildCoordinator(src, &fakeIndex{}, offlineEmbedder{}, &fakeNotifier{})

	run, err := coordinator.Execute(context.Background(), false)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Fatalf("expected partial, got %s", run.Status)
	}
	assertStagePrefix(t, run.CompletedStages)

	var stageRejections []domain.RejectedItem
	for _, rejection := range store.RejectionsByRun(run.ID) {
		if rejection.ItemType == "stage" {
			stageRejections = append(stageRejections, rejection)
		}
	}
	if len(stageRejections) != 1 {
		t.Fatalf("expected one stage rejection, got %+v", stageRejections)
	}
	if stageRejections[0].Stage != domain.StageRedundancy {
		t.Fatalf("expected the redundancy stage, got %q", stageRejections[0].Stage)
	}
	if stageRejections[0].Reason == "" {
		t.Fatal("stage rejection must carry the failure reason")
	}
}

func TestDeliverySkippedAfterPriorSuccess(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	coordinator, store := buildCoordinator(&fakeSource{}, &fakeIndex{}, embedding.NewHashEmbedder(64), notifier)

	ctx := context.Background()
	run, err := coordinator.StartRun(ctx, false)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	prior := domain.NotificationRecord{
		ID:          "prior",
		RunID:       run.ID,
		Channel:     "slack",
		DeliveredAt: fixedNow.Add(-time.Hour),
		Success:     true,
	}
	if err := store.SaveNotification(ctx, prior); err != nil {
		t.Fatalf("SaveNotification returned error: %v", err)
	}

	brief := domain.Brief{
		RunID:       run.ID,
		GeneratedAt: fixedNow,
		Angles:      []domain.Angle{{ID: "a1", RunID: run.ID, Stance: "still relevant"}},
	}
	if err := coordinator.deliver(ctx, run, brief); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	if notifier.calls != 0 {
		t.Fatalf("re-delivery after a successful record must be a no-op, got %d calls", notifier.calls)
	}
	if records := store.Notifications(); len(records) != 1 {
		t.Fatalf("no new record expected, got %+v", records)
	}
}

func TestDeliveryRetriedAfterPriorFailure(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	coordinator, store := buildCoordinator(&fakeSource{}, &fakeIndex{}, embedding.NewHashEmbedder(64), notifier)

	ctx := context.Background()
	run, err := coordinator.StartRun(ctx, false)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	prior := domain.NotificationRecord{
		ID:           "prior",
		RunID:        run.ID,
		Channel:      "slack",
		DeliveredAt:  fixedNow.Add(-time.Hour),
		Success:      false,
		ErrorMessage: "webhook returned 500",
	}
	if err := store.SaveNotification(ctx, prior); err != nil {
		t.Fatalf("SaveNotification returned error: %v", err)
	}

	brief := domain.Brief{
		RunID:       run.ID,
		GeneratedAt: fixedNow,
		Angles:      []domain.Angle{{ID: "a1", RunID: run.ID, Stance: "still relevant"}},
	}
	if err := coordinator.deliver(ctx, run, brief); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	if notifier.calls != 1 {
		t.Fatalf("a failed record must allow a retry, got %d calls", notifier.calls)
	}
	records := store.Notifications()
	if len(records) != 2 {
		t.Fatalf("expected the retry to append a record, got %+v", records)
	}
	if !records[1].Success {
		t.Fatalf("retry record must be successful, got %+v", records[1])
	}
}
