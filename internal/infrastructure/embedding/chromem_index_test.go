package embedding

import (
	"context"
	"testing"
	"time"

	"CurateAI/internal/domain"
)

func TestChromemIndexRoundTrip(t *testing.T) {
	t.Parallel()

	index, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex returned error: %v", err)
	}

	ctx := context.Background()
	embedder := NewHashEmbedder(32)
	now := time.Date(2026, time.August, 23, 6, 0, 0, 0, time.UTC)

	vector, _ := embedder.Embed(ctx, "sparse attention stance")
	angle := domain.Angle{
		ID:        "a1",
		RunID:     "run-1",
		Stance:    "sparse attention stance",
		Embedding: vector,
		CreatedAt: now.AddDate(0, 0, -2),
	}
	if err := index.Add(ctx, angle); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	neighbors, err := index.Nearest(ctx, vector, now.AddDate(0, 0, -14), 5)
	if err != nil {
		t.Fatalf("Nearest returned error: %v", err)
	}

	if len(neighbors) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(neighbors))
	}
	if neighbors[0].AngleID != "a1" || neighbors[0].RunID != "run-1" {
		t.Fatalf("unexpected neighbor: %+v", neighbors[0])
	}
	if neighbors[0].Similarity < 0.99 {
		t.Fatalf("identical vector should score near 1, got %v", neighbors[0].Similarity)
	}
	if !neighbors[0].CreatedAt.Equal(angle.CreatedAt) {
		t.Fatalf("unexpected created_at: %v", neighbors[0].CreatedAt)
	}
}

func TestChromemIndexWindowFilter(t *testing.T) {
	t.Parallel()

	index, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex returned error: %v", err)
	}

	ctx := context.Background()
	embedder := NewHashEmbedder(32)
	now := time.Date(2026, time.August, 23, 6, 0, 0, 0, time.UTC)

	vector, _ := embedder.Embed(ctx, "the same stance text")

	recent := domain.Angle{ID: "recent", RunID: "run-2", Stance: "s", Embedding: vector, CreatedAt: now.AddDate(0, 0, -1)}
	stale := domain.Angle{ID: "stale", RunID: "run-1", Stance: "s", Embedding: vector, CreatedAt: now.AddDate(0, 0, -30)}

	if err := index.Add(ctx, recent); err != nil {
		t.Fatalf("Add recent: %v", err)
	}
	if err := index.Add(ctx, stale); err != nil {
		t.Fatalf("Add stale: %v", err)
	}

	neighbors, err := index.Nearest(ctx, vector, now.AddDate(0, 0, -14), 5)
	if err != nil {
		t.Fatalf("Nearest returned error: %v", err)
	}

	if len(neighbors) != 1 {
		t.Fatalf("expected the stale angle to be filtered, got %d neighbors", len(neighbors))
	}
	if neighbors[0].AngleID != "recent" {
		t.Fatalf("expected the recent angle, got %s", neighbors[0].AngleID)
	}
}

func TestChromemIndexEmpty(t *testing.T) {
	t.Parallel()

	index, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex returned error: %v", err)
	}

	neighbors, err := index.Nearest(context.Background(), []float32{1, 0}, time.Time{}, 5)
	if err != nil {
		t.Fatalf("Nearest on empty index errored: %v", err)
	}
	if len(neighbors) != 0 {
		t.Fatalf("expected no neighbors, got %d", len(neighbors))
	}
}

func TestChromemIndexRejectsMissingEmbedding(t *testing.T) {
	t.Parallel()

	index, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex returned error: %v", err)
	}

	if err := index.Add(context.Background(), domain.Angle{ID: "a1"}); err == nil {
		t.Fatal("expected an error for an angle without an embedding")
	}
}
