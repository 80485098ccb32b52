package ports

import (
	"context"
	"time"

	"CurateAI/internal/domain"
)

// TopicSource pulls fresh topic candidates from upstream providers.
type TopicSource interface {
	Discover(ctx context.Context, since time.Time) ([]domain.TopicCandidate, error)
}

// TopicScorer evaluates a topic on relevance, novelty, and impact.
type TopicScorer interface {
	Score(ctx context.Context, topic domain.TopicCandidate) (domain.TopicScores, error)
}

// AngleGenerator produces an opinionated insight angle for a scored topic.
type AngleGenerator interface {
	Generate(ctx context.Context, topic domain.ScoredTopic) (domain.Angle, error)
}

// AssetCollector extracts supporting assets (figures, links) from a source page.
type AssetCollector interface {
	Collect(ctx context.Context, pageURL, sourceTitle string) ([]domain.Asset, error)
}

// Embedder converts text to a fixed-length vector. Deterministic for a
// fixed model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Neighbor is one nearest-match result from the vector index.
type Neighbor struct {
	AngleID    string
	RunID      string
	Similarity float64
	CreatedAt  time.Time
}

// AngleIndex answers nearest-neighbor queries over accepted angle
// embeddings. Nearest returns results ordered by descending similarity,
// restricted to angles created at or after since.
type AngleIndex interface {
	Add(ctx context.Context, angle domain.Angle) error
	Nearest(ctx context.Context, vector []float32, since time.Time, k int) ([]Neighbor, error)
}

// Batch groups every record a single stage execution produced. The
// store commits a batch atomically: all records land or none do.
type Batch struct {
	Topics       []domain.TopicCandidate
	ScoredTopics []domain.ScoredTopic
	Angles       []domain.Angle
	AngleScores  []domain.AngleScore
	Rejections   []domain.RejectedItem
}

// Empty reports whether the batch carries no records at all.
func (b Batch) Empty() bool {
	return len(b.Topics) == 0 && len(b.ScoredTopics) == 0 &&
		len(b.Angles) == 0 && len(b.AngleScores) == 0 && len(b.Rejections) == 0
}

// RunStore persists runs and per-stage checkpoints. Implementations
// must never hold a transaction open across a remote call.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	Apply(ctx context.Context, runID string, batch Batch) error

	// ReconcileInterrupted finalizes runs left non-terminal by a prior
	// process, marking them failed. Returns how many were reconciled.
	ReconcileInterrupted(ctx context.Context, now time.Time) (int, error)

	Notification(ctx context.Context, runID string) (*domain.NotificationRecord, error)
	SaveNotification(ctx context.Context, record domain.NotificationRecord) error
}

// Notifier delivers the finalized brief to the outbound channel.
type Notifier interface {
	Deliver(ctx context.Context, brief domain.Brief) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
