package redundancy

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"CurateAI/internal/config"
	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Comparator is an already-accepted candidate from the current run,
// checked against later candidates in the same batch.
type Comparator struct {
	AngleID   string
	RunID     string
	Vector    []float32
	CreatedAt time.Time
}

// Result is the classification outcome for one candidate angle.
type Result struct {
	IsDuplicate bool
	Similarity  float64
	Match       *ports.Neighbor
}

// Engine classifies candidate angles as novel or duplicate against a
// rolling lookback window of prior accepted angles. It never mutates
// history: only the candidate's own status is decided.
type Engine struct {
	embedder     ports.Embedder
	index        ports.AngleIndex
	threshold    float64
	lookbackDays int
	nearestK     int
	logger       *slog.Logger
}

// NewEngine wires the embedding store and vector index with the
// configured threshold and window.
func NewEngine(embedder ports.Embedder, index ports.AngleIndex, opts config.Options, logger *slog.Logger) *Engine {
	return &Engine{
		embedder:     embedder,
		index:        index,
		threshold:    opts.SimilarityThreshold,
		lookbackDays: opts.LookbackDays,
		nearestK:     opts.NearestK,
		logger:       logger,
	}
}

// EmbedText is the canonical text embedded for an angle.
func EmbedText(angle domain.Angle) string {
	return angle.Stance + " " + angle.WhyItMatters
}

// Check embeds the candidate, retrieves the nearest prior angles within
// the lookback window plus the current batch, and flags a duplicate when
// the best similarity meets or exceeds the threshold (inclusive). Ties
// between matches above the threshold resolve to the most recent run.
// An empty comparator set always classifies the candidate as novel.
//
// The candidate's Embedding field is populated as a side effect so the
// caller can persist and index it.
func (e *Engine) Check(ctx context.Context, angle *domain.Angle, now time.Time, batch []Comparator) (Result, error) {
	vector, err := e.embedder.Embed(ctx, EmbedText(*angle))
	if err != nil {
		return Result{}, err
	}
	angle.Embedding = vector

	since := now.AddDate(0, 0, -e.lookbackDays)
	neighbors, err := e.index.Nearest(ctx, vector, since, e.nearestK)
	if err != nil {
		return Result{}, &domain.EmbeddingServiceError{Err: err}
	}

	for _, cmp := range batch {
		neighbors = append(neighbors, ports.Neighbor{
			AngleID:    cmp.AngleID,
			RunID:      cmp.RunID,
			Similarity: Cosine(vector, cmp.Vector),
			CreatedAt:  cmp.CreatedAt,
		})
	}

	if len(neighbors) == 0 {
		return Result{}, nil
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].CreatedAt.After(neighbors[j].CreatedAt)
	})

	best := neighbors[0]
	result := Result{
		IsDuplicate: best.Similarity >= e.threshold,
		Similarity:  best.Similarity,
		Match:       &best,
	}

	if result.IsDuplicate && e.logger != nil {
		e.logger.Debug("duplicate angle detected",
			"angle", angle.ID, "match", best.AngleID, "similarity", best.Similarity)
	}
	return result, nil
}

// Cosine computes cosine similarity between two vectors. Zero-norm
// vectors compare as dissimilar.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
