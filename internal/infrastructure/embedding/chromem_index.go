package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

const angleCollection = "angles"

// Overfetch factor so window filtering still leaves k usable neighbors.
const nearestOverfetch = 4

// ChromemIndex stores accepted angle embeddings in chromem-go, an
// embedded pure-Go vector database, and answers nearest-neighbor
// queries with cosine similarity. The lookback window is applied over
// document metadata because chromem's where clause supports equality
// only.
type ChromemIndex struct {
	col *chromem.Collection
	mu  sync.Mutex
}

var _ ports.AngleIndex = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) the index. An empty dir keeps the
// index in memory, which is what tests and dry runs want.
func NewChromemIndex(dir string) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector index: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(angleCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	return &ChromemIndex{col: col}, nil
}

// Add stores the angle's embedding with the metadata the window filter
// and tie-break need.
func (ix *ChromemIndex) Add(ctx context.Context, angle domain.Angle) error {
	if len(angle.Embedding) == 0 {
		return fmt.Errorf("angle %s has no embedding", angle.ID)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc := chromem.Document{
		ID:        angle.ID,
		Content:   angle.Stance,
		Embedding: angle.Embedding,
		Metadata: map[string]string{
			"run_id":     angle.RunID,
			"created_at": angle.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Nearest returns up to k neighbors created at or after since, ordered
// by descending similarity. An empty index yields an empty result.
func (ix *ChromemIndex) Nearest(ctx context.Context, vector []float32, since time.Time, k int) ([]ports.Neighbor, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	count := ix.col.Count()
	if count == 0 || k < 1 {
		return nil, nil
	}

	n := k * nearestOverfetch
	if n > count {
		n = count
	}

	results, err := ix.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	neighbors := make([]ports.Neighbor, 0, k)
	for _, res := range results {
		createdAt, err := time.Parse(time.RFC3339Nano, res.Metadata["created_at"])
		if err != nil {
			continue
		}
		if createdAt.Before(since) {
			continue
		}

		neighbors = append(neighbors, ports.Neighbor{
			AngleID:    res.ID,
			RunID:      res.Metadata["run_id"],
			Similarity: float64(res.Similarity),
			CreatedAt:  createdAt,
		})
		if len(neighbors) == k {
			break
		}
	}

	return neighbors, nil
}
