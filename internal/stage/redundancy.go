package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
	"CurateAI/internal/redundancy"
)

// RedundancyChecker classifies each candidate angle as novel or
// duplicate. Accepted angles join the comparator set so duplicates
// within the same run are also caught. When the embedding backend is
// down the candidate passes through unclassified rather than failing
// the run.
type RedundancyChecker struct {
	engine *redundancy.Engine
}

var _ Stage = (*RedundancyChecker)(nil)

// NewRedundancyChecker wires the dedup engine.
func NewRedundancyChecker(engine *redundancy.Engine) *RedundancyChecker {
	return &RedundancyChecker{engine: engine}
}

func (r *RedundancyChecker) Name() string { return domain.StageRedundancy }

func (r *RedundancyChecker) After() []string { return []string{domain.StageAsset} }

func (r *RedundancyChecker) Policy() FailurePolicy { return Skippable }

func (r *RedundancyChecker) ValidateInput(st *State) error {
	for i, angle := range st.Angles {
		if angle.Status != domain.AngleCandidate {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Angles[%d].Status", i), Reason: "must be candidate"}
		}
	}
	return nil
}

func (r *RedundancyChecker) Execute(ctx context.Context, rc RunContext, st *State) (ports.Batch, error) {
	var (
		batch       ports.Batch
		comparators []redundancy.Comparator
	)

	for i := range st.Angles {
		angle := &st.Angles[i]

		result, err := r.engine.Check(ctx, angle, rc.Now, comparators)
		if err != nil {
			var embErr *domain.EmbeddingServiceError
			if errors.As(err, &embErr) {
				// Duplicates slipping through a backend outage are
				// preferable to losing novel angles.
				warnLog(rc, "embedding unavailable, passing angle through unclassified",
					"angle", angle.ID, "error", err)
				angle.Status = domain.AngleAccepted
				st.Accepted = append(st.Accepted, *angle)
				batch.Angles = append(batch.Angles, *angle)
				continue
			}
			return batch, err
		}

		batch.AngleScores = append(batch.AngleScores, domain.AngleScore{
			ID:       uuid.NewString(),
			AngleID:  angle.ID,
			Kind:     "similarity",
			Value:    result.Similarity,
			ScoredAt: rc.Now,
		})

		if result.IsDuplicate {
			angle.Status = domain.AngleRejected
			batch.Angles = append(batch.Angles, *angle)
			batch.Rejections = append(batch.Rejections, domain.RejectedItem{
				ID:         uuid.NewString(),
				RunID:      rc.Run.ID,
				ItemType:   "angle",
				ItemID:     angle.ID,
				Reason:     domain.ReasonRedundant,
				Stage:      r.Name(),
				RejectedAt: rc.Now,
			})
			continue
		}

		angle.Status = domain.AngleAccepted
		angle.NoveltyScore = 1 - result.Similarity
		st.Accepted = append(st.Accepted, *angle)
		batch.Angles = append(batch.Angles, *angle)
		comparators = append(comparators, redundancy.Comparator{
			AngleID:   angle.ID,
			RunID:     rc.Run.ID,
			Vector:    angle.Embedding,
			CreatedAt: rc.Now,
		})
	}

	debugLog(rc, "redundancy check done",
		"candidates", len(st.Angles), "accepted", len(st.Accepted))
	return batch, nil
}

func (r *RedundancyChecker) ValidateOutput(st *State) error {
	for i, angle := range st.Angles {
		if angle.Status == domain.AngleCandidate {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Angles[%d].Status", i), Reason: "must be classified"}
		}
	}
	for i, angle := range st.Accepted {
		if angle.Status != domain.AngleAccepted {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Accepted[%d].Status", i), Reason: "must be accepted"}
		}
	}
	return nil
}
