package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Insight generates one opinionated angle per surviving topic. Zero
// angles is valid only when zero topics survived filtering; otherwise
// it signals a generation fault and fails the run.
type Insight struct {
	generator ports.AngleGenerator
}

var _ Stage = (*Insight)(nil)

// NewInsight wires an optional LLM generator; with a nil generator a
// templated angle is derived from the topic itself.
func NewInsight(generator ports.AngleGenerator) *Insight {
	return &Insight{generator: generator}
}

func (g *Insight) Name() string { return domain.StageInsight }

func (g *Insight) After() []string { return []string{domain.StageRelevance} }

func (g *Insight) Policy() FailurePolicy { return FatalIfEmptyOutput }

func (g *Insight) ValidateInput(st *State) error {
	for i, topic := range st.Filtered {
		if topic.Rejected {
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Filtered[%d].Rejected", i), Reason: "rejected topic must not reach generation"}
		}
	}
	return nil
}

func (g *Insight) Execute(ctx context.Context, rc RunContext, st *State) (ports.Batch, error) {
	var batch ports.Batch

	for _, topic := range st.Filtered {
		angle, err := g.generateAngle(ctx, topic)
		if err != nil {
			warnLog(rc, "angle generation failed", "topic", topic.ID, "error", err)
			batch.Rejections = append(batch.Rejections, domain.RejectedItem{
				ID:         uuid.NewString(),
				RunID:      rc.Run.ID,
				ItemType:   "topic",
				ItemID:     topic.ID,
				Reason:     domain.ReasonGeneration,
				Stage:      g.Name(),
				RejectedAt: rc.Now,
			})
			continue
		}

		angle.RunID = rc.Run.ID
		angle.Status = domain.AngleCandidate
		angle.CreatedAt = rc.Now

		st.Angles = append(st.Angles, angle)
		batch.Angles = append(batch.Angles, angle)
		batch.AngleScores = append(batch.AngleScores, domain.AngleScore{
			ID:       uuid.NewString(),
			AngleID:  angle.ID,
			Kind:     "confidence",
			Value:    angle.Confidence,
			ScoredAt: rc.Now,
		})
	}

	if len(st.Angles) == 0 && len(st.Filtered) > 0 {
		return batch, &domain.GenerationServiceError{
			Err: fmt.Errorf("no angles generated from %d surviving topics", len(st.Filtered)),
		}
	}

	debugLog(rc, "insight generation done", "angles", len(st.Angles))
	return batch, nil
}

func (g *Insight) generateAngle(ctx context.Context, topic domain.ScoredTopic) (domain.Angle, error) {
	if g.generator != nil {
		return g.generator.Generate(ctx, topic)
	}

	// Templated fallback keeps the pipeline runnable without an LLM key.
	title := topic.Title
	if len(title) > 80 {
		title = strings.TrimSpace(title[:77]) + "..."
	}

	return domain.Angle{
		ID:           uuid.NewString(),
		TopicID:      topic.ID,
		Stance:       fmt.Sprintf("%q deserves attention beyond the abstract.", title),
		WhyItMatters: firstSentence(topic.Summary),
		SecondOrderEffects: []string{
			"Expect follow-up work building on this result",
			"Tooling in this area will need to adapt",
		},
		RelevantFor:     []string{"ML engineers", "AI researchers"},
		Confidence:      topic.Scores.Combined,
		Status:          domain.AngleCandidate,
		SupportingLinks: []string{topic.URL},
	}, nil
}

func (g *Insight) ValidateOutput(st *State) error {
	for i, angle := range st.Angles {
		switch {
		case angle.ID == "":
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Angles[%d].ID", i), Reason: "is required"}
		case angle.TopicID == "":
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Angles[%d].TopicID", i), Reason: "is required"}
		case angle.RunID == "":
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Angles[%d].RunID", i), Reason: "is required"}
		case angle.Stance == "":
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Angles[%d].Stance", i), Reason: "is required"}
		case !inUnit(angle.Confidence):
			return &domain.ValidationError{Stage: g.Name(), Field: fmt.Sprintf("Angles[%d].Confidence", i), Reason: "must be in [0,1]"}
		}
	}
	return nil
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, ". "); idx > 0 {
		return text[:idx+1]
	}
	return text
}
