package stage

import (
	"context"
	"fmt"
	"strings"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

const (
	maxInsightLength = 200
	maxWhyLength     = 300
	maxFramingPoints = 4
	maxFramingLength = 50
)

// Editor compresses each angle into brief-ready form: a two-line
// insight, a trimmed why-it-matters, and framing bullets derived from
// the second-order effects. Pure text transformation, no I/O.
type Editor struct{}

var _ Stage = (*Editor)(nil)

// NewEditor returns the compression stage.
func NewEditor() *Editor {
	return &Editor{}
}

func (e *Editor) Name() string { return domain.StageEditor }

func (e *Editor) After() []string { return []string{domain.StageInsight} }

func (e *Editor) Policy() FailurePolicy { return Fatal }

func (e *Editor) ValidateInput(st *State) error {
	for i, angle := range st.Angles {
		if angle.Stance == "" {
			return &domain.ValidationError{Stage: e.Name(), Field: fmt.Sprintf("Angles[%d].Stance", i), Reason: "is required"}
		}
	}
	return nil
}

func (e *Editor) Execute(_ context.Context, rc RunContext, st *State) (ports.Batch, error) {
	var batch ports.Batch

	for i := range st.Angles {
		angle := &st.Angles[i]
		angle.Insight = compressToSentence(angle.Stance, maxInsightLength)
		angle.WhyItMatters = trimSentences(angle.WhyItMatters, maxWhyLength)
		angle.FramingPoints = framingPoints(angle.SecondOrderEffects)
		batch.Angles = append(batch.Angles, *angle)
	}

	debugLog(rc, "editor done", "angles", len(st.Angles))
	return batch, nil
}

func (e *Editor) ValidateOutput(st *State) error {
	for i, angle := range st.Angles {
		if angle.Insight == "" {
			return &domain.ValidationError{Stage: e.Name(), Field: fmt.Sprintf("Angles[%d].Insight", i), Reason: "is required"}
		}
		if len(angle.Insight) > maxInsightLength {
			return &domain.ValidationError{Stage: e.Name(), Field: fmt.Sprintf("Angles[%d].Insight", i), Reason: fmt.Sprintf("must be <= %d characters", maxInsightLength)}
		}
	}
	return nil
}

// compressToSentence truncates at a sentence boundary when possible.
func compressToSentence(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}

	if idx := strings.Index(text, ". "); idx > 0 && idx+1 <= limit {
		return text[:idx+1]
	}
	return text[:limit-3] + "..."
}

func trimSentences(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}

	sentences := strings.SplitAfter(text, ". ")
	var b strings.Builder
	for _, sentence := range sentences {
		if b.Len()+len(sentence) > limit {
			break
		}
		b.WriteString(sentence)
	}
	if b.Len() == 0 {
		return text[:limit-3] + "..."
	}
	return strings.TrimSpace(b.String())
}

func framingPoints(effects []string) []string {
	points := make([]string, 0, maxFramingPoints)
	for _, effect := range effects {
		if len(points) == maxFramingPoints {
			break
		}
		effect = strings.TrimSpace(effect)
		if effect == "" {
			continue
		}
		if len(effect) > maxFramingLength {
			effect = effect[:maxFramingLength-3] + "..."
		}
		points = append(points, effect)
	}
	return points
}
