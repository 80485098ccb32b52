package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Keywords that indicate hype/marketing content to penalize.
var hypeIndicators = []string{
	"revolutionary", "game-changing", "disrupting", "unprecedented",
	"breakthrough", "magic", "secret", "exclusive", "limited time",
	"you won't believe", "amazing", "incredible", "unbelievable",
}

// Keywords that indicate practical relevance.
var practicalIndicators = []string{
	"benchmark", "performance", "latency", "throughput", "accuracy",
	"implementation", "code", "open source", "api", "sdk",
	"tutorial", "guide", "how to", "production", "deployment",
}

var topicKeywords = []string{
	"ai", "ml", "machine learning", "neural", "llm", "transformer", "model",
}

const (
	hypeRejectCount  = 3
	minSummaryLength = 50
	minCombinedScore = 0.4
	maxPracticalLift = 0.2
)

// Relevance scores each topic and filters out hype, thin, off-topic and
// low-scoring content. Per-item classification failures are recorded as
// rejections and do not fail the run.
type Relevance struct {
	scorer ports.TopicScorer
}

var _ Stage = (*Relevance)(nil)

// NewRelevance wires an optional LLM scorer; with a nil scorer the
// heuristic scoring path is used alone.
func NewRelevance(scorer ports.TopicScorer) *Relevance {
	return &Relevance{scorer: scorer}
}

func (r *Relevance) Name() string { return domain.StageRelevance }

func (r *Relevance) After() []string { return []string{domain.StageScout} }

func (r *Relevance) Policy() FailurePolicy { return Skippable }

func (r *Relevance) ValidateInput(st *State) error {
	for i, topic := range st.Topics {
		if topic.ID == "" {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Topics[%d].ID", i), Reason: "is required"}
		}
	}
	return nil
}

func (r *Relevance) Execute(ctx context.Context, rc RunContext, st *State) (ports.Batch, error) {
	var batch ports.Batch

	for _, topic := range st.Topics {
		scored := r.scoreTopic(ctx, rc, topic)
		st.Scored = append(st.Scored, scored)
		batch.ScoredTopics = append(batch.ScoredTopics, scored)

		if scored.Rejected {
			batch.Rejections = append(batch.Rejections, domain.RejectedItem{
				ID:         uuid.NewString(),
				RunID:      rc.Run.ID,
				ItemType:   "topic",
				ItemID:     topic.ID,
				Reason:     scored.RejectionReason,
				Stage:      r.Name(),
				RejectedAt: rc.Now,
			})
			continue
		}
		st.Filtered = append(st.Filtered, scored)
	}

	debugLog(rc, "relevance filter done", "input", len(st.Topics), "passed", len(st.Filtered))
	return batch, nil
}

func (r *Relevance) scoreTopic(ctx context.Context, rc RunContext, topic domain.TopicCandidate) domain.ScoredTopic {
	scored := domain.ScoredTopic{TopicCandidate: topic}

	if reason := heuristicReject(topic); reason != "" {
		scored.Rejected = true
		scored.RejectionReason = reason
		return scored
	}

	if r.scorer != nil {
		scores, err := r.scorer.Score(ctx, topic)
		if err != nil {
			// Per-item failure: excluded, not a pipeline failure.
			warnLog(rc, "topic scoring failed", "topic", topic.ID, "error", err)
			scored.Rejected = true
			scored.RejectionReason = domain.ReasonScoringFailed
			return scored
		}
		scored.Scores = scores
	} else {
		scored.Scores = heuristicScores(topic)
	}

	if scored.Scores.Combined < minCombinedScore {
		scored.Rejected = true
		scored.RejectionReason = domain.ReasonLowRelevance
	}
	return scored
}

func (r *Relevance) ValidateOutput(st *State) error {
	for i, scored := range st.Scored {
		if !inUnit(scored.Scores.Relevance) || !inUnit(scored.Scores.Novelty) ||
			!inUnit(scored.Scores.Impact) || !inUnit(scored.Scores.Combined) {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Scored[%d].Scores", i), Reason: "must be in [0,1]"}
		}
		if scored.Rejected && scored.RejectionReason == "" {
			return &domain.ValidationError{Stage: r.Name(), Field: fmt.Sprintf("Scored[%d].RejectionReason", i), Reason: "is required for rejected topics"}
		}
	}
	return nil
}

func heuristicReject(topic domain.TopicCandidate) string {
	combined := strings.ToLower(topic.Title + " " + topic.Summary)

	hypeCount := 0
	for _, indicator := range hypeIndicators {
		if strings.Contains(combined, indicator) {
			hypeCount++
		}
	}
	if hypeCount >= hypeRejectCount {
		return domain.ReasonHypeContent
	}

	if len(topic.Summary) < minSummaryLength {
		return domain.ReasonThinContent
	}

	for _, keyword := range topicKeywords {
		if strings.Contains(combined, keyword) {
			return ""
		}
	}
	return domain.ReasonOffTopic
}

func heuristicScores(topic domain.TopicCandidate) domain.TopicScores {
	combined := strings.ToLower(topic.Title + " " + topic.Summary)

	lift := 0.0
	for _, indicator := range practicalIndicators {
		if strings.Contains(combined, indicator) {
			lift += 0.05
		}
	}
	if lift > maxPracticalLift {
		lift = maxPracticalLift
	}

	scores := domain.TopicScores{
		Relevance: 0.5 + lift,
		Novelty:   0.5,
		Impact:    0.5,
	}
	scores.Combined = (scores.Relevance + scores.Novelty + scores.Impact) / 3
	return scores
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
