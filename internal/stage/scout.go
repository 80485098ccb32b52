package stage

import (
	"context"
	"fmt"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Scout collects topic candidates from all configured sources. Without
// source data nothing downstream is meaningful, so its failures are fatal.
type Scout struct {
	source ports.TopicSource
}

var _ Stage = (*Scout)(nil)

// NewScout wires the topic source.
func NewScout(source ports.TopicSource) *Scout {
	return &Scout{source: source}
}

func (s *Scout) Name() string { return domain.StageScout }

func (s *Scout) After() []string { return nil }

func (s *Scout) Policy() FailurePolicy { return Fatal }

func (s *Scout) ValidateInput(st *State) error {
	if len(st.Topics) != 0 {
		return &domain.ValidationError{Stage: s.Name(), Field: "Topics", Reason: "must be empty before discovery"}
	}
	return nil
}

func (s *Scout) Execute(ctx context.Context, rc RunContext, st *State) (ports.Batch, error) {
	if s.source == nil {
		return ports.Batch{}, fmt.Errorf("topic source is not configured")
	}

	since := rc.Now.AddDate(0, 0, -rc.Options.LookbackDays)
	topics, err := s.source.Discover(ctx, since)
	if err != nil {
		return ports.Batch{}, fmt.Errorf("discover topics: %w", err)
	}

	for i := range topics {
		topics[i].RunID = rc.Run.ID
		if topics[i].DiscoveredAt.IsZero() {
			topics[i].DiscoveredAt = rc.Now
		}
	}

	debugLog(rc, "scout collected topics", "count", len(topics))
	st.Topics = topics

	return ports.Batch{Topics: topics}, nil
}

func (s *Scout) ValidateOutput(st *State) error {
	for i, topic := range st.Topics {
		switch {
		case topic.ID == "":
			return &domain.ValidationError{Stage: s.Name(), Field: fmt.Sprintf("Topics[%d].ID", i), Reason: "is required"}
		case topic.Title == "":
			return &domain.ValidationError{Stage: s.Name(), Field: fmt.Sprintf("Topics[%d].Title", i), Reason: "is required"}
		case topic.URL == "":
			return &domain.ValidationError{Stage: s.Name(), Field: fmt.Sprintf("Topics[%d].URL", i), Reason: "is required"}
		case topic.RunID == "":
			return &domain.ValidationError{Stage: s.Name(), Field: fmt.Sprintf("Topics[%d].RunID", i), Reason: "is required"}
		}
	}
	return nil
}
