package stage

import (
	"context"
	"fmt"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// AssetCurator attaches source-linked supporting assets to each angle.
// Collection failures are per-item: the angle simply carries no assets.
type AssetCurator struct {
	collector ports.AssetCollector
}

var _ Stage = (*AssetCurator)(nil)

// NewAssetCurator wires an optional collector; with nil the stage only
// links the original source.
func NewAssetCurator(collector ports.AssetCollector) *AssetCurator {
	return &AssetCurator{collector: collector}
}

func (a *AssetCurator) Name() string { return domain.StageAsset }

func (a *AssetCurator) After() []string { return []string{domain.StageEditor} }

func (a *AssetCurator) Policy() FailurePolicy { return Skippable }

func (a *AssetCurator) ValidateInput(st *State) error {
	for i, angle := range st.Angles {
		if angle.TopicID == "" {
			return &domain.ValidationError{Stage: a.Name(), Field: fmt.Sprintf("Angles[%d].TopicID", i), Reason: "is required"}
		}
	}
	return nil
}

func (a *AssetCurator) Execute(ctx context.Context, rc RunContext, st *State) (ports.Batch, error) {
	topicByID := make(map[string]domain.ScoredTopic, len(st.Filtered))
	for _, topic := range st.Filtered {
		topicByID[topic.ID] = topic
	}

	var batch ports.Batch
	for i := range st.Angles {
		angle := &st.Angles[i]
		topic, ok := topicByID[angle.TopicID]
		if ok {
			a.curate(ctx, rc, angle, topic)
		}
		batch.Angles = append(batch.Angles, *angle)
	}

	debugLog(rc, "asset curation done", "angles", len(st.Angles))
	return batch, nil
}

func (a *AssetCurator) curate(ctx context.Context, rc RunContext, angle *domain.Angle, topic domain.ScoredTopic) {
	if !containsLink(angle.SupportingLinks, topic.URL) {
		angle.SupportingLinks = append(angle.SupportingLinks, topic.URL)
	}

	if a.collector == nil {
		return
	}

	collected, err := a.collector.Collect(ctx, topic.URL, topic.Title)
	if err != nil {
		warnLog(rc, "asset collection failed", "angle", angle.ID, "url", topic.URL, "error", err)
		return
	}

	for _, asset := range collected {
		if asset.Type == "link" {
			if !containsLink(angle.SupportingLinks, asset.URL) {
				angle.SupportingLinks = append(angle.SupportingLinks, asset.URL)
			}
			continue
		}
		angle.Assets = append(angle.Assets, asset)
	}
}

func (a *AssetCurator) ValidateOutput(st *State) error {
	for i, angle := range st.Angles {
		for j, asset := range angle.Assets {
			if asset.URL == "" {
				return &domain.ValidationError{Stage: a.Name(), Field: fmt.Sprintf("Angles[%d].Assets[%d].URL", i, j), Reason: "is required"}
			}
		}
	}
	return nil
}

func containsLink(links []string, target string) bool {
	for _, link := range links {
		if link == target {
			return true
		}
	}
	return false
}
