package domain

import "time"

// TopicCandidate is a raw discovered item produced by the scout stage.
// Never mutated after creation.
type TopicCandidate struct {
	ID           string
	RunID        string
	Title        string
	Source       string
	SourceType   string
	URL          string
	Summary      string
	Authors      []string
	Tags         []string
	PublishedAt  time.Time
	DiscoveredAt time.Time
}

// TopicScores holds relevance-filter scoring dimensions, each in [0,1].
type TopicScores struct {
	Relevance float64
	Novelty   float64
	Impact    float64
	Combined  float64
}

// ScoredTopic is a candidate annotated by the relevance filter.
type ScoredTopic struct {
	TopicCandidate
	Scores          TopicScores
	Rejected        bool
	RejectionReason string
}
