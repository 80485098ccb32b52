package domain

import "time"

// AngleStatus enumerates classification outcomes for a generated angle.
type AngleStatus string

const (
	AngleCandidate AngleStatus = "candidate"
	AngleAccepted  AngleStatus = "accepted"
	AngleRejected  AngleStatus = "rejected"
)

// Angle is a generated insight candidate tied to exactly one topic and
// one run. Created by the insight generator, enriched by the editor,
// classified by the redundancy engine. Later runs read it but never
// mutate it.
type Angle struct {
	ID                 string
	RunID              string
	TopicID            string
	Stance             string
	WhyItMatters       string
	SecondOrderEffects []string
	RelevantFor        []string
	Confidence         float64
	NoveltyScore       float64
	Embedding          []float32
	Status             AngleStatus
	CreatedAt          time.Time

	// Editor enrichment.
	Insight         string
	FramingPoints   []string
	SupportingLinks []string
	Assets          []Asset
	Selected        bool
}

// Asset is a supporting artifact (figure, diagram, link) curated for an angle.
type Asset struct {
	URL         string
	Type        string
	Description string
	SourceTitle string
}

// AngleScore is an append-only scoring event; history is preserved
// rather than overwritten so replays can be audited.
type AngleScore struct {
	ID       string
	AngleID  string
	Kind     string
	Value    float64
	ScoredAt time.Time
}

// RejectedItem records a topic or angle that failed a stage. Write-once.
type RejectedItem struct {
	ID         string
	RunID      string
	ItemType   string
	ItemID     string
	Reason     string
	Stage      string
	RejectedAt time.Time
}

// Rejection reason codes.
const (
	ReasonRedundant     = "redundant"
	ReasonLowRelevance  = "low_relevance"
	ReasonHypeContent   = "hype_content"
	ReasonThinContent   = "thin_content"
	ReasonOffTopic      = "off_topic"
	ReasonScoringFailed = "scoring_failed"
	ReasonGeneration    = "generation_failed"
)

// NotificationRecord is the dispatch log entry for a run's brief,
// consulted read-only for idempotence before re-delivery.
type NotificationRecord struct {
	ID           string
	RunID        string
	Channel      string
	DeliveredAt  time.Time
	Success      bool
	ErrorMessage string
}
