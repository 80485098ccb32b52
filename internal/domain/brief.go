package domain

import "time"

// Brief is the finalized digest assembled from accepted angles, ready
// for the notification adapter.
type Brief struct {
	RunID            string
	GeneratedAt      time.Time
	Angles           []Angle
	TopicsConsidered int
	TopicsFiltered   int
	AnglesGenerated  int
}

// Empty reports whether the brief carries no publishable angles.
func (b *Brief) Empty() bool {
	return b == nil || len(b.Angles) == 0
}
