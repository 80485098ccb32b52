package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// MemoryStore is an in-process RunStore used for dry runs and tests.
// Batch application is atomic under the store mutex, mirroring the
// transactional contract of the Postgres repository.
type MemoryStore struct {
	mu            sync.Mutex
	runs          map[string]*domain.Run
	topics        map[string]domain.TopicCandidate
	scored        map[string]domain.ScoredTopic
	angles        map[string]domain.Angle
	scores        []domain.AngleScore
	rejections    []domain.RejectedItem
	notifications []domain.NotificationRecord
}

var _ ports.RunStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   map[string]*domain.Run{},
		topics: map[string]domain.TopicCandidate{},
		scored: map[string]domain.ScoredTopic{},
		angles: map[string]domain.Angle{},
	}
}

// CreateRun registers a new run record.
func (s *MemoryStore) CreateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return &domain.PersistenceError{Op: "create run", Err: fmt.Errorf("run %s already exists", run.ID)}
	}
	stored := *run
	s.runs[run.ID] = &stored
	return nil
}

// UpdateRun overwrites the run's mutable fields.
func (s *MemoryStore) UpdateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return &domain.PersistenceError{Op: "update run", Err: fmt.Errorf("run %s not found", run.ID)}
	}
	stored := *run
	stored.CompletedStages = append([]string(nil), run.CompletedStages...)
	s.runs[run.ID] = &stored
	return nil
}

// Apply commits a stage batch under one lock acquisition.
func (s *MemoryStore) Apply(_ context.Context, runID string, batch ports.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, topic := range batch.Topics {
		topic.RunID = runID
		s.topics[topic.ID] = topic
	}
	for _, scored := range batch.ScoredTopics {
		s.scored[scored.ID] = scored
	}
	for _, angle := range batch.Angles {
		angle.RunID = runID
		s.angles[angle.ID] = angle
	}
	s.scores = append(s.scores, batch.AngleScores...)
	for _, rejection := range batch.Rejections {
		rejection.RunID = runID
		s.rejections = append(s.rejections, rejection)
	}
	return nil
}

// ReconcileInterrupted fails every run left in a non-terminal state.
func (s *MemoryStore) ReconcileInterrupted(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reconciled := 0
	for _, run := range s.runs {
		if run.Status.Terminal() {
			continue
		}
		run.Status = domain.RunFailed
		run.CompletedAt = now
		run.ErrorMessage = "interrupted: reconciled on startup"
		reconciled++
	}
	return reconciled, nil
}

// Notification returns the latest dispatch record for the run, or nil.
func (s *MemoryStore) Notification(_ context.Context, runID string) (*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].RunID == runID {
			record := s.notifications[i]
			return &record, nil
		}
	}
	return nil, nil
}

// SaveNotification appends a dispatch log entry.
func (s *MemoryStore) SaveNotification(_ context.Context, record domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, record)
	return nil
}

// Run returns a copy of the stored run, for assertions.
func (s *MemoryStore) Run(id string) (domain.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, false
	}
	return *run, true
}

// AnglesByRun lists stored angles belonging to the run.
func (s *MemoryStore) AnglesByRun(runID string) []domain.Angle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Angle
	for _, angle := range s.angles {
		if angle.RunID == runID {
			out = append(out, angle)
		}
	}
	return out
}

// RejectionsByRun lists rejection records belonging to the run.
func (s *MemoryStore) RejectionsByRun(runID string) []domain.RejectedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RejectedItem
	for _, rejection := range s.rejections {
		if rejection.RunID == runID {
			out = append(out, rejection)
		}
	}
	return out
}

// Notifications returns all dispatch records, for assertions.
func (s *MemoryStore) Notifications() []domain.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.NotificationRecord(nil), s.notifications...)
}
