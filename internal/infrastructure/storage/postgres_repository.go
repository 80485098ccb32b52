package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// PostgresRepository persists runs, topics, angles, scores, rejections
// and notification records into Postgres. Each stage batch commits in
// one transaction; transactions never span remote calls.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.RunStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the tables when absent. Development convenience;
// production deployments run migrations instead.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agent_runs (
			id UUID PRIMARY KEY,
			config_fingerprint VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			completed_stages TEXT[] NOT NULL DEFAULT '{}',
			error_message TEXT,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS topics_seen (
			id UUID PRIMARY KEY,
			run_id UUID REFERENCES agent_runs(id),
			title VARCHAR(500) NOT NULL,
			source VARCHAR(100) NOT NULL,
			source_type VARCHAR(50) NOT NULL,
			url VARCHAR(2000) NOT NULL,
			summary TEXT,
			authors TEXT[],
			tags TEXT[],
			published_at TIMESTAMPTZ,
			discovered_at TIMESTAMPTZ NOT NULL,
			relevance_score DOUBLE PRECISION,
			novelty_score DOUBLE PRECISION,
			impact_score DOUBLE PRECISION,
			combined_score DOUBLE PRECISION,
			rejected BOOLEAN NOT NULL DEFAULT FALSE,
			rejection_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS angles_generated (
			id UUID PRIMARY KEY,
			run_id UUID REFERENCES agent_runs(id),
			topic_id UUID REFERENCES topics_seen(id),
			stance TEXT NOT NULL,
			why_it_matters TEXT NOT NULL,
			second_order_effects TEXT[],
			relevant_for TEXT[],
			confidence DOUBLE PRECISION NOT NULL,
			novelty_score DOUBLE PRECISION,
			embedding REAL[],
			status VARCHAR(20) NOT NULL,
			insight TEXT,
			framing_points TEXT[],
			supporting_links TEXT[],
			assets JSONB,
			is_selected BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS angle_scores (
			id UUID PRIMARY KEY,
			angle_id UUID REFERENCES angles_generated(id),
			kind VARCHAR(50) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			scored_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rejected_items (
			id UUID PRIMARY KEY,
			run_id UUID REFERENCES agent_runs(id),
			item_type VARCHAR(50) NOT NULL,
			item_id UUID NOT NULL,
			rejection_reason TEXT NOT NULL,
			rejection_stage VARCHAR(50) NOT NULL,
			rejected_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications_sent (
			id UUID PRIMARY KEY,
			run_id UUID REFERENCES agent_runs(id),
			channel VARCHAR(50) NOT NULL,
			delivered_at TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS ix_topics_run_id ON topics_seen (run_id)`,
		`CREATE INDEX IF NOT EXISTS ix_angles_run_id ON angles_generated (run_id)`,
		`CREATE INDEX IF NOT EXISTS ix_angles_created_at ON angles_generated (created_at)`,
		`CREATE INDEX IF NOT EXISTS ix_notifications_run_id ON notifications_sent (run_id)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return &domain.PersistenceError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// CreateRun inserts the initial run record.
func (r *PostgresRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	query := r.sb.Insert("agent_runs").
		Columns("id", "config_fingerprint", "status", "started_at", "completed_stages", "dry_run").
		Values(run.ID, run.ConfigFingerprint, run.Status, run.StartedAt, pq.Array(run.CompletedStages), run.DryRun)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "create run", Err: err}
	}
	return nil
}

// UpdateRun writes the run's mutable fields.
func (r *PostgresRepository) UpdateRun(ctx context.Context, run *domain.Run) error {
	query := r.sb.Update("agent_runs").
		Set("status", run.Status).
		Set("completed_stages", pq.Array(run.CompletedStages)).
		Set("error_message", nullString(run.ErrorMessage)).
		Where(sq.Eq{"id": run.ID})

	if !run.CompletedAt.IsZero() {
		query = query.Set("completed_at", run.CompletedAt)
	}

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "update run", Err: err}
	}
	return nil
}

// Apply commits every record of one stage execution atomically.
func (r *PostgresRepository) Apply(ctx context.Context, runID string, batch ports.Batch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin batch", Err: err}
	}

	if err := r.applyBatch(ctx, tx, runID, batch); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit batch", Err: err}
	}
	return nil
}

func (r *PostgresRepository) applyBatch(ctx context.Context, tx *sql.Tx, runID string, batch ports.Batch) error {
	for _, topic := range batch.Topics {
		query := r.sb.Insert("topics_seen").
			Columns("id", "run_id", "title", "source", "source_type", "url", "summary",
				"authors", "tags", "published_at", "discovered_at").
			Values(topic.ID, runID, topic.Title, topic.Source, topic.SourceType, topic.URL, topic.Summary,
				pq.Array(topic.Authors), pq.Array(topic.Tags), nullTime(topic.PublishedAt), topic.DiscoveredAt)

		if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
			return &domain.PersistenceError{Op: "insert topic", Err: err}
		}
	}

	for _, scored := range batch.ScoredTopics {
		query := r.sb.Update("topics_seen").
			Set("relevance_score", scored.Scores.Relevance).
			Set("novelty_score", scored.Scores.Novelty).
			Set("impact_score", scored.Scores.Impact).
			Set("combined_score", scored.Scores.Combined).
			Set("rejected", scored.Rejected).
			Set("rejection_reason", nullString(scored.RejectionReason)).
			Where(sq.Eq{"id": scored.ID})

		if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
			return &domain.PersistenceError{Op: "update topic scores", Err: err}
		}
	}

	for _, angle := range batch.Angles {
		assets, err := json.Marshal(angle.Assets)
		if err != nil {
			return &domain.PersistenceError{Op: "marshal assets", Err: err}
		}

		query := r.sb.Insert("angles_generated").
			Columns("id", "run_id", "topic_id", "stance", "why_it_matters",
				"second_order_effects", "relevant_for", "confidence", "novelty_score",
				"embedding", "status", "insight", "framing_points", "supporting_links",
				"assets", "is_selected", "created_at").
			Values(angle.ID, runID, angle.TopicID, angle.Stance, angle.WhyItMatters,
				pq.Array(angle.SecondOrderEffects), pq.Array(angle.RelevantFor), angle.Confidence, angle.NoveltyScore,
				pq.Array(angle.Embedding), angle.Status, nullString(angle.Insight),
				pq.Array(angle.FramingPoints), pq.Array(angle.SupportingLinks),
				assets, angle.Selected, angle.CreatedAt).
			Suffix(`ON CONFLICT (id) DO UPDATE
				SET status = EXCLUDED.status,
				    novelty_score = EXCLUDED.novelty_score,
				    embedding = EXCLUDED.embedding,
				    insight = EXCLUDED.insight,
				    framing_points = EXCLUDED.framing_points,
				    supporting_links = EXCLUDED.supporting_links,
				    assets = EXCLUDED.assets,
				    is_selected = EXCLUDED.is_selected`)

		if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
			return &domain.PersistenceError{Op: "upsert angle", Err: err}
		}
	}

	for _, score := range batch.AngleScores {
		query := r.sb.Insert("angle_scores").
			Columns("id", "angle_id", "kind", "value", "scored_at").
			Values(idOrNew(score.ID), score.AngleID, score.Kind, score.Value, score.ScoredAt)

		if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
			return &domain.PersistenceError{Op: "insert angle score", Err: err}
		}
	}

	for _, rejection := range batch.Rejections {
		query := r.sb.Insert("rejected_items").
			Columns("id", "run_id", "item_type", "item_id", "rejection_reason", "rejection_stage", "rejected_at").
			Values(idOrNew(rejection.ID), runID, rejection.ItemType, rejection.ItemID,
				rejection.Reason, rejection.Stage, rejection.RejectedAt)

		if _, err := query.RunWith(tx).ExecContext(ctx); err != nil {
			return &domain.PersistenceError{Op: "insert rejection", Err: err}
		}
	}

	return nil
}

// ReconcileInterrupted finalizes runs a prior process left non-terminal.
func (r *PostgresRepository) ReconcileInterrupted(ctx context.Context, now time.Time) (int, error) {
	query := r.sb.Update("agent_runs").
		Set("status", domain.RunFailed).
		Set("completed_at", now).
		Set("error_message", "interrupted: reconciled on startup").
		Where(sq.Eq{"status": []domain.RunStatus{domain.RunPending, domain.RunRunning}})

	result, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "reconcile runs", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &domain.PersistenceError{Op: "reconcile runs", Err: err}
	}
	return int(affected), nil
}

// Notification returns the latest dispatch record for the run, or nil.
func (r *PostgresRepository) Notification(ctx context.Context, runID string) (*domain.NotificationRecord, error) {
	query := r.sb.Select("id", "run_id", "channel", "delivered_at", "success", "error_message").
		From("notifications_sent").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("delivered_at DESC").
		Limit(1)

	var (
		record domain.NotificationRecord
		errMsg sql.NullString
	)
	err := query.RunWith(r.db).QueryRowContext(ctx).
		Scan(&record.ID, &record.RunID, &record.Channel, &record.DeliveredAt, &record.Success, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load notification", Err: err}
	}

	record.ErrorMessage = errMsg.String
	return &record, nil
}

// SaveNotification appends a dispatch log entry.
func (r *PostgresRepository) SaveNotification(ctx context.Context, record domain.NotificationRecord) error {
	query := r.sb.Insert("notifications_sent").
		Columns("id", "run_id", "channel", "delivered_at", "success", "error_message").
		Values(idOrNew(record.ID), record.RunID, record.Channel, record.DeliveredAt,
			record.Success, nullString(record.ErrorMessage))

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "save notification", Err: err}
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
