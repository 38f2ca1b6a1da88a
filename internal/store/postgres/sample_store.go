package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantera/tradesim/internal/domain"
)

// SampleStore implements domain.SampleStore using PostgreSQL. It keeps the
// full training history; the predictors' bounded in-memory windows are
// rebuilt from the most recent rows on startup.
type SampleStore struct {
	pool *pgxpool.Pool
}

// NewSampleStore creates a SampleStore backed by the given connection pool.
func NewSampleStore(pool *pgxpool.Pool) *SampleStore {
	return &SampleStore{pool: pool}
}

// InsertBatch inserts training samples using pgx Batch.
func (s *SampleStore) InsertBatch(ctx context.Context, samples []domain.TrainingSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO training_samples (model, features, label, observed_at)
		VALUES ($1, $2, $3, $4)`

	for _, smp := range samples {
		batch.Queue(query, smp.Model, smp.Features, smp.Label, smp.ObservedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range samples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert sample batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns up to limit of the model's newest samples in
// oldest-first order, so replaying them into a predictor's bounded window
// evicts the right end.
func (s *SampleStore) ListRecent(ctx context.Context, model string, limit int) ([]domain.TrainingSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT model, features, label, observed_at FROM (
			SELECT model, features, label, observed_at
			FROM training_samples
			WHERE model = $1
			ORDER BY observed_at DESC
			LIMIT $2
		) recent
		ORDER BY observed_at ASC`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list samples %s: %w", model, err)
	}
	defer rows.Close()

	var samples []domain.TrainingSample
	for rows.Next() {
		var smp domain.TrainingSample
		if err := rows.Scan(&smp.Model, &smp.Features, &smp.Label, &smp.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan sample: %w", err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list samples %s: %w", model, err)
	}
	return samples, nil
}
