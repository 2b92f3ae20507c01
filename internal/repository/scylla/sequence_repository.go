package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"saferental-service/internal/util"
)

// SequenceRepository allocates year-scoped agreement numbers. Increments go
// through lightweight transactions so two concurrent creators can never see
// the same value; a failed creation downstream leaves a gap, never a reuse.
type SequenceRepository struct {
	client *ScyllaClient
}

const casRetries = 10

func NewSequenceRepository(client *ScyllaClient, logger *zap.Logger) *SequenceRepository {
	return &SequenceRepository{client: client}
}

func (r *SequenceRepository) NextAgreementNumber(ctx context.Context) (string, error) {
	year := time.Now().UTC().Format("2006")

	seq, err := r.increment(ctx, year)
	if err != nil {
		return "", err
	}

	return formatAgreementNumber(year, seq), nil
}

// formatAgreementNumber renders the public SR-<year>-<seq> form, zero padded
// to six digits.
func formatAgreementNumber(year string, seq int) string {
	return fmt.Sprintf("SR-%s-%06d", year, seq)
}

func (r *SequenceRepository) increment(ctx context.Context, year string) (int, error) {
	// First allocation of the year.
	insert := r.client.Query(`
	INSERT INTO agreement_counters (year, seq) VALUES (?, 1) IF NOT EXISTS`, year).WithContext(ctx)
	applied, err := insert.MapScanCAS(map[string]interface{}{})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize counter: %w", err)
	}
	if applied {
		return 1, nil
	}

	// Compare-and-set loop against concurrent allocators.
	for attempt := 0; attempt < casRetries; attempt++ {
		var current int
		if err := r.client.Query(`
		SELECT seq FROM agreement_counters WHERE year = ?`, year).WithContext(ctx).Scan(&current); err != nil {
			return 0, fmt.Errorf("failed to read counter: %w", err)
		}

		next := current + 1
		update := r.client.Query(`
		UPDATE agreement_counters SET seq = ? WHERE year = ? IF seq = ?`,
			next, year, current).WithContext(ctx)
		applied, err := update.MapScanCAS(map[string]interface{}{})
		if err != nil {
			return 0, fmt.Errorf("failed to advance counter: %w", err)
		}
		if applied {
			return next, nil
		}
	}

	util.Error("Counter contention exhausted retries", zap.String("year", year))
	return 0, fmt.Errorf("failed to allocate agreement number after %d attempts", casRetries)
}
