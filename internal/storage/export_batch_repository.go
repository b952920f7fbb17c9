package storage

import (
	"context"
	"fmt"

	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// ExportBatchRepository appends export audit rows to ClickHouse
type ExportBatchRepository struct {
	db *ClickHouseDB
}

// NewExportBatchRepository creates a new export batch repository
func NewExportBatchRepository(db *ClickHouseDB) *ExportBatchRepository {
	return &ExportBatchRepository{db: db}
}

// Record appends one audit row
func (r *ExportBatchRepository) Record(ctx context.Context, b *models.ExportBatch) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `INSERT INTO export_batches`)
	if err != nil {
		return fmt.Errorf("failed to prepare export batch insert: %w", err)
	}

	err = batch.Append(
		b.CycleID,
		b.Size,
		b.Users,
		b.Referrers,
		b.TxHash,
		string(b.Status),
		b.BlockNumber,
		b.GasUsed,
		b.Error,
		b.Marked,
		b.Quarantined,
		b.StartedAt,
		b.FinishedAt,
	)
	if err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append export batch row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send export batch row: %w", err)
	}
	return nil
}

// ListRecent returns the newest audit rows, newest first
func (r *ExportBatchRepository) ListRecent(ctx context.Context, limit int) ([]*models.ExportBatch, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT cycle_id, size, users, referrers, tx_hash, status,
		       block_number, gas_used, error, marked, quarantined, started_at, finished_at
		FROM export_batches
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query export batches: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var batches []*models.ExportBatch
	for rows.Next() {
		var (
			b      models.ExportBatch
			status string
		)
		if err := rows.Scan(
			&b.CycleID, &b.Size, &b.Users, &b.Referrers, &b.TxHash, &status,
			&b.BlockNumber, &b.GasUsed, &b.Error, &b.Marked, &b.Quarantined,
			&b.StartedAt, &b.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export batch: %w", err)
		}
		b.Status = types.BatchStatus(status)
		b.StartedAt = b.StartedAt.UTC()
		b.FinishedAt = b.FinishedAt.UTC()
		batches = append(batches, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export batches: %w", err)
	}
	return batches, nil
}
