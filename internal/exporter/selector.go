// Package exporter runs one airdrop export cycle: select, resolve sponsors, submit, mark.
package exporter

import (
	"context"

	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// eligibleSource lists participants that passed every gate and are not yet exported
type eligibleSource interface {
	SelectEligible(ctx context.Context, limit int) ([]models.ExportCandidate, error)
}

// Selector picks the next batch of export candidates
type Selector struct {
	source eligibleSource
}

// NewSelector creates a selector over source
func NewSelector(source eligibleSource) *Selector {
	return &Selector{source: source}
}

// Select returns up to limit candidates in stable order.
// Storage errors are logged and yield an empty batch.
func (s *Selector) Select(ctx context.Context, limit int) []models.ExportCandidate {
	logger := logging.FromContext(ctx)

	rows, err := s.source.SelectEligible(ctx, limit)
	if err != nil {
		logger.WithError(apperrors.NewSelectionError(err)).Error("selection error")
		return nil
	}

	candidates := make([]models.ExportCandidate, 0, len(rows))
	for _, row := range rows {
		wallet, ok := types.NormalizeAddress(row.WalletAddress)
		if !ok {
			logger.WithField("walletAddress", row.WalletAddress).Warn("Skipping participant with malformed wallet address")
			continue
		}
		row.WalletAddress = wallet
		candidates = append(candidates, row)
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
