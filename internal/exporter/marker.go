package exporter

import (
	"context"

	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
)

// exportFlagger persists the exported flag
type exportFlagger interface {
	MarkExported(ctx context.Context, wallet string) (bool, error)
}

// MarkResult reports what happened to each wallet of a confirmed batch
type MarkResult struct {
	Marked          []string `json:"marked"`
	AlreadyExported []string `json:"alreadyExported,omitempty"`
	Failed          []string `json:"failed,omitempty"`
}

// Marker flips the exported flag for the wallets of a confirmed batch
type Marker struct {
	store   exportFlagger
	metrics *metrics.ExportMetrics
}

// NewMarker creates a marker. m may be nil.
func NewMarker(store exportFlagger, m *metrics.ExportMetrics) *Marker {
	return &Marker{store: store, metrics: m}
}

// Mark updates each wallet independently. Failures are logged and counted and
// do not stop the remaining updates. There is no retry: a wallet left unmarked
// stays eligible and is resubmitted by a later cycle.
func (m *Marker) Mark(ctx context.Context, wallets []string) MarkResult {
	logger := logging.FromContext(ctx)
	var result MarkResult

	for _, wallet := range wallets {
		changed, err := m.store.MarkExported(ctx, wallet)
		if err != nil {
			logger.WithError(apperrors.NewMarkingError(wallet, err)).Error("Failed to mark participant exported")
			result.Failed = append(result.Failed, wallet)
			if m.metrics != nil {
				m.metrics.MarkingFailures.Inc()
			}
			continue
		}
		if !changed {
			result.AlreadyExported = append(result.AlreadyExported, wallet)
			continue
		}
		result.Marked = append(result.Marked, wallet)
	}

	if m.metrics != nil {
		m.metrics.Marked.Add(float64(len(result.Marked)))
	}
	return result
}
