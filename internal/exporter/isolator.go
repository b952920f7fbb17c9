package exporter

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
)

// pairSimulator dry-runs a batch against the contract
type pairSimulator interface {
	Simulate(ctx context.Context, users, referrers []common.Address) error
}

// quarantiner removes a participant from the eligible set
type quarantiner interface {
	MarkQuarantined(ctx context.Context, wallet string) (bool, error)
}

// Isolator finds the pairs of a failed batch that revert on their own and quarantines them
type Isolator struct {
	simulator pairSimulator
	store     quarantiner
	metrics   *metrics.ExportMetrics
}

// NewIsolator creates an isolator. m may be nil.
func NewIsolator(simulator pairSimulator, store quarantiner, m *metrics.ExportMetrics) *Isolator {
	return &Isolator{simulator: simulator, store: store, metrics: m}
}

// Isolate simulates each (user, referrer) pair and quarantines the users whose pair reverts.
// When every pair fails the batch-level problem is assumed to be elsewhere and nothing is quarantined.
func (i *Isolator) Isolate(ctx context.Context, users, referrers []common.Address) []string {
	logger := logging.FromContext(ctx)

	var poisoned []common.Address
	for idx := range users {
		err := i.simulator.Simulate(ctx, users[idx:idx+1], referrers[idx:idx+1])
		if err == nil {
			continue
		}
		if apperrors.Is(err, apperrors.CategoryConfiguration) || ctx.Err() != nil {
			logger.WithError(err).Warn("Aborting poison isolation")
			return nil
		}
		if !isRevert(err) {
			logger.WithError(err).WithField("user", users[idx].Hex()).Warn("Simulation failed without a revert, not quarantining")
			continue
		}
		poisoned = append(poisoned, users[idx])
	}

	if len(poisoned) == 0 {
		return nil
	}
	if len(poisoned) == len(users) && len(users) > 1 {
		logger.WithField("batchSize", len(users)).Warn("Every pair reverts on its own, not quarantining")
		return nil
	}

	var quarantined []string
	for _, user := range poisoned {
		wallet := strings.ToLower(user.Hex())
		changed, err := i.store.MarkQuarantined(ctx, wallet)
		if err != nil {
			logger.WithError(err).WithField("walletAddress", wallet).Error("Failed to quarantine participant")
			continue
		}
		if changed {
			quarantined = append(quarantined, wallet)
			logger.WithField("walletAddress", wallet).Warn("Quarantined participant whose export reverts")
		}
	}

	if i.metrics != nil {
		i.metrics.Quarantined.Add(float64(len(quarantined)))
	}
	return quarantined
}

// executionRevertedCode is the JSON-RPC error code nodes use for a reverted eth_call
const executionRevertedCode = 3

// isRevert reports whether err is an execution revert rather than a transport failure.
// Nodes that do not set the error code are matched on the message.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == executionRevertedCode {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
