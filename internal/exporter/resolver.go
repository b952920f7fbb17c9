package exporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// referralLookup finds the wallet that owns a referral code
type referralLookup interface {
	FindWalletByReferralCode(ctx context.Context, code string) (wallet string, found bool, err error)
}

// SponsorResolver maps a participant's referredBy value to the address credited on chain
type SponsorResolver struct {
	lookup  referralLookup
	metrics *metrics.ExportMetrics
}

// NewSponsorResolver creates a resolver. m may be nil.
func NewSponsorResolver(lookup referralLookup, m *metrics.ExportMetrics) *SponsorResolver {
	return &SponsorResolver{lookup: lookup, metrics: m}
}

// Resolve returns the sponsor's wallet, or the zero address when there is no usable sponsor.
// Lookup misses, storage errors and panics all degrade to the zero address.
func (r *SponsorResolver) Resolve(ctx context.Context, referredBy *string) (sponsor common.Address) {
	if referredBy == nil {
		return types.ZeroAddress
	}
	code := strings.TrimSpace(*referredBy)
	if code == "" {
		return types.ZeroAddress
	}

	logger := logging.FromContext(ctx).WithField("referredBy", code)

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(logger, metrics.ResolutionStorageError, fmt.Errorf("panic during lookup: %v", rec), code)
			sponsor = types.ZeroAddress
		}
	}()

	wallet, found, err := r.lookup.FindWalletByReferralCode(ctx, code)
	if err != nil {
		r.fail(logger, metrics.ResolutionStorageError, err, code)
		return types.ZeroAddress
	}
	if !found {
		logger.Debug("Referral code not found, using zero sponsor")
		return types.ZeroAddress
	}

	normalized, ok := types.NormalizeAddress(wallet)
	if !ok {
		r.fail(logger, metrics.ResolutionInvalidStored, fmt.Errorf("stored wallet %q is not an address", wallet), code)
		return types.ZeroAddress
	}
	return common.HexToAddress(normalized)
}

// ResolveBatch resolves every candidate in order, looking each distinct code up once
func (r *SponsorResolver) ResolveBatch(ctx context.Context, candidates []models.ExportCandidate) []common.Address {
	sponsors := make([]common.Address, len(candidates))
	seen := make(map[string]common.Address)

	for i, c := range candidates {
		if c.ReferredBy == nil {
			sponsors[i] = types.ZeroAddress
			continue
		}
		key := strings.TrimSpace(*c.ReferredBy)
		if addr, ok := seen[key]; ok {
			sponsors[i] = addr
			continue
		}
		addr := r.Resolve(ctx, c.ReferredBy)
		seen[key] = addr
		sponsors[i] = addr
	}
	return sponsors
}

func (r *SponsorResolver) fail(logger *logging.Logger, reason string, cause error, code string) {
	logger.WithError(apperrors.NewResolutionError(code, cause)).
		WithField("reason", reason).
		Warn("Sponsor resolution failed, using zero sponsor")
	if r.metrics != nil {
		r.metrics.ResolutionFailures.WithLabelValues(reason).Inc()
	}
}
