package exporter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/memes-airdrop/internal/chain"
	"github.com/memes-airdrop/internal/circuitbreaker"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// ParticipantStore is the persistence the export cycle needs
type ParticipantStore interface {
	eligibleSource
	referralLookup
	exportFlagger
	quarantiner
}

// BatchSubmitter sends batches to the airdrop contract
type BatchSubmitter interface {
	Submit(ctx context.Context, users, referrers []common.Address) (*chain.SubmitResult, error)
	Simulate(ctx context.Context, users, referrers []common.Address) error
}

// AuditSink records one row per submitted batch
type AuditSink interface {
	Record(ctx context.Context, batch *models.ExportBatch) error
}

// markTimeout bounds persisting the exported flags once a batch is confirmed
const markTimeout = 30 * time.Second

// Config configures the export cycle
type Config struct {
	BatchSize     int
	IsolatePoison bool
	// Breaker guards submission. Nil disables it.
	Breaker *circuitbreaker.CircuitBreaker
}

// CycleResult summarises one export cycle
type CycleResult struct {
	CycleID      string             `json:"cycleId"`
	Outcome      types.CycleOutcome `json:"outcome"`
	Selected     int                `json:"selected"`
	TxHash       string             `json:"txHash,omitempty"`
	BatchStatus  types.BatchStatus  `json:"batchStatus,omitempty"`
	Marked       int                `json:"marked"`
	MarkFailures int                `json:"markFailures"`
	Quarantined  int                `json:"quarantined"`
	Error        string             `json:"error,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	FinishedAt   time.Time          `json:"finishedAt"`
}

// Exporter wires the cycle stages together
type Exporter struct {
	selector  *Selector
	resolver  *SponsorResolver
	submitter BatchSubmitter
	marker    *Marker
	isolator  *Isolator
	audit     AuditSink
	breaker   *circuitbreaker.CircuitBreaker
	metrics   *metrics.ExportMetrics
	batchSize int
	now       func() time.Time
}

// New creates an exporter. audit and m may be nil.
func New(store ParticipantStore, submitter BatchSubmitter, audit AuditSink, m *metrics.ExportMetrics, cfg Config) *Exporter {
	e := &Exporter{
		selector:  NewSelector(store),
		resolver:  NewSponsorResolver(store, m),
		submitter: submitter,
		marker:    NewMarker(store, m),
		audit:     audit,
		breaker:   cfg.Breaker,
		metrics:   m,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
	if e.batchSize <= 0 {
		e.batchSize = 100
	}
	if cfg.IsolatePoison {
		e.isolator = NewIsolator(submitter, store, m)
	}
	return e
}

// NewSubmissionBreaker creates the circuit breaker that guards submission.
// Configuration and validation errors do not count as failures.
func NewSubmissionBreaker(maxFailures int, cooldown time.Duration) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:        "airdrop-submission",
		MaxFailures: maxFailures,
		Cooldown:    cooldown,
		Counts: func(err error) bool {
			return !apperrors.Is(err, apperrors.CategoryConfiguration) &&
				!apperrors.Is(err, apperrors.CategoryValidation)
		},
	})
}

// RunCycle runs select → resolve → submit → mark once. It never returns an error;
// the result carries the outcome.
func (e *Exporter) RunCycle(ctx context.Context) *CycleResult {
	result := &CycleResult{CycleID: uuid.New().String(), StartedAt: e.now().UTC()}

	logger := logging.FromContext(ctx).WithField("cycleId", result.CycleID)
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		result.FinishedAt = e.now().UTC()
		if e.metrics != nil {
			e.metrics.Cycles.WithLabelValues(string(result.Outcome)).Inc()
			e.metrics.CycleDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
		}
	}()

	candidates := e.selector.Select(ctx, e.batchSize)
	result.Selected = len(candidates)
	if len(candidates) == 0 {
		result.Outcome = types.OutcomeIdle
		logger.Debug("No eligible participants")
		return result
	}

	users := make([]common.Address, len(candidates))
	wallets := make([]string, len(candidates))
	for i, c := range candidates {
		users[i] = common.HexToAddress(c.WalletAddress)
		wallets[i] = c.WalletAddress
	}
	referrers := e.resolver.ResolveBatch(ctx, candidates)

	logger.WithField("batchSize", len(users)).Info("Submitting export batch")

	submitted, err := e.submit(ctx, users, referrers)
	if submitted != nil {
		result.TxHash = submitted.TxHash.Hex()
		result.BatchStatus = submitted.Status
	}

	switch {
	case err == nil:
		return e.finishConfirmed(ctx, result, wallets, users, referrers, submitted)

	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		result.Outcome = types.OutcomeCircuitOpen
		result.Error = err.Error()
		logger.WithError(err).Warn("Submission circuit open, batch left for a later cycle")
		return result

	case apperrors.Is(err, apperrors.CategoryConfiguration):
		result.Outcome = types.OutcomeConfigError
		result.Error = err.Error()
		logger.WithError(err).Error("Export cycle aborted: configuration error")
		return result

	default:
		return e.finishFailed(ctx, result, wallets, users, referrers, submitted, err)
	}
}

func (e *Exporter) submit(ctx context.Context, users, referrers []common.Address) (*chain.SubmitResult, error) {
	var submitted *chain.SubmitResult
	call := func(ctx context.Context) error {
		var err error
		submitted, err = e.submitter.Submit(ctx, users, referrers)
		return err
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	return submitted, err
}

func (e *Exporter) finishConfirmed(ctx context.Context, result *CycleResult, wallets []string, users, referrers []common.Address, submitted *chain.SubmitResult) *CycleResult {
	logger := logging.FromContext(ctx)
	result.Outcome = types.OutcomeExported
	result.BatchStatus = types.BatchStatusConfirmed

	if e.metrics != nil {
		e.metrics.Submissions.WithLabelValues(string(types.BatchStatusConfirmed)).Inc()
		e.metrics.BatchSize.Observe(float64(len(users)))
	}

	// The batch is on chain; persist the flags even if the caller is shutting down
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	marked := e.marker.Mark(markCtx, wallets)
	result.Marked = len(marked.Marked)
	result.MarkFailures = len(marked.Failed)

	logger.WithFields(map[string]interface{}{
		"txHash":          result.TxHash,
		"marked":          result.Marked,
		"alreadyExported": len(marked.AlreadyExported),
		"markFailures":    result.MarkFailures,
	}).Info("Export batch confirmed")

	e.record(markCtx, result, users, referrers, submitted)
	return result
}

func (e *Exporter) finishFailed(ctx context.Context, result *CycleResult, wallets []string, users, referrers []common.Address, submitted *chain.SubmitResult, err error) *CycleResult {
	logger := logging.FromContext(ctx)
	result.Outcome = types.OutcomeSubmissionFailed
	result.Error = err.Error()
	if result.BatchStatus == "" {
		result.BatchStatus = types.BatchStatusFailed
	}

	if e.metrics != nil {
		e.metrics.Submissions.WithLabelValues(string(result.BatchStatus)).Inc()
	}

	logger.WithError(err).WithFields(map[string]interface{}{
		"batchSize": len(wallets),
		"txHash":    result.TxHash,
	}).Error("Export batch submission failed, no participant marked")

	if e.isolator != nil && result.BatchStatus != types.BatchStatusTimeout && ctx.Err() == nil {
		quarantined := e.isolator.Isolate(ctx, users, referrers)
		result.Quarantined = len(quarantined)
	}

	e.record(context.WithoutCancel(ctx), result, users, referrers, submitted)
	return result
}

// record writes the audit row. Audit failures are logged and never affect the cycle.
func (e *Exporter) record(ctx context.Context, result *CycleResult, users, referrers []common.Address, submitted *chain.SubmitResult) {
	if e.audit == nil {
		return
	}

	batch := &models.ExportBatch{
		CycleID:     result.CycleID,
		Size:        uint32(len(users)), // #nosec G115 - bounded by batch size
		Users:       hexAddresses(users),
		Referrers:   hexAddresses(referrers),
		TxHash:      result.TxHash,
		Status:      result.BatchStatus,
		Error:       result.Error,
		Marked:      uint32(result.Marked),      // #nosec G115 - bounded by batch size
		Quarantined: uint32(result.Quarantined), // #nosec G115 - bounded by batch size
		StartedAt:   result.StartedAt,
		FinishedAt:  e.now().UTC(),
	}
	if submitted != nil {
		batch.BlockNumber = submitted.BlockNumber
		batch.GasUsed = submitted.GasUsed
	}

	auditCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := e.audit.Record(auditCtx, batch); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to record export batch audit row")
	}
}

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = strings.ToLower(a.Hex())
	}
	return out
}
