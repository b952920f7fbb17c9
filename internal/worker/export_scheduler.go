package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memes-airdrop/internal/exporter"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
)

const (
	// DefaultExportInterval is the pause between two scheduled cycles
	DefaultExportInterval = 60 * time.Second

	stopTimeout    = 30 * time.Second
	releaseTimeout = 5 * time.Second
)

var (
	// ErrBusy is returned by RunOnce while a cycle is in flight
	ErrBusy = errors.New("export cycle already in progress")
	// ErrNotRunning is returned by RunOnce before Start or after Stop
	ErrNotRunning = errors.New("export scheduler is not running")
)

// CycleRunner runs one export cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) *exporter.CycleResult
}

// CycleLock serialises cycles across replicas
type CycleLock interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// ExportSchedulerConfig holds configuration for the export scheduler
type ExportSchedulerConfig struct {
	Exporter CycleRunner
	// Lock is optional. When set, a cycle only runs while holding it.
	Lock     CycleLock
	Interval time.Duration
	Metrics  *metrics.ExportMetrics
	Logger   *logging.Logger
}

// ExportSchedulerStatus is a snapshot of the scheduler
type ExportSchedulerStatus struct {
	Running         bool                  `json:"running"`
	InFlight        bool                  `json:"inFlight"`
	IntervalSeconds int                   `json:"intervalSeconds"`
	LastRunTime     time.Time             `json:"lastRunTime"`
	CyclesRun       int64                 `json:"cyclesRun"`
	CyclesSkipped   int64                 `json:"cyclesSkipped"`
	LastSkipReason  string                `json:"lastSkipReason,omitempty"`
	LastCycle       *exporter.CycleResult `json:"lastCycle,omitempty"`
}

// ExportScheduler runs the export cycle once at start and then on every tick.
// A tick that arrives while a cycle is still running is skipped.
type ExportScheduler struct {
	exporter CycleRunner
	lock     CycleLock
	interval time.Duration
	metrics  *metrics.ExportMetrics
	logger   *logging.Logger

	busy     atomic.Bool
	inflight sync.WaitGroup

	mu             sync.RWMutex
	running        bool
	stopCh         chan struct{}
	doneCh         chan struct{}
	cycleCtx       context.Context
	cancel         context.CancelFunc
	lastRunTime    time.Time
	lastCycle      *exporter.CycleResult
	lastSkipReason string
	cyclesRun      int64
	cyclesSkipped  int64
}

// NewExportScheduler creates a new export scheduler
func NewExportScheduler(cfg *ExportSchedulerConfig) (*ExportScheduler, error) {
	if cfg == nil || cfg.Exporter == nil {
		return nil, fmt.Errorf("exporter cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultExportInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &ExportScheduler{
		exporter: cfg.Exporter,
		lock:     cfg.Lock,
		interval: interval,
		metrics:  cfg.Metrics,
		logger:   logger.WithField("component", "export_scheduler"),
	}, nil
}

// Start runs the first cycle right away and schedules the rest
func (s *ExportScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("export scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.cycleCtx, s.cancel = context.WithCancel(logging.WithLogger(ctx, s.logger))
	cycleCtx, stopCh, doneCh := s.cycleCtx, s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval.String()).Info("Starting export scheduler")

	go s.loop(cycleCtx, stopCh, doneCh)
	return nil
}

// Stop cancels any in-flight cycle and waits for the loop and every cycle to exit
func (s *ExportScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("export scheduler is not running")
	}
	s.running = false
	stopCh, doneCh, cancel := s.stopCh, s.doneCh, s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping export scheduler")

	close(stopCh)
	cancel()

	finished := make(chan struct{})
	go func() {
		<-doneCh
		s.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		s.logger.Warn("Export scheduler stop timed out")
		return ctx.Err()
	case <-time.After(stopTimeout):
		s.logger.Warnf("Export scheduler stop timed out after %s", stopTimeout)
		return fmt.Errorf("stop timeout")
	}

	s.logger.Info("Export scheduler stopped")
	return nil
}

func (s *ExportScheduler) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a cycle unless one is already in flight. The cycle runs off the
// loop goroutine so later ticks keep arriving and are counted as skipped.
func (s *ExportScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug("Previous export cycle still running, skipping tick")
		s.skip(metrics.SkipBusy)
		return
	}
	s.dispatch(ctx)
}

// dispatch expects the busy flag to be held
func (s *ExportScheduler) dispatch(ctx context.Context) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run(ctx)
	}()
}

// RunOnce starts a cycle in the background. It returns ErrBusy when a cycle
// is already in flight.
func (s *ExportScheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.skipLocked(metrics.SkipBusy)
		return ErrBusy
	}

	logging.FromContext(ctx).Info("Export cycle triggered on demand")

	s.dispatch(s.cycleCtx)
	return nil
}

// run expects the busy flag to be held and clears it on return
func (s *ExportScheduler) run(ctx context.Context) {
	defer s.busy.Store(false)

	if s.lock != nil {
		token, ok, err := s.lock.Acquire(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Cycle lock unavailable, skipping export cycle")
			s.skip(metrics.SkipLockError)
			return
		}
		if !ok {
			s.logger.Debug("Cycle lock held elsewhere, skipping export cycle")
			s.skip(metrics.SkipLockHeld)
			return
		}
		defer s.release(ctx, token)
	}

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.mu.Unlock()

	result := s.exporter.RunCycle(ctx)

	s.mu.Lock()
	s.cyclesRun++
	s.lastCycle = result
	s.mu.Unlock()
}

func (s *ExportScheduler) release(ctx context.Context, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.lock.Release(releaseCtx, token); err != nil {
		s.logger.WithError(err).Warn("Failed to release cycle lock")
	}
}

func (s *ExportScheduler) skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipLocked(reason)
}

func (s *ExportScheduler) skipLocked(reason string) {
	s.cyclesSkipped++
	s.lastSkipReason = reason
	if s.metrics != nil {
		s.metrics.CyclesSkipped.WithLabelValues(reason).Inc()
	}
}

// GetStatus returns current scheduler status
func (s *ExportScheduler) GetStatus() *ExportSchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &ExportSchedulerStatus{
		Running:         s.running,
		InFlight:        s.busy.Load(),
		IntervalSeconds: int(s.interval.Seconds()),
		LastRunTime:     s.lastRunTime,
		CyclesRun:       s.cyclesRun,
		CyclesSkipped:   s.cyclesSkipped,
		LastSkipReason:  s.lastSkipReason,
		LastCycle:       s.lastCycle,
	}
}
