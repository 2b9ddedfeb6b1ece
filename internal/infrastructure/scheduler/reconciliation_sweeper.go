// Package scheduler runs the background reconciliation sweep. Each pass
// retries the sync stages that earlier invoice operations left open.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSweepInProgress is returned by Sweep while another pass is running
var ErrSweepInProgress = errors.New("reconciliation sweep already running")

// Reconciler re-runs one sync stage of one invoice
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID, id uuid.UUID, stage invoicing.Stage) (*appinvoicing.Outcome, error)
}

// SweepResult counts what one pass did
type SweepResult struct {
	Tenants   int `json:"tenants"`
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
}

// ReconciliationSweeper periodically retries open reconciliation gaps
type ReconciliationSweeper struct {
	log        invoicing.ReconciliationLog
	reconciler Reconciler
	config     config.SchedulerConfig
	logger     *zap.Logger

	sweeping  sync.Mutex
	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewReconciliationSweeper creates a sweeper; Start is a no-op when the
// scheduler is disabled
func NewReconciliationSweeper(log invoicing.ReconciliationLog, reconciler Reconciler, cfg config.SchedulerConfig, zl *zap.Logger) *ReconciliationSweeper {
	if zl == nil {
		zl = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &ReconciliationSweeper{
		log:        log,
		reconciler: reconciler,
		config:     cfg,
		logger:     zl,
	}
}

// Start launches the sweep loop
func (s *ReconciliationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("Reconciliation sweeper is disabled")
		return nil
	}
	s.isRunning = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Reconciliation sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass, bounded by ctx
func (s *ReconciliationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconciliation sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *ReconciliationSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, ErrSweepInProgress) && ctx.Err() == nil {
				s.logger.Error("Reconciliation sweep failed", zap.Error(err))
				continue
			}
			if result.Attempted > 0 {
				s.logger.Info("Reconciliation sweep finished",
					zap.Int("tenants", result.Tenants),
					zap.Int("attempted", result.Attempted),
					zap.Int("resolved", result.Resolved),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}

type gapKey struct {
	invoiceID uuid.UUID
	stage     invoicing.Stage
}

// Sweep runs one pass over every tenant with open gaps. At most BatchSize
// retryable gaps per tenant are looked at, oldest first; each distinct
// invoice and stage is reconciled once. A failed Reconcile bumps the gap's
// attempts and leaves it open for the next pass. Invoice and items gaps are
// never swept.
func (s *ReconciliationSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if !s.sweeping.TryLock() {
		return result, ErrSweepInProgress
	}
	defer s.sweeping.Unlock()

	tenants, err := s.log.OpenTenants(ctx)
	if err != nil {
		return result, err
	}
	result.Tenants = len(tenants)

	filter := shared.Filter{Page: 1, PageSize: s.config.BatchSize}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		gaps, err := s.log.FindRetryable(ctx, tenantID, filter)
		if err != nil {
			return result, err
		}

		tctx := logger.WithTenantID(ctx, tenantID.String())
		seen := make(map[gapKey]bool, len(gaps))
		for _, gap := range gaps {
			key := gapKey{gap.InvoiceID, gap.Stage}
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Attempted++

			if _, err := s.reconciler.Reconcile(tctx, tenantID, gap.InvoiceID, gap.Stage); err != nil {
				result.Failed++
				s.logger.Warn("Reconciliation retry failed",
					zap.String("tenant_id", tenantID.String()),
					zap.String("invoice_id", gap.InvoiceID.String()),
					zap.String("invoice_number", gap.InvoiceNumber),
					zap.String("stage", gap.Stage.String()),
					zap.Int("attempts", gap.Attempts+1),
					zap.Error(err),
				)
				continue
			}
			result.Resolved++
		}
	}
	return result, nil
}
