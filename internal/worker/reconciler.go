package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"revenue/internal/amqp"
	"revenue/internal/log"
	"revenue/internal/storage"
)

// DriftReader compares partner running totals with the ledger.
type DriftReader interface {
	PartnerDrift(ctx context.Context, partnerIDs []int64) ([]storage.PartnerDrift, error)
}

type ReconcilerConfig struct {
	// AuditInterval is how often every partner is audited (default: 10m).
	AuditInterval time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{AuditInterval: 10 * time.Minute}
}

// Reconciler audits partner totals after change events and on a timer.
// Drift is reported, never repaired: creates leave totals untouched while
// deletes decrement them, so drift is the expected steady state.
type Reconciler struct {
	repo   DriftReader
	config ReconcilerConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statsMu sync.Mutex
	stats   AuditStats
}

// AuditStats summarizes the most recent audit pass.
type AuditStats struct {
	Audits      int64
	Checked     int
	Drifted     int
	LastAuditAt time.Time
}

func NewReconciler(repo DriftReader, config ReconcilerConfig, logger *log.Logger) *Reconciler {
	if config.AuditInterval <= 0 {
		config.AuditInterval = DefaultReconcilerConfig().AuditInterval
	}
	if logger == nil {
		logger = log.Default().WithComponent(log.ComponentWorker)
	}
	return &Reconciler{repo: repo, config: config, logger: logger}
}

// HandleEvent audits the partners touched by ev.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *amqp.RevenueEvent) error {
	r.logger.DebugContext(ctx, "Processing revenue event",
		log.FieldEventID, ev.EventID,
		log.FieldEventType, ev.Type,
		log.FieldCount, len(ev.RevenueIDs))

	if len(ev.PartnerIDs) == 0 {
		return nil
	}
	if _, err := r.Audit(ctx, ev.PartnerIDs); err != nil {
		return fmt.Errorf("audit after %s: %w", ev.Type, err)
	}
	return nil
}

// Audit checks the given partners, or all partners when ids is empty, and
// returns the drifted rows.
func (r *Reconciler) Audit(ctx context.Context, partnerIDs []int64) ([]storage.PartnerDrift, error) {
	rows, err := r.repo.PartnerDrift(ctx, partnerIDs)
	if err != nil {
		return nil, fmt.Errorf("read partner drift: %w", err)
	}

	var drifted []storage.PartnerDrift
	for _, d := range rows {
		if !d.Drifted() {
			continue
		}
		drifted = append(drifted, d)
		r.logger.WarnContext(ctx, "Partner totals drift from ledger",
			log.FieldPartnerID, d.PartnerID,
			log.FieldPartnerName, d.Name,
			"stored_transactions", d.StoredTransactions,
			"ledger_transactions", d.LedgerTransactions,
			"stored_amount", d.StoredAmount.String(),
			"ledger_amount", d.LedgerAmount.String())
	}

	r.statsMu.Lock()
	r.stats.Audits++
	r.stats.Checked = len(rows)
	r.stats.Drifted = len(drifted)
	r.stats.LastAuditAt = time.Now()
	r.statsMu.Unlock()

	return drifted, nil
}

func (r *Reconciler) Stats() AuditStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Start launches the periodic audit loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	r.logger.InfoContext(ctx, "Reconciler started", "audit_interval", r.config.AuditInterval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx to expire.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Reconciler stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.AuditInterval)
	defer ticker.Stop()

	r.auditAll(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.auditAll(ctx)
		}
	}
}

func (r *Reconciler) auditAll(ctx context.Context) {
	drifted, err := r.Audit(ctx, nil)
	if err != nil {
		r.logger.ErrorContext(ctx, "Periodic audit failed", log.FieldError, err)
		return
	}
	r.logger.InfoContext(ctx, "Periodic audit completed", "drifted", len(drifted))
}
