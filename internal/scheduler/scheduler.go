// Package scheduler runs the periodic fee sweep across all open funds.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/types"
)

// FundLister enumerates registered funds.
type FundLister interface {
	ListFunds(ctx context.Context, limit, offset int) ([]*models.Fund, error)
}

// InvestmentLister enumerates active investments within a fund.
type InvestmentLister interface {
	ListActive(ctx context.Context, fundID string, limit int) ([]*models.Investment, error)
}

// FeeSweeper applies accrued fees to a batch of investments.
type FeeSweeper interface {
	SweepFees(ctx context.Context, fundID, caller string, investmentIDs []uint64) ([]ledger.FeeSweepResult, error)
}

const listPageSize = 200

// Scheduler drives cron-based fee sweeps. Each run walks every open fund
// and sweeps its active investments in batches, acting as the fund's
// manager.
type Scheduler struct {
	cron        *cron.Cron
	funds       FundLister
	investments InvestmentLister
	sweeper     FeeSweeper
	batchSize   int
	logger      *logging.Logger
}

// NewScheduler creates a Scheduler from the sweeper configuration.
func NewScheduler(cfg config.SweeperConfig, funds FundLister, investments InvestmentLister, sweeper FeeSweeper, logger *logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		funds:       funds,
		investments: investments,
		sweeper:     sweeper,
		batchSize:   cfg.BatchSize,
		logger:      logger.WithField("component", "fee_sweeper"),
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}

	if cfg.Schedule != "" {
		if _, err := s.cron.AddFunc(cfg.Schedule, s.runSweep); err != nil {
			return nil, fmt.Errorf("register fee sweep schedule %q: %w", cfg.Schedule, err)
		}
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Fee sweep scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Fee sweep scheduler stopped")
}

// RunNow executes one sweep pass immediately (for manual trigger).
func (s *Scheduler) RunNow() {
	s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	var swept, failed int

	for offset := 0; ; offset += listPageSize {
		funds, err := s.funds.ListFunds(ctx, listPageSize, offset)
		if err != nil {
			s.logger.ErrorWithErr("Failed to list funds for fee sweep", err)
			return
		}
		if len(funds) == 0 {
			break
		}

		for _, fund := range funds {
			if fund.Status != types.FundOpen {
				continue
			}
			n, err := s.sweepFund(ctx, fund)
			swept += n
			if err != nil {
				failed++
				s.logger.WithField("fund_id", fund.ID).ErrorWithErr("Fee sweep failed", err)
			}
		}

		if len(funds) < listPageSize {
			break
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"investments_swept": swept,
		"funds_failed":      failed,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Fee sweep pass completed")
}

// sweepFund sweeps one fund's active investments in manager context,
// batchSize at a time. Batch sweeps are all-or-nothing in the engine, so a
// failed batch is retried one investment at a time; otherwise one freshly
// created, still-timelocked investment would block every other investment in
// the fund on every pass. Returns the number of investments swept.
func (s *Scheduler) sweepFund(ctx context.Context, fund *models.Fund) (int, error) {
	investments, err := s.investments.ListActive(ctx, fund.ID, 0)
	if err != nil {
		return 0, fmt.Errorf("list active investments: %w", err)
	}
	if len(investments) == 0 {
		return 0, nil
	}

	swept := 0
	var sweepErr error
	for start := 0; start < len(investments); start += s.batchSize {
		end := start + s.batchSize
		if end > len(investments) {
			end = len(investments)
		}

		ids := make([]uint64, 0, end-start)
		for _, inv := range investments[start:end] {
			ids = append(ids, inv.InvestmentID)
		}

		results, err := s.sweeper.SweepFees(ctx, fund.ID, fund.Manager, ids)
		if err == nil {
			swept += len(results)
			continue
		}
		n, err := s.sweepOneByOne(ctx, fund, ids)
		swept += n
		if err != nil {
			sweepErr = err
		}
	}
	return swept, sweepErr
}

// sweepOneByOne retries a failed batch id by id. Investments still inside
// their timelock, or redeemed since the listing, are skipped; the next pass
// picks them up.
func (s *Scheduler) sweepOneByOne(ctx context.Context, fund *models.Fund, ids []uint64) (int, error) {
	swept := 0
	var sweepErr error
	for _, id := range ids {
		results, err := s.sweeper.SweepFees(ctx, fund.ID, fund.Manager, []uint64{id})
		switch {
		case err == nil:
			swept += len(results)
		case errors.Is(err, ledger.ErrFeeTimelockNotElapsed), errors.Is(err, ledger.ErrAlreadyRedeemed):
		default:
			sweepErr = fmt.Errorf("sweep investment %d: %w", id, err)
		}
	}
	return swept, sweepErr
}
