package storage

import (
	"context"
	"fmt"

	"github.com/fund-ledger/internal/models"
)

// InvestmentRepository reads investment projections. Writes flow only
// through FundRepository.Save so projections never drift from the snapshot
// they were committed with.
type InvestmentRepository struct {
	db *PostgresDB
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db *PostgresDB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

// maxActiveResults caps an unbounded ListActive scan.
const maxActiveResults = 100_000

const investmentColumns = `fund_id, investment_id, investor, status,
	initial_usd_amount, initial_shares, shares, high_water_mark,
	management_fees, performance_fees, redeemed_usd, manual, note,
	created_at, redeemed_at`

// ListByFund retrieves all investments of a fund
func (r *InvestmentRepository) ListByFund(ctx context.Context, fundID string) ([]*models.Investment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM investments
		WHERE fund_id = $1
		ORDER BY investment_id
	`, investmentColumns)

	rows, err := r.db.Pool().Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	defer rows.Close()

	return scanInvestments(rows)
}

// ListByInvestor retrieves an investor's investments within a fund
func (r *InvestmentRepository) ListByInvestor(ctx context.Context, fundID, investor string) ([]*models.Investment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM investments
		WHERE fund_id = $1 AND investor = $2
		ORDER BY investment_id
	`, investmentColumns)

	rows, err := r.db.Pool().Query(ctx, query, fundID, investor)
	if err != nil {
		return nil, fmt.Errorf("failed to list investor investments: %w", err)
	}
	defer rows.Close()

	return scanInvestments(rows)
}

// ListActive retrieves the non-redeemed investments of a fund. The fee
// sweeper uses this to build its sweep batches. A non-positive limit
// returns up to maxActiveResults rows.
func (r *InvestmentRepository) ListActive(ctx context.Context, fundID string, limit int) ([]*models.Investment, error) {
	if limit <= 0 {
		limit = maxActiveResults
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM investments
		WHERE fund_id = $1 AND status = 'active'
		ORDER BY investment_id
		LIMIT $2
	`, investmentColumns)

	rows, err := r.db.Pool().Query(ctx, query, fundID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}
	defer rows.Close()

	return scanInvestments(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanInvestments(rows pgxRows) ([]*models.Investment, error) {
	var investments []*models.Investment
	for rows.Next() {
		var inv models.Investment
		if err := rows.Scan(
			&inv.FundID,
			&inv.InvestmentID,
			&inv.Investor,
			&inv.Status,
			&inv.InitialUsdAmount,
			&inv.InitialShares,
			&inv.Shares,
			&inv.HighWaterMark,
			&inv.ManagementFees,
			&inv.PerformanceFees,
			&inv.RedeemedUsd,
			&inv.Manual,
			&inv.Note,
			&inv.CreatedAt,
			&inv.RedeemedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, &inv)
	}
	return investments, rows.Err()
}
