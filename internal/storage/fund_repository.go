package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fund-ledger/internal/models"
)

// ErrFundNotFound is returned when a fund id has no row.
var ErrFundNotFound = errors.New("fund not found")

// FundRepository persists fund registry rows and their schema-versioned
// state snapshots. The snapshot column is authoritative; scalar columns are
// projections refreshed on every write for listing queries.
type FundRepository struct {
	db *PostgresDB
}

// NewFundRepository creates a new fund repository
func NewFundRepository(db *PostgresDB) *FundRepository {
	return &FundRepository{db: db}
}

// Create inserts a new fund row
func (r *FundRepository) Create(ctx context.Context, fund *models.Fund) error {
	if fund.ID == "" {
		fund.ID = uuid.New().String()
	}

	now := time.Now()
	fund.CreatedAt = now
	fund.UpdatedAt = now

	query := `
		INSERT INTO funds (id, name, symbol, logo_url, address, manager, status,
			aum, share_price, total_supply, total_capital, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		fund.ID,
		fund.Name,
		fund.Symbol,
		fund.LogoURL,
		fund.Address,
		fund.Manager,
		fund.Status,
		fund.Aum,
		fund.SharePrice,
		fund.TotalSupply,
		fund.TotalCapital,
		fund.Snapshot,
		fund.CreatedAt,
		fund.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}

	return nil
}

// GetByID retrieves a fund row including its snapshot
func (r *FundRepository) GetByID(ctx context.Context, id string) (*models.Fund, error) {
	query := `
		SELECT id, name, symbol, logo_url, address, manager, status,
			aum, share_price, total_supply, total_capital, snapshot, created_at, updated_at
		FROM funds
		WHERE id = $1
	`

	var fund models.Fund
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&fund.ID,
		&fund.Name,
		&fund.Symbol,
		&fund.LogoURL,
		&fund.Address,
		&fund.Manager,
		&fund.Status,
		&fund.Aum,
		&fund.SharePrice,
		&fund.TotalSupply,
		&fund.TotalCapital,
		&fund.Snapshot,
		&fund.CreatedAt,
		&fund.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFundNotFound
		}
		return nil, fmt.Errorf("failed to get fund: %w", err)
	}

	return &fund, nil
}

// List retrieves fund rows without snapshots, newest first
func (r *FundRepository) List(ctx context.Context, limit, offset int) ([]*models.Fund, error) {
	query := `
		SELECT id, name, symbol, logo_url, address, manager, status,
			aum, share_price, total_supply, total_capital, created_at, updated_at
		FROM funds
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list funds: %w", err)
	}
	defer rows.Close()

	var funds []*models.Fund
	for rows.Next() {
		var fund models.Fund
		if err := rows.Scan(
			&fund.ID,
			&fund.Name,
			&fund.Symbol,
			&fund.LogoURL,
			&fund.Address,
			&fund.Manager,
			&fund.Status,
			&fund.Aum,
			&fund.SharePrice,
			&fund.TotalSupply,
			&fund.TotalCapital,
			&fund.CreatedAt,
			&fund.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, &fund)
	}

	return funds, rows.Err()
}

// ListByManager retrieves fund rows managed by the given address
func (r *FundRepository) ListByManager(ctx context.Context, manager string) ([]*models.Fund, error) {
	query := `
		SELECT id, name, symbol, logo_url, address, manager, status,
			aum, share_price, total_supply, total_capital, created_at, updated_at
		FROM funds
		WHERE manager = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to list funds by manager: %w", err)
	}
	defer rows.Close()

	var funds []*models.Fund
	for rows.Next() {
		var fund models.Fund
		if err := rows.Scan(
			&fund.ID,
			&fund.Name,
			&fund.Symbol,
			&fund.LogoURL,
			&fund.Address,
			&fund.Manager,
			&fund.Status,
			&fund.Aum,
			&fund.SharePrice,
			&fund.TotalSupply,
			&fund.TotalCapital,
			&fund.CreatedAt,
			&fund.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, &fund)
	}

	return funds, rows.Err()
}

// Save writes back a fund's snapshot and projections in one transaction:
// the funds row is refreshed, investment projections are upserted and new
// NAV marks appended. One ledger operation maps to exactly one Save, so the
// fund state observed by readers is always a committed operation boundary.
func (r *FundRepository) Save(ctx context.Context, fund *models.Fund, investments []*models.Investment, marks []*models.NavMark) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	fund.UpdatedAt = time.Now()

	updateFund := `
		UPDATE funds
		SET status = $2, aum = $3, share_price = $4, total_supply = $5,
			total_capital = $6, snapshot = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, updateFund,
		fund.ID,
		fund.Status,
		fund.Aum,
		fund.SharePrice,
		fund.TotalSupply,
		fund.TotalCapital,
		fund.Snapshot,
		fund.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update fund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFundNotFound
	}

	upsertInvestment := `
		INSERT INTO investments (fund_id, investment_id, investor, status,
			initial_usd_amount, initial_shares, shares, high_water_mark,
			management_fees, performance_fees, redeemed_usd, manual, note,
			created_at, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (fund_id, investment_id) DO UPDATE SET
			status = EXCLUDED.status,
			shares = EXCLUDED.shares,
			high_water_mark = EXCLUDED.high_water_mark,
			management_fees = EXCLUDED.management_fees,
			performance_fees = EXCLUDED.performance_fees,
			redeemed_usd = EXCLUDED.redeemed_usd,
			redeemed_at = EXCLUDED.redeemed_at
	`
	for _, inv := range investments {
		if _, err := tx.Exec(ctx, upsertInvestment,
			inv.FundID,
			inv.InvestmentID,
			inv.Investor,
			inv.Status,
			inv.InitialUsdAmount,
			inv.InitialShares,
			inv.Shares,
			inv.HighWaterMark,
			inv.ManagementFees,
			inv.PerformanceFees,
			inv.RedeemedUsd,
			inv.Manual,
			inv.Note,
			inv.CreatedAt,
			inv.RedeemedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert investment %d: %w", inv.InvestmentID, err)
		}
	}

	insertMark := `
		INSERT INTO nav_marks (fund_id, aum, supply, price, total_capital, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fund_id, marked_at) DO NOTHING
	`
	for _, mark := range marks {
		if _, err := tx.Exec(ctx, insertMark,
			mark.FundID,
			mark.Aum,
			mark.Supply,
			mark.Price,
			mark.TotalCapital,
			mark.MarkedAt,
		); err != nil {
			return fmt.Errorf("failed to insert nav mark: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit fund save: %w", err)
	}

	return nil
}
