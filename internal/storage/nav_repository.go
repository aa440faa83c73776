package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fund-ledger/internal/models"
)

// NavRepository reads NAV history projections.
type NavRepository struct {
	db *PostgresDB
}

// NewNavRepository creates a new NAV repository
func NewNavRepository(db *PostgresDB) *NavRepository {
	return &NavRepository{db: db}
}

// History retrieves a fund's NAV marks within a time range, oldest first
func (r *NavRepository) History(ctx context.Context, fundID string, from, to time.Time, limit int) ([]*models.NavMark, error) {
	query := `
		SELECT fund_id, aum, supply, price, total_capital, marked_at
		FROM nav_marks
		WHERE fund_id = $1 AND marked_at >= $2 AND marked_at <= $3
		ORDER BY marked_at
		LIMIT $4
	`

	rows, err := r.db.Pool().Query(ctx, query, fundID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nav history: %w", err)
	}
	defer rows.Close()

	var marks []*models.NavMark
	for rows.Next() {
		var mark models.NavMark
		if err := rows.Scan(
			&mark.FundID,
			&mark.Aum,
			&mark.Supply,
			&mark.Price,
			&mark.TotalCapital,
			&mark.MarkedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan nav mark: %w", err)
		}
		marks = append(marks, &mark)
	}

	return marks, rows.Err()
}

// Latest retrieves a fund's most recent NAV mark
func (r *NavRepository) Latest(ctx context.Context, fundID string) (*models.NavMark, error) {
	query := `
		SELECT fund_id, aum, supply, price, total_capital, marked_at
		FROM nav_marks
		WHERE fund_id = $1
		ORDER BY marked_at DESC
		LIMIT 1
	`

	var mark models.NavMark
	err := r.db.Pool().QueryRow(ctx, query, fundID).Scan(
		&mark.FundID,
		&mark.Aum,
		&mark.Supply,
		&mark.Price,
		&mark.TotalCapital,
		&mark.MarkedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFundNotFound
		}
		return nil, fmt.Errorf("failed to get latest nav mark: %w", err)
	}

	return &mark, nil
}
