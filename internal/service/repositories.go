package service

import (
	"context"
	"time"

	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/models"
)

// FundRepository interface for fund registry rows and snapshot commits
type FundRepository interface {
	Create(ctx context.Context, fund *models.Fund) error
	GetByID(ctx context.Context, id string) (*models.Fund, error)
	List(ctx context.Context, limit, offset int) ([]*models.Fund, error)
	ListByManager(ctx context.Context, manager string) ([]*models.Fund, error)
	Save(ctx context.Context, fund *models.Fund, investments []*models.Investment, marks []*models.NavMark) error
}

// InvestmentRepository interface for investment projections
type InvestmentRepository interface {
	ListByFund(ctx context.Context, fundID string) ([]*models.Investment, error)
	ListByInvestor(ctx context.Context, fundID, investor string) ([]*models.Investment, error)
	ListActive(ctx context.Context, fundID string, limit int) ([]*models.Investment, error)
}

// NavRepository interface for NAV mark projections
type NavRepository interface {
	History(ctx context.Context, fundID string, from, to time.Time, limit int) ([]*models.NavMark, error)
	Latest(ctx context.Context, fundID string) (*models.NavMark, error)
}

// EventSink interface for the append-only ledger event stream
type EventSink interface {
	Write(ctx context.Context, fundID string, events []ledger.Event) error
}

// NavCache interface for the latest-NAV cache
type NavCache interface {
	Put(ctx context.Context, mark *models.NavMark) error
	Get(ctx context.Context, fundID string) (*models.NavMark, error)
	Invalidate(ctx context.Context, fundID string) error
}
