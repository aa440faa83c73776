package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/types"
)

// RegistryService creates and lists funds. It owns global protocol defaults
// and never touches per-fund accounting state beyond the initial snapshot.
type RegistryService struct {
	fundRepo FundRepository
	sink     EventSink
	protocol config.ProtocolConfig
	logger   *logging.Logger
}

// NewRegistryService creates a new registry service. The event sink is
// optional.
func NewRegistryService(fundRepo FundRepository, sink EventSink, protocol config.ProtocolConfig) *RegistryService {
	return &RegistryService{
		fundRepo: fundRepo,
		sink:     sink,
		protocol: protocol,
		logger:   logging.WithField("component", "registry"),
	}
}

// CreateFundInput represents input for creating a fund. Zero durations and
// amounts fall back to the protocol defaults.
type CreateFundInput struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	LogoURL      string `json:"logoUrl,omitempty"`
	Manager      string `json:"manager"`
	FeeRecipient string `json:"feeRecipient,omitempty"`

	ManagementFeeBps  uint32 `json:"managementFeeBps"`
	PerformanceFeeBps uint32 `json:"performanceFeeBps"`
	FeeCapBps         uint32 `json:"feeCapBps,omitempty"`

	// MinInvestmentUsd is a 6-decimal stablecoin amount.
	MinInvestmentUsd string `json:"minInvestmentUsd,omitempty"`
	// InitialSharePrice is an 18-decimal USD price per share.
	InitialSharePrice string `json:"initialSharePrice"`

	LockupPeriod           time.Duration `json:"lockupPeriod,omitempty"`
	RedemptionNoticePeriod time.Duration `json:"redemptionNoticePeriod,omitempty"`
	FeeSweepInterval       time.Duration `json:"feeSweepInterval,omitempty"`
	NavMarkInterval        time.Duration `json:"navMarkInterval,omitempty"`

	BypassWhitelist bool `json:"bypassWhitelist,omitempty"`
}

// CreateFund validates the input, derives the fund address and persists the
// registry row together with the initial accounting snapshot.
func (s *RegistryService) CreateFund(ctx context.Context, input *CreateFundInput) (*models.Fund, error) {
	manager, err := parseAddress(input.Manager)
	if err != nil {
		return nil, err
	}
	feeRecipient := manager
	if input.FeeRecipient != "" {
		if feeRecipient, err = parseAddress(input.FeeRecipient); err != nil {
			return nil, err
		}
	}

	// Protocol default is whole USD; the ledger works in 6-decimal units.
	minInvestment := new(big.Int).Mul(big.NewInt(s.protocol.MinInvestmentUsd), big.NewInt(1_000_000))
	if input.MinInvestmentUsd != "" {
		if minInvestment, err = parseAmount(input.MinInvestmentUsd); err != nil {
			return nil, err
		}
	}
	initialPrice, err := parseAmount(input.InitialSharePrice)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()

	cfg := &ledger.FundConfig{
		Name:                   input.Name,
		Symbol:                 input.Symbol,
		LogoURL:                input.LogoURL,
		Address:                deriveFundAddress(id),
		Manager:                manager,
		FeeRecipient:           feeRecipient,
		ManagementFeeBps:       input.ManagementFeeBps,
		PerformanceFeeBps:      input.PerformanceFeeBps,
		FeeCapBps:              input.FeeCapBps,
		MinInvestmentUsd:       minInvestment,
		InitialSharePrice:      initialPrice,
		LockupPeriod:           input.LockupPeriod,
		RedemptionNoticePeriod: input.RedemptionNoticePeriod,
		FeeSweepInterval:       input.FeeSweepInterval,
		NavMarkInterval:        input.NavMarkInterval,
		BypassWhitelist:        input.BypassWhitelist,
	}
	if cfg.LockupPeriod == 0 {
		cfg.LockupPeriod = s.protocol.LockupPeriod
	}
	if cfg.RedemptionNoticePeriod == 0 {
		cfg.RedemptionNoticePeriod = s.protocol.RedemptionNoticePeriod
	}
	if cfg.FeeSweepInterval == 0 {
		cfg.FeeSweepInterval = s.protocol.FeeSweepInterval
	}
	if cfg.NavMarkInterval == 0 {
		cfg.NavMarkInterval = s.protocol.NavMarkInterval
	}

	engine, err := ledger.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	snapshot, err := ledger.EncodeState(engine.State())
	if err != nil {
		return nil, fmt.Errorf("failed to encode initial snapshot: %w", err)
	}

	fund := &models.Fund{
		ID:           id,
		Name:         input.Name,
		Symbol:       input.Symbol,
		LogoURL:      input.LogoURL,
		Address:      cfg.Address.Hex(),
		Manager:      manager.Hex(),
		Status:       types.FundOpen,
		Aum:          "0",
		SharePrice:   "0",
		TotalSupply:  "0",
		TotalCapital: "0",
		Snapshot:     snapshot,
	}
	if err := s.fundRepo.Create(ctx, fund); err != nil {
		return nil, err
	}

	if s.sink != nil {
		event := ledger.Event{
			Type:      types.EventFundCreated,
			Fund:      cfg.Address,
			Timestamp: time.Now().Unix(),
			Attributes: map[string]string{
				"name":    input.Name,
				"symbol":  input.Symbol,
				"manager": manager.Hex(),
			},
		}
		if err := s.sink.Write(ctx, fund.ID, []ledger.Event{event}); err != nil {
			s.logger.WithError(err).Warn("Failed to record fund creation event")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"fundId":  fund.ID,
		"name":    fund.Name,
		"manager": fund.Manager,
	}).Info("Fund created")

	return fund, nil
}

// GetFund returns one registry row including its snapshot.
func (s *RegistryService) GetFund(ctx context.Context, fundID string) (*models.Fund, error) {
	return s.fundRepo.GetByID(ctx, fundID)
}

// ListFunds returns a page of registry rows.
func (s *RegistryService) ListFunds(ctx context.Context, limit, offset int) ([]*models.Fund, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.fundRepo.List(ctx, limit, offset)
}

// ListFundsByManager returns all funds managed by one address.
func (s *RegistryService) ListFundsByManager(ctx context.Context, manager string) ([]*models.Fund, error) {
	addr, err := parseAddress(manager)
	if err != nil {
		return nil, err
	}
	return s.fundRepo.ListByManager(ctx, addr.Hex())
}

// deriveFundAddress derives a stable pseudo-address for a fund from its
// registry id. The fund address identifies the fund in events, permits and
// the share ledger's fee pool.
func deriveFundAddress(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("fund:" + id))[12:])
}

// parseAddress validates and normalizes a hex address.
func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, &types.ServiceError{
			Code:    "INVALID_ADDRESS",
			Message: fmt.Sprintf("invalid address: %s", raw),
		}
	}
	return common.HexToAddress(raw), nil
}

// parseAmount parses a non-negative decimal string amount.
func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, &types.ServiceError{
			Code:    "INVALID_AMOUNT",
			Message: fmt.Sprintf("invalid amount: %s", raw),
		}
	}
	return v, nil
}
